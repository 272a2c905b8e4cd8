package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/httpclient"
	"github.com/ternarybob/prospector/internal/models"
)

// Finding is one piece of public-record evidence about a prospect.
type Finding struct {
	Source  string  `json:"source"`
	Kind    string  `json:"kind"`
	Detail  string  `json:"detail"`
	Weight  float64 `json:"weight"`
	URL     string  `json:"url,omitempty"`
	Matched string  `json:"matched,omitempty"`
}

// Source queries one public data provider for evidence about a prospect.
type Source interface {
	Name() string
	Search(ctx context.Context, input models.ProspectInput) ([]Finding, error)
}

// EdgarSource searches SEC EDGAR full-text search for insider filings that
// name the prospect. A hit on a Form 3/4/5 or a 13D/G is strong evidence of
// significant holdings.
type EdgarSource struct {
	client  *httpclient.Client
	cache   *SourceCache
	baseURL string
	logger  arbor.ILogger
}

// NewEdgarSource creates the EDGAR source.
func NewEdgarSource(client *httpclient.Client, cache *SourceCache, baseURL string, logger arbor.ILogger) *EdgarSource {
	return &EdgarSource{
		client:  client,
		cache:   cache,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

func (s *EdgarSource) Name() string { return "edgar" }

// edgarSearchResponse is the subset of the full-text search JSON we consume.
type edgarSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source struct {
				DisplayNames []string `json:"display_names"`
				FileType     string   `json:"file_type"`
				FileDate     string   `json:"file_date"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *EdgarSource) Search(ctx context.Context, input models.ProspectInput) ([]Finding, error) {
	query := `"` + input.Name + `"`
	searchURL := fmt.Sprintf("%s/LATEST/search-index?q=%s&forms=3,4,5,SC 13D,SC 13G",
		s.baseURL, url.QueryEscape(query))

	body := s.cache.Get(s.Name(), searchURL)
	if body == nil {
		var err error
		body, err = s.client.Get(ctx, searchURL, map[string]string{"Accept": "application/json"})
		if err != nil {
			return nil, fmt.Errorf("edgar search failed: %w", err)
		}
		s.cache.Put(s.Name(), searchURL, body)
	}

	findings, err := s.parseJSON(body, input)
	if err == nil {
		return findings, nil
	}

	// Some EDGAR endpoints serve HTML when the JSON API is throttled.
	// Fall back to scraping the rendered result table.
	s.logger.Debug().Err(err).Msg("EDGAR JSON parse failed, trying HTML fallback")
	return s.parseHTML(body, input)
}

func (s *EdgarSource) parseJSON(body []byte, input models.ProspectInput) ([]Finding, error) {
	var resp edgarSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	var findings []Finding
	for _, hit := range resp.Hits.Hits {
		matched := ""
		for _, name := range hit.Source.DisplayNames {
			if strings.Contains(strings.ToLower(name), strings.ToLower(input.Name)) {
				matched = name
				break
			}
		}
		if matched == "" {
			continue
		}

		findings = append(findings, Finding{
			Source:  s.Name(),
			Kind:    "sec_filing",
			Detail:  fmt.Sprintf("%s filed %s on %s", matched, hit.Source.FileType, hit.Source.FileDate),
			Weight:  filingWeight(hit.Source.FileType),
			Matched: matched,
		})
	}
	return findings, nil
}

func (s *EdgarSource) parseHTML(body []byte, input models.ProspectInput) ([]Finding, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("edgar html parse failed: %w", err)
	}

	lowered := strings.ToLower(input.Name)
	var findings []Finding
	doc.Find("table.tableFile2 tr, table#hits tr").Each(func(_ int, row *goquery.Selection) {
		text := strings.TrimSpace(row.Text())
		if text == "" || !strings.Contains(strings.ToLower(text), lowered) {
			return
		}

		fields := strings.Fields(text)
		fileType := ""
		if len(fields) > 0 {
			fileType = fields[0]
		}

		findings = append(findings, Finding{
			Source:  s.Name(),
			Kind:    "sec_filing",
			Detail:  truncateDetail(text),
			Weight:  filingWeight(fileType),
			Matched: input.Name,
		})
	})

	return findings, nil
}

// filingWeight scores filing types by how strongly they indicate wealth.
// Insider ownership forms outrank ownership-threshold reports.
func filingWeight(fileType string) float64 {
	switch strings.ToUpper(strings.TrimSpace(fileType)) {
	case "4", "3", "5":
		return 30
	case "SC 13D", "SC 13G":
		return 25
	default:
		return 10
	}
}

func truncateDetail(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
