package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/httpclient"
	"github.com/ternarybob/prospector/internal/models"
)

// ProPublicaSource searches the Nonprofit Explorer API for organizations the
// prospect is affiliated with. Board membership at a foundation is a strong
// philanthropic signal.
type ProPublicaSource struct {
	client  *httpclient.Client
	cache   *SourceCache
	baseURL string
	logger  arbor.ILogger
}

// NewProPublicaSource creates the Nonprofit Explorer source.
func NewProPublicaSource(client *httpclient.Client, cache *SourceCache, baseURL string, logger arbor.ILogger) *ProPublicaSource {
	return &ProPublicaSource{
		client:  client,
		cache:   cache,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

func (s *ProPublicaSource) Name() string { return "propublica" }

type nonprofitSearchResponse struct {
	TotalResults  int `json:"total_results"`
	Organizations []struct {
		EIN   json.Number `json:"ein"`
		Name  string      `json:"name"`
		City  string      `json:"city"`
		State string      `json:"state"`
	} `json:"organizations"`
}

func (s *ProPublicaSource) Search(ctx context.Context, input models.ProspectInput) ([]Finding, error) {
	// The explorer indexes organization names; a family foundation usually
	// carries the donor's surname.
	term := surname(input.Name)
	if term == "" {
		return nil, nil
	}

	searchURL := fmt.Sprintf("%s/nonprofits/api/v2/search.json?q=%s",
		s.baseURL, url.QueryEscape(term+" foundation"))

	body := s.cache.Get(s.Name(), searchURL)
	if body == nil {
		var err error
		body, err = s.client.Get(ctx, searchURL, nil)
		if err != nil {
			return nil, fmt.Errorf("nonprofit search failed: %w", err)
		}
		s.cache.Put(s.Name(), searchURL, body)
	}

	var resp nonprofitSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("nonprofit response parse failed: %w", err)
	}

	var findings []Finding
	for _, org := range resp.Organizations {
		if !strings.Contains(strings.ToLower(org.Name), strings.ToLower(term)) {
			continue
		}
		// Prefer geographic corroboration when the input carries a state
		weight := 15.0
		if input.State != "" && strings.EqualFold(org.State, input.State) {
			weight = 25
		}

		findings = append(findings, Finding{
			Source:  s.Name(),
			Kind:    "nonprofit_affiliation",
			Detail:  fmt.Sprintf("%s (%s, %s)", org.Name, org.City, org.State),
			Weight:  weight,
			Matched: org.Name,
		})
		if len(findings) >= 5 {
			break
		}
	}
	return findings, nil
}

// surname returns the last word of a personal name.
func surname(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
