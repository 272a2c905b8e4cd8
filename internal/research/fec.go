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

// FECSource searches federal campaign contribution records. Large or
// frequent political giving correlates strongly with philanthropic capacity.
type FECSource struct {
	client  *httpclient.Client
	cache   *SourceCache
	baseURL string
	apiKey  string
	logger  arbor.ILogger
}

// NewFECSource creates the FEC contributions source. Without an API key the
// source is inert and returns no findings.
func NewFECSource(client *httpclient.Client, cache *SourceCache, baseURL, apiKey string, logger arbor.ILogger) *FECSource {
	return &FECSource{
		client:  client,
		cache:   cache,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger,
	}
}

func (s *FECSource) Name() string { return "fec" }

type fecScheduleAResponse struct {
	Results []struct {
		ContributorName  string  `json:"contributor_name"`
		ContributorState string  `json:"contributor_state"`
		ContributorCity  string  `json:"contributor_city"`
		Amount           float64 `json:"contribution_receipt_amount"`
	} `json:"results"`
}

func (s *FECSource) Search(ctx context.Context, input models.ProspectInput) ([]Finding, error) {
	if s.apiKey == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("api_key", s.apiKey)
	params.Set("contributor_name", input.Name)
	params.Set("sort", "-contribution_receipt_amount")
	params.Set("per_page", "20")
	if input.State != "" {
		params.Set("contributor_state", strings.ToUpper(input.State))
	}

	searchURL := fmt.Sprintf("%s/v1/schedules/schedule_a/?%s", s.baseURL, params.Encode())

	body := s.cache.Get(s.Name(), searchURL)
	if body == nil {
		var err error
		body, err = s.client.Get(ctx, searchURL, nil)
		if err != nil {
			return nil, fmt.Errorf("fec search failed: %w", err)
		}
		s.cache.Put(s.Name(), searchURL, body)
	}

	var resp fecScheduleAResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("fec response parse failed: %w", err)
	}

	var totalAmount float64
	matches := 0
	for _, result := range resp.Results {
		if !nameMatches(result.ContributorName, input.Name) {
			continue
		}
		totalAmount += result.Amount
		matches++
	}

	if matches == 0 {
		return nil, nil
	}

	return []Finding{{
		Source:  s.Name(),
		Kind:    "political_giving",
		Detail:  fmt.Sprintf("%d federal contributions totaling $%.0f", matches, totalAmount),
		Weight:  contributionWeight(totalAmount),
		Matched: input.Name,
	}}, nil
}

// nameMatches compares contributor names loosely: FEC records store
// "LAST, FIRST" while inputs arrive as "First Last".
func nameMatches(record, input string) bool {
	normalize := func(s string) []string {
		s = strings.ToLower(strings.ReplaceAll(s, ",", " "))
		return strings.Fields(s)
	}

	recordParts := normalize(record)
	for _, part := range normalize(input) {
		found := false
		for _, rp := range recordParts {
			if rp == part {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contributionWeight(total float64) float64 {
	switch {
	case total >= 100000:
		return 30
	case total >= 10000:
		return 20
	case total >= 1000:
		return 10
	default:
		return 5
	}
}
