package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/examforge/exam-engine/internal/config"
	"github.com/examforge/exam-engine/internal/model"
)

// Client fetches candidate question pools from the Question Catalog service.
// The catalog is a hard dependency of attempt creation: any transport or
// server fault surfaces as model.ErrCatalogUnavailable and no attempt is
// created.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// PoolFilter narrows the candidate pool by catalog taxonomy.
type PoolFilter struct {
	CategoryID *int64
	LevelID    *int64
	Limit      int
}

// NewClient creates a catalog Client with a bounded request timeout.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.CatalogBaseURL, "/"),
		http:    &http.Client{Timeout: cfg.CatalogTimeout},
		log:     log.With().Str("component", "catalog_client").Logger(),
	}
}

// poolResponse is the catalog's wire envelope for pool queries.
type poolResponse struct {
	Questions []model.CatalogQuestion `json:"questions"`
}

// FetchPool retrieves up to filter.Limit candidate questions. A failed
// request is retried once; a second failure is reported as
// model.ErrCatalogUnavailable.
func (c *Client) FetchPool(ctx context.Context, filter PoolFilter) ([]model.CatalogQuestion, error) {
	endpoint := c.baseURL + "/api/v1/questions/pool?" + filter.query()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		questions, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			return questions, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.log.Warn().Err(err).Int("try", attempt+1).Msg("Catalog pool fetch failed")
	}

	return nil, fmt.Errorf("%w: %w", model.ErrCatalogUnavailable, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) ([]model.CatalogQuestion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog responded %d", resp.StatusCode)
	}

	var body poolResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode pool response: %w", err)
	}
	return body.Questions, nil
}

func (f PoolFilter) query() string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(f.Limit))
	if f.CategoryID != nil {
		q.Set("category_id", strconv.FormatInt(*f.CategoryID, 10))
	}
	if f.LevelID != nil {
		q.Set("level_id", strconv.FormatInt(*f.LevelID, 10))
	}
	return q.Encode()
}
