// Package confluence implements the wiki change source over the
// Confluence Cloud REST API.
package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/sources"
)

// DefaultTimeout is the maximum time to wait for Confluence responses.
const DefaultTimeout = 30 * time.Second

// searchPageSize bounds one CQL search page.
const searchPageSize = 50

// Client provides access to the Confluence REST API.
type Client struct {
	baseURL    string
	user       string
	token      string
	spaces     []string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Confluence source client.
func New(cfg config.ConfluenceConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		user:    cfg.User,
		token:   cfg.APIToken,
		spaces:  cfg.Spaces,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger.Named("confluence"),
	}
}

var _ sources.Source = (*Client)(nil)

// Type returns the source system identifier.
func (c *Client) Type() string {
	return models.SourceConfluence
}

// CheckConnection verifies credentials by listing a single space.
func (c *Client) CheckConnection(ctx context.Context) error {
	params := url.Values{}
	params.Set("limit", "1")
	_, err := c.get(ctx, "/rest/api/space", params)
	return err
}

// ListChanged returns pages modified since the given time in the configured
// spaces, oldest first.
func (c *Client) ListChanged(ctx context.Context, since time.Time) ([]models.DocumentRef, error) {
	cql := c.buildCQL(since)
	c.logger.Debug("Searching for updated pages", zap.String("cql", cql))

	var refs []models.DocumentRef
	start := 0
	for {
		params := url.Values{}
		params.Set("cql", cql)
		params.Set("limit", fmt.Sprint(searchPageSize))
		params.Set("start", fmt.Sprint(start))

		body, err := c.get(ctx, "/rest/api/content/search", params)
		if err != nil {
			return nil, err
		}

		var page struct {
			Results []struct {
				ID      string `json:"id"`
				Title   string `json:"title"`
				Version struct {
					When string `json:"when"`
				} `json:"version"`
			} `json:"results"`
			Size int `json:"size"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse search response: %w", err)
		}

		for _, result := range page.Results {
			modified, err := time.Parse(time.RFC3339, result.Version.When)
			if err != nil {
				modified = time.Time{}
			}
			refs = append(refs, models.DocumentRef{
				SourceSystem: models.SourceConfluence,
				DocumentID:   result.ID,
				LastModified: modified,
			})
		}

		if page.Size < searchPageSize {
			break
		}
		start += page.Size
	}
	return refs, nil
}

// Fetch retrieves one page's storage-format body as a content snapshot.
func (c *Client) Fetch(ctx context.Context, ref models.DocumentRef) (*models.Document, error) {
	params := url.Values{}
	params.Set("expand", "body.storage,version,space")

	body, err := c.get(ctx, "/rest/api/content/"+url.PathEscape(ref.DocumentID), params)
	if err != nil {
		return nil, err
	}

	var page struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Body  struct {
			Storage struct {
				Value string `json:"value"`
			} `json:"storage"`
		} `json:"body"`
		Version struct {
			When string `json:"when"`
		} `json:"version"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse page response: %w", err)
	}

	modified, err := time.Parse(time.RFC3339, page.Version.When)
	if err != nil {
		modified = ref.LastModified
	}

	content := page.Body.Storage.Value
	if page.Title != "" {
		content = "# " + page.Title + "\n\n" + content
	}

	return &models.Document{
		SourceSystem: models.SourceConfluence,
		DocumentID:   page.ID,
		Title:        page.Title,
		Content:      content,
		Fingerprint:  models.ContentFingerprint(content),
		LastModified: modified,
		URL:          c.baseURL + "/pages/viewpage.action?pageId=" + page.ID,
	}, nil
}

// buildCQL builds the change query for the configured spaces.
func (c *Client) buildCQL(since time.Time) string {
	var conds []string
	conds = append(conds, "type=page")
	if len(c.spaces) > 0 {
		quoted := make([]string, len(c.spaces))
		for i, s := range c.spaces {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		conds = append(conds, fmt.Sprintf("space IN (%s)", strings.Join(quoted, ", ")))
	}
	conds = append(conds, fmt.Sprintf("lastModified >= %q", since.UTC().Format("2006/01/02 15:04")))
	return strings.Join(conds, " AND ") + " ORDER BY lastModified ASC"
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call confluence: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, sources.StatusError(models.SourceConfluence, resp, body)
	}
	return body, nil
}
