// Package jira implements the ticket-tracker change source over the
// Jira Cloud REST API.
package jira

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

// DefaultTimeout is the maximum time to wait for Jira responses.
const DefaultTimeout = 30 * time.Second

// jiraTime is the timestamp layout Jira uses in issue fields.
const jiraTime = "2006-01-02T15:04:05.000-0700"

// searchPageSize bounds one JQL search page.
const searchPageSize = 50

// Client provides access to the Jira REST API.
type Client struct {
	baseURL    string
	user       string
	token      string
	projects   []string
	labels     []string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Jira source client.
func New(cfg config.JiraConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		user:     cfg.User,
		token:    cfg.APIToken,
		projects: cfg.Projects,
		labels:   cfg.Labels,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger.Named("jira"),
	}
}

var _ sources.Source = (*Client)(nil)

// Type returns the source system identifier.
func (c *Client) Type() string {
	return models.SourceJira
}

// CheckConnection verifies credentials against the server info endpoint.
func (c *Client) CheckConnection(ctx context.Context) error {
	_, err := c.get(ctx, "/rest/api/2/serverInfo", nil)
	return err
}

// ListChanged returns issues updated since the given time in the configured
// projects, oldest first.
func (c *Client) ListChanged(ctx context.Context, since time.Time) ([]models.DocumentRef, error) {
	jql := c.buildJQL(since)
	c.logger.Debug("Searching for updated issues", zap.String("jql", jql))

	var refs []models.DocumentRef
	startAt := 0
	for {
		params := url.Values{}
		params.Set("jql", jql)
		params.Set("fields", "updated")
		params.Set("maxResults", fmt.Sprint(searchPageSize))
		params.Set("startAt", fmt.Sprint(startAt))

		body, err := c.get(ctx, "/rest/api/2/search", params)
		if err != nil {
			return nil, err
		}

		var page struct {
			Total  int `json:"total"`
			Issues []struct {
				Key    string `json:"key"`
				Fields struct {
					Updated string `json:"updated"`
				} `json:"fields"`
			} `json:"issues"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse search response: %w", err)
		}

		for _, issue := range page.Issues {
			modified, err := time.Parse(jiraTime, issue.Fields.Updated)
			if err != nil {
				c.logger.Warn("Unparseable issue timestamp",
					zap.String("issue", issue.Key),
					zap.String("updated", issue.Fields.Updated))
				modified = time.Time{}
			}
			refs = append(refs, models.DocumentRef{
				SourceSystem: models.SourceJira,
				DocumentID:   issue.Key,
				LastModified: modified,
			})
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}
	return refs, nil
}

// Fetch retrieves one issue and assembles its summary, description, and
// comments into a single content snapshot.
func (c *Client) Fetch(ctx context.Context, ref models.DocumentRef) (*models.Document, error) {
	params := url.Values{}
	params.Set("fields", "summary,description,updated,comment")

	body, err := c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(ref.DocumentID), params)
	if err != nil {
		return nil, err
	}

	var issue struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Updated     string `json:"updated"`
			Comment     struct {
				Comments []struct {
					Author struct {
						DisplayName string `json:"displayName"`
					} `json:"author"`
					Body string `json:"body"`
				} `json:"comments"`
			} `json:"comment"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse issue response: %w", err)
	}

	var parts []string
	if issue.Fields.Summary != "" {
		parts = append(parts, "# "+issue.Fields.Summary)
	}
	if issue.Fields.Description != "" {
		parts = append(parts, issue.Fields.Description)
	}
	for _, comment := range issue.Fields.Comment.Comments {
		parts = append(parts, fmt.Sprintf("Comment by %s:\n%s", comment.Author.DisplayName, comment.Body))
	}
	content := strings.Join(parts, "\n\n")

	modified, err := time.Parse(jiraTime, issue.Fields.Updated)
	if err != nil {
		modified = ref.LastModified
	}

	return &models.Document{
		SourceSystem: models.SourceJira,
		DocumentID:   issue.Key,
		Title:        issue.Fields.Summary,
		Content:      content,
		Fingerprint:  models.ContentFingerprint(content),
		LastModified: modified,
		URL:          c.baseURL + "/browse/" + issue.Key,
	}, nil
}

// buildJQL builds the change query for the configured projects and labels.
func (c *Client) buildJQL(since time.Time) string {
	var conds []string
	if len(c.projects) > 0 {
		quoted := make([]string, len(c.projects))
		for i, p := range c.projects {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		conds = append(conds, fmt.Sprintf("project IN (%s)", strings.Join(quoted, ", ")))
	}
	conds = append(conds, fmt.Sprintf("updated >= %q", since.UTC().Format("2006-01-02 15:04")))
	if len(c.labels) > 0 {
		quoted := make([]string, len(c.labels))
		for i, l := range c.labels {
			quoted[i] = fmt.Sprintf("%q", l)
		}
		conds = append(conds, fmt.Sprintf("labels IN (%s)", strings.Join(quoted, ", ")))
	}
	return strings.Join(conds, " AND ") + " ORDER BY updated ASC"
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
		return nil, fmt.Errorf("failed to call jira: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, sources.StatusError(models.SourceJira, resp, body)
	}
	return body, nil
}
