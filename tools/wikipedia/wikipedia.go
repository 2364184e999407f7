// Package wikipedia queries the MediaWiki search API for encyclopedia
// articles relevant to a research topic.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mohammad-safakhou/scholar/utils"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Result is one article hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a wikipedia client. baseURL defaults to the English
// wikipedia API endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://en.wikipedia.org/w/api.php"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Search runs a full-text article search.
func (c *Client) Search(ctx context.Context, q string, k int) ([]Result, error) {
	url := fmt.Sprintf("%s?action=query&list=search&srsearch=%s&srlimit=%d&format=json&utf8=1",
		c.baseURL, utils.UrlQuery(q), k)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia status %d", resp.StatusCode)
	}

	var raw struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(raw.Query.Search))
	for i, r := range raw.Query.Search {
		if i >= k {
			break
		}
		out = append(out, Result{
			Title:   r.Title,
			URL:     articleURL(r.Title),
			Snippet: tagPattern.ReplaceAllString(r.Snippet, ""),
		})
	}
	return out, nil
}

// articleURL builds the canonical article link: spaces become underscores
// and the title is escaped as a path segment.
func articleURL(title string) string {
	return "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}
