// Package arxiv queries the arXiv Atom API for academic preprints.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/scholar/utils"
)

// Result is one preprint hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an arxiv client. baseURL defaults to the public export
// endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://export.arxiv.org/api/query"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Search runs a relevance-ranked paper search.
func (c *Client) Search(ctx context.Context, q string, k int) ([]Result, error) {
	url := fmt.Sprintf("%s?search_query=all:%s&start=0&max_results=%d&sortBy=relevance",
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
		return nil, fmt.Errorf("arxiv status %d", resp.StatusCode)
	}

	var feed struct {
		Entries []struct {
			Title   string `xml:"title"`
			Summary string `xml:"summary"`
			ID      string `xml:"id"`
			Links   []struct {
				Href string `xml:"href,attr"`
				Rel  string `xml:"rel,attr"`
			} `xml:"link"`
		} `xml:"entry"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(feed.Entries))
	for i, e := range feed.Entries {
		if i >= k {
			break
		}
		link := e.ID
		for _, l := range e.Links {
			if l.Rel == "alternate" {
				link = l.Href
			}
		}
		out = append(out, Result{
			Title:   collapse(e.Title),
			URL:     link,
			Summary: collapse(e.Summary),
		})
	}
	return out, nil
}

// collapse flattens the newline-wrapped text arXiv returns.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
