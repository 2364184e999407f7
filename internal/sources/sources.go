// Package sources adapts the lookup tools to the evidence source contract
// used by the research pipeline.
package sources

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/scholar/config"
	"github.com/mohammad-safakhou/scholar/internal/research"
	"github.com/mohammad-safakhou/scholar/tools/arxiv"
	"github.com/mohammad-safakhou/scholar/tools/websearch"
	"github.com/mohammad-safakhou/scholar/tools/wikipedia"
)

// FromConfig builds the configured evidence sources. Sources without the
// required credentials or with enabled=false are skipped, not errored: a
// research run with fewer sources is still a research run.
func FromConfig(cfg config.SourcesConfig) []research.EvidenceSource {
	logger := log.New(log.Writer(), "[SOURCES] ", log.LstdFlags)
	var out []research.EvidenceSource

	if searcher := webSearcherFromConfig(cfg.WebSearch, logger); searcher != nil {
		out = append(out, &WebSource{searcher: searcher})
	}
	if cfg.Wikipedia.Enabled {
		out = append(out, &WikipediaSource{client: wikipedia.NewClient(cfg.Wikipedia.BaseURL, cfg.Wikipedia.Timeout)})
	}
	if cfg.Arxiv.Enabled {
		out = append(out, &ArxivSource{client: arxiv.NewClient(cfg.Arxiv.BaseURL, cfg.Arxiv.Timeout)})
	}
	return out
}

func webSearcherFromConfig(cfg config.WebSearchConfig, logger *log.Logger) websearch.WebSearcher {
	var apiKey string
	switch websearch.Provider(cfg.Provider) {
	case websearch.SerperProvider:
		apiKey = cfg.SerperAPIKey
	case websearch.BraveProvider:
		apiKey = cfg.BraveAPIKey
	}
	if apiKey == "" {
		logger.Printf("web search disabled: no API key for provider %q", cfg.Provider)
		return nil
	}
	searcher, err := websearch.NewWebSearcher(websearch.Provider(cfg.Provider), apiKey)
	if err != nil {
		logger.Printf("web search disabled: %v", err)
		return nil
	}
	return searcher
}

// WebSource exposes a web search backend as an evidence source.
type WebSource struct {
	searcher websearch.WebSearcher
}

// NewWebSource wraps a web searcher.
func NewWebSource(searcher websearch.WebSearcher) *WebSource {
	return &WebSource{searcher: searcher}
}

func (s *WebSource) Kind() string { return "web" }

func (s *WebSource) Search(ctx context.Context, query string, max int) ([]research.EvidenceItem, error) {
	results, err := s.searcher.Search(ctx, query, max)
	if err != nil {
		return nil, err
	}
	items := make([]research.EvidenceItem, 0, len(results))
	for _, r := range results {
		items = append(items, research.EvidenceItem{Title: r.Title, URL: r.URL, Snippet: r.Snippet, Kind: s.Kind()})
	}
	return items, nil
}

// WikipediaSource exposes encyclopedia lookups as an evidence source.
type WikipediaSource struct {
	client *wikipedia.Client
}

func (s *WikipediaSource) Kind() string { return "wikipedia" }

func (s *WikipediaSource) Search(ctx context.Context, query string, max int) ([]research.EvidenceItem, error) {
	results, err := s.client.Search(ctx, query, max)
	if err != nil {
		return nil, err
	}
	items := make([]research.EvidenceItem, 0, len(results))
	for _, r := range results {
		items = append(items, research.EvidenceItem{Title: r.Title, URL: r.URL, Snippet: r.Snippet, Kind: s.Kind()})
	}
	return items, nil
}

// ArxivSource exposes preprint lookups as an evidence source.
type ArxivSource struct {
	client *arxiv.Client
}

func (s *ArxivSource) Kind() string { return "arxiv" }

func (s *ArxivSource) Search(ctx context.Context, query string, max int) ([]research.EvidenceItem, error) {
	results, err := s.client.Search(ctx, query, max)
	if err != nil {
		return nil, err
	}
	items := make([]research.EvidenceItem, 0, len(results))
	for _, r := range results {
		items = append(items, research.EvidenceItem{Title: r.Title, URL: r.URL, Snippet: r.Summary, Kind: s.Kind()})
	}
	return items, nil
}
