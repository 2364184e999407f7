package websearch

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/scholar/tools/websearch/brave"
	"github.com/mohammad-safakhou/scholar/tools/websearch/models"
	"github.com/mohammad-safakhou/scholar/tools/websearch/serper"
)

type WebSearcher interface {
	Search(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

func NewWebSearcher(provider Provider, apiKey string) (WebSearcher, error) {
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	default:
		return nil, fmt.Errorf("unsupported web search provider: %s", provider)
	}
}
