package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/scholar/internal/telemetry"
)

// EvidenceSource is one external lookup backend (web search, wikipedia,
// arxiv, the local archive). Implementations must be safe for concurrent
// use; Search returns ranked items, best first.
type EvidenceSource interface {
	Kind() string
	Search(ctx context.Context, query string, max int) ([]EvidenceItem, error)
}

// SessionSource is an optional extension for sources that hold per-gather
// state (browser sessions, index handles). Open is called once before a
// gather round and Close after, regardless of outcome.
type SessionSource interface {
	EvidenceSource
	Open(ctx context.Context) error
	Close() error
}

// Aggregator fans a query out to every configured source concurrently and
// merges the results into a bundle. One source failing, timing out or
// returning garbage never affects the others: its slot simply stays empty.
type Aggregator struct {
	sources []EvidenceSource
	perKind int
	timeout time.Duration
	tele    *telemetry.Telemetry
	logger  *log.Logger
}

// NewAggregator creates an aggregator over the given sources. perKind caps
// how many items each source slot keeps; timeout bounds the whole gather
// round.
func NewAggregator(sources []EvidenceSource, perKind int, timeout time.Duration, tele *telemetry.Telemetry) *Aggregator {
	if perKind <= 0 {
		perKind = 5
	}
	return &Aggregator{
		sources: sources,
		perKind: perKind,
		timeout: timeout,
		tele:    tele,
		logger:  log.New(log.Writer(), "[EVIDENCE] ", log.LstdFlags),
	}
}

// Kinds returns the slot names the aggregator will populate, in source order.
func (a *Aggregator) Kinds() []string {
	kinds := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		kinds = append(kinds, s.Kind())
	}
	return kinds
}

// Gather queries every source for the topic and each subtopic, concurrently,
// and merges results per source kind. It never returns an error: the worst
// case is an empty bundle. Duplicate URLs within a slot are dropped,
// preserving rank order.
func (a *Aggregator) Gather(ctx context.Context, query ResearchQuery) EvidenceBundle {
	bundle := NewEvidenceBundle(a.Kinds())
	if len(a.sources) == 0 {
		return bundle
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	queries := gatherQueries(query)

	type slotResult struct {
		kind  string
		items []EvidenceItem
	}
	results := make(chan slotResult, len(a.sources)*len(queries))

	var wg sync.WaitGroup
	for _, source := range a.sources {
		src := source
		a.openSession(ctx, src)
		for _, q := range queries {
			wg.Add(1)
			go func(q string) {
				defer wg.Done()
				items, err := src.Search(ctx, q, a.perKind)
				if err != nil {
					a.logger.Printf("source %s failed for %q: %v", src.Kind(), q, err)
					return
				}
				results <- slotResult{kind: src.Kind(), items: items}
			}(q)
		}
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Merge is the only synchronization point: workers never touch the
	// bundle directly.
	for res := range results {
		bundle.Slots[res.kind] = append(bundle.Slots[res.kind], res.items...)
	}

	for _, source := range a.sources {
		a.closeSession(source)
	}

	for kind, items := range bundle.Slots {
		items = dedupeEvidence(items)
		if len(items) > a.perKind {
			items = items[:a.perKind]
		}
		bundle.Slots[kind] = items
		a.tele.RecordEvidence(kind, len(items))
	}
	return bundle
}

func (a *Aggregator) openSession(ctx context.Context, source EvidenceSource) {
	if s, ok := source.(SessionSource); ok {
		if err := s.Open(ctx); err != nil {
			a.logger.Printf("source %s session open failed: %v", s.Kind(), err)
		}
	}
}

func (a *Aggregator) closeSession(source EvidenceSource) {
	if s, ok := source.(SessionSource); ok {
		if err := s.Close(); err != nil {
			a.logger.Printf("source %s session close failed: %v", s.Kind(), err)
		}
	}
}

// gatherQueries derives the lookup queries for a research query: the topic
// itself plus the topic scoped by each subtopic.
func gatherQueries(query ResearchQuery) []string {
	queries := []string{query.Topic}
	for _, sub := range query.Subtopics {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		queries = append(queries, fmt.Sprintf("%s %s", query.Topic, sub))
	}
	return queries
}

func dedupeEvidence(items []EvidenceItem) []EvidenceItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		key := item.URL
		if key == "" {
			key = item.Title
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}
