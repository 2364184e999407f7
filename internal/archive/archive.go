// Package archive maintains a local full-text index of completed reports so
// later research runs can draw on earlier findings.
package archive

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/scholar/internal/research"
)

// document is the indexed projection of one report section.
type document struct {
	TaskID   string `json:"task_id"`
	Title    string `json:"title"`
	Section  string `json:"section"`
	Content  string `json:"content"`
	Abstract string `json:"abstract"`
}

// Archive is a bleve-backed report index. It implements both the report
// indexer and the evidence source contracts: completed reports go in,
// evidence items for new research come out.
type Archive struct {
	index bleve.Index
	mu    sync.RWMutex
}

// Open opens or creates an archive at path. An empty path gives an
// in-memory index that lives as long as the process.
func Open(path string) (*Archive, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating in-memory archive: %w", err)
		}
		return &Archive{index: index}, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		index, err := bleve.New(path, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating archive at %s: %w", path, err)
		}
		return &Archive{index: index}, nil
	}
	index, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive at %s: %w", path, err)
	}
	return &Archive{index: index}, nil
}

// Close releases the underlying index.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index.Close()
}

// IndexReport indexes every section of a completed report, one document per
// section so hits point at the relevant passage.
func (a *Archive) IndexReport(ctx context.Context, taskID string, report *research.ResearchReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	batch := a.index.NewBatch()
	for i, section := range report.Sections {
		id := fmt.Sprintf("%s/%d", taskID, i)
		doc := document{
			TaskID:   taskID,
			Title:    report.Title,
			Section:  section.Title,
			Content:  section.Content,
			Abstract: report.Abstract,
		}
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("indexing section %d: %w", i, err)
		}
	}
	if err := a.index.Batch(batch); err != nil {
		return fmt.Errorf("writing archive batch: %w", err)
	}
	return nil
}

// Kind names the evidence slot the archive fills.
func (a *Archive) Kind() string { return "archive" }

// Search looks up passages from earlier reports relevant to the query.
func (a *Archive) Search(ctx context.Context, query string, max int) ([]research.EvidenceItem, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, max, 0, false)
	req.Fields = []string{"task_id", "title", "section", "content"}
	res, err := a.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching archive: %w", err)
	}

	items := make([]research.EvidenceItem, 0, len(res.Hits))
	for _, hit := range res.Hits {
		title, _ := hit.Fields["section"].(string)
		if report, _ := hit.Fields["title"].(string); report != "" {
			title = fmt.Sprintf("%s: %s", report, title)
		}
		content, _ := hit.Fields["content"].(string)
		taskID, _ := hit.Fields["task_id"].(string)
		items = append(items, research.EvidenceItem{
			Title:   title,
			URL:     fmt.Sprintf("scholar://reports/%s", taskID),
			Snippet: truncate(content, 400),
			Kind:    a.Kind(),
		})
	}
	return items, nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
