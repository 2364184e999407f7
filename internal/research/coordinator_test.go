package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/scholar/config"
)

type fakeStore struct {
	mu      sync.Mutex
	tasks   map[string]*ResearchTask
	saves   int
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]*ResearchTask)}
}

func (s *fakeStore) SaveTask(ctx context.Context, task *ResearchTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failAll {
		return fmt.Errorf("store unavailable")
	}
	snapshot := *task
	s.tasks[task.ID] = &snapshot
	return nil
}

func (s *fakeStore) GetTask(ctx context.Context, id string) (*ResearchTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return task, nil
}

func (s *fakeStore) ListTasks(ctx context.Context) ([]*ResearchTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ResearchTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
}

func (f *fakeIndexer) IndexReport(ctx context.Context, taskID string, report *ResearchReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, taskID)
	return nil
}

func newTestCoordinator(provider *fakeProvider, store TaskStore, indexer ReportIndexer, maxRetries int) *Coordinator {
	cfg := config.ResearchConfig{
		QualityThreshold:  7.0,
		MaxRetries:        maxRetries,
		GenerationTimeout: time.Second,
	}
	routing := config.LLMRoutingConfig{Producer: "test", Critic: "test", Reviser: "test"}
	return NewCoordinator(cfg, routing, provider, nil, store, indexer, nil)
}

func planAndReport() []string {
	return []string{`{"key_areas": ["a"]}`, fakeReportJSON}
}

func critique(score float64) string {
	return fmt.Sprintf(`{"overall_score": %.1f, "weaknesses": ["w"], "suggestions": ["s"]}`, score)
}

const revisedJSON = `{"title": "Revised", "abstract": "better", "sections": [{"title": "s", "content": "c", "confidence_score": 0.9}], "conclusion": "done", "revision_summary": "fixed"}`

func TestRunPassesGateFirstTry(t *testing.T) {
	provider := &fakeProvider{responses: append(planAndReport(), critique(8.5))}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 3)

	task, err := coord.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if task.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
	if task.RetryCount != 0 {
		t.Fatalf("expected no revisions, got %d", task.RetryCount)
	}
	if len(task.FeedbackHistory) != 1 || task.FeedbackHistory[0].OverallScore != 8.5 {
		t.Fatalf("unexpected feedback history: %+v", task.FeedbackHistory)
	}
	if task.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}
	if provider.calls != 3 {
		t.Fatalf("expected plan+content+critique calls, got %d", provider.calls)
	}
}

func TestRunRevisesUntilGatePasses(t *testing.T) {
	provider := &fakeProvider{responses: append(planAndReport(), critique(6.0), revisedJSON, critique(8.0))}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 3)

	task, err := coord.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if task.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
	if task.RetryCount != 1 {
		t.Fatalf("expected 1 revision, got %d", task.RetryCount)
	}
	if len(task.FeedbackHistory) != 2 {
		t.Fatalf("expected 2 critiques, got %d", len(task.FeedbackHistory))
	}
	if task.CurrentReport.Title != "Revised" {
		t.Fatalf("current report not replaced: %q", task.CurrentReport.Title)
	}
	// Every generated report survives in the history; revisions never
	// overwrite the record of what came before.
	if len(task.ReportHistory) != 2 {
		t.Fatalf("expected 2 reports in history, got %d", len(task.ReportHistory))
	}
	if task.ReportHistory[1] != task.CurrentReport {
		t.Fatal("history tail must be the current report")
	}
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	provider := &fakeProvider{responses: append(planAndReport(), critique(5.0), revisedJSON)}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 1)

	task, err := coord.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if task.Status != StatusCompleted {
		t.Fatalf("budget exhaustion must complete normally, got %s", task.Status)
	}
	if task.RetryCount != 1 {
		t.Fatalf("expected 1 revision, got %d", task.RetryCount)
	}
	// The final revised report is kept without a fresh critique.
	if len(task.FeedbackHistory) != 1 {
		t.Fatalf("expected 1 critique, got %d", len(task.FeedbackHistory))
	}
	found := false
	for _, msg := range task.AgentMessages {
		if strings.Contains(msg.Message, "Maximum revisions (1) reached") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected budget exhaustion message")
	}
}

func TestRunZeroBudgetSkipsReview(t *testing.T) {
	provider := &fakeProvider{responses: planAndReport()}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 0)

	task, err := coord.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if task.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
	if len(task.FeedbackHistory) != 0 {
		t.Fatalf("expected no critiques with zero budget, got %d", len(task.FeedbackHistory))
	}
	if provider.calls != 2 {
		t.Fatalf("expected only plan+content calls, got %d", provider.calls)
	}
}

func TestRunProducerFailureFailsTask(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("backend down")}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 3)

	task, err := coord.Run(context.Background(), testQuery())
	if err == nil {
		t.Fatal("expected error")
	}
	if task.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.Metadata["failure"] == nil {
		t.Fatal("expected failure reason in metadata")
	}
	if task.CompletedAt == nil {
		t.Fatal("failed tasks still get a completion timestamp")
	}
}

func TestRunCriticFailureFailsTask(t *testing.T) {
	provider := &fakeProvider{responses: append(planAndReport(), "no json at all")}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 3)

	task, err := coord.Run(context.Background(), testQuery())
	if err == nil {
		t.Fatal("expected error")
	}
	if task.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	// The report produced before the failure is retained for inspection.
	if task.CurrentReport == nil {
		t.Fatal("expected report from before the failure")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	provider := &fakeProvider{responses: planAndReport()}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 3)

	task, err := coord.Run(ctx, testQuery())
	if err == nil {
		t.Fatal("expected error")
	}
	if task.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
}

func TestRunInvalidQuery(t *testing.T) {
	store := newFakeStore()
	coord := newTestCoordinator(&fakeProvider{}, store, nil, 3)

	if _, err := coord.Run(context.Background(), ResearchQuery{Topic: "", Depth: 3}); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := coord.Run(context.Background(), ResearchQuery{Topic: "x", Depth: 9}); err == nil {
		t.Fatal("expected depth validation error")
	}
	if store.saves != 0 {
		t.Fatal("invalid queries must not reach the store")
	}
}

func TestRunInitialSaveFailure(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	coord := newTestCoordinator(&fakeProvider{}, store, nil, 3)

	if _, err := coord.Run(context.Background(), testQuery()); err == nil {
		t.Fatal("expected error when the initial save fails")
	}
}

func TestRunMarksPersistenceDegraded(t *testing.T) {
	provider := &fakeProvider{responses: append(planAndReport(), critique(9.0))}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 3)

	task := NewResearchTask(testQuery(), 3)
	store.failAll = true
	got, err := coord.run(context.Background(), task)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed despite broken store, got %s", got.Status)
	}
	if got.Metadata["persistence_degraded"] != true {
		t.Fatal("expected persistence_degraded metadata flag")
	}
}

func TestRunIndexesCompletedReport(t *testing.T) {
	provider := &fakeProvider{responses: append(planAndReport(), critique(8.0))}
	store := newFakeStore()
	indexer := &fakeIndexer{}
	coord := newTestCoordinator(provider, store, indexer, 3)

	task, err := coord.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	indexer.mu.Lock()
	defer indexer.mu.Unlock()
	if len(indexer.indexed) != 1 || indexer.indexed[0] != task.ID {
		t.Fatalf("expected task %s indexed, got %v", task.ID, indexer.indexed)
	}
}

func TestSubmitReturnsDetachedTask(t *testing.T) {
	provider := &fakeProvider{responses: append(planAndReport(), critique(8.0)), delay: 20 * time.Millisecond}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 3)

	task, err := coord.Submit(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The background run mutates its own copy; reads of the returned task
	// must stay stable while it progresses through its phases.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if task.Status != StatusPending {
			t.Fatalf("returned task mutated by background run: %s", task.Status)
		}
		if len(task.AgentMessages) != 0 || len(task.FeedbackHistory) != 0 {
			t.Fatal("returned task picked up background progress")
		}
		if _, ok := task.Metadata["failure"]; ok {
			t.Fatal("returned task picked up background metadata")
		}
		got, err := store.GetTask(context.Background(), task.ID)
		if err == nil && got.Status == StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task did not finish in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitRunsInBackground(t *testing.T) {
	provider := &fakeProvider{responses: append(planAndReport(), critique(8.0))}
	store := newFakeStore()
	coord := newTestCoordinator(provider, store, nil, 3)

	task, err := coord.Submit(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected task ID")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.GetTask(context.Background(), task.ID)
		if err == nil && (got.Status == StatusCompleted || got.Status == StatusFailed) {
			if got.Status != StatusCompleted {
				t.Fatalf("expected completed, got %s", got.Status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("task did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
