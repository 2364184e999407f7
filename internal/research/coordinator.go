package research

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/scholar/config"
	"github.com/mohammad-safakhou/scholar/internal/llm"
	"github.com/mohammad-safakhou/scholar/internal/telemetry"
)

// TaskStore persists research tasks. Implementations must tolerate
// concurrent saves of distinct tasks.
type TaskStore interface {
	SaveTask(ctx context.Context, task *ResearchTask) error
	GetTask(ctx context.Context, id string) (*ResearchTask, error)
	ListTasks(ctx context.Context) ([]*ResearchTask, error)
}

// ReportIndexer receives completed reports for later retrieval. Indexing is
// best-effort: failures are logged, never surfaced to the task.
type ReportIndexer interface {
	IndexReport(ctx context.Context, taskID string, report *ResearchReport) error
}

// Coordinator drives a research task through its full lifecycle: produce,
// then critique/revise cycles until the quality gate passes or the retry
// budget runs out. It owns all task state transitions; role agents never
// touch the task.
type Coordinator struct {
	producer  *Producer
	critic    *Critic
	reviser   *Reviser
	gatherer  *Aggregator
	store     TaskStore
	indexer   ReportIndexer
	tele      *telemetry.Telemetry
	logger    *log.Logger
	threshold float64
	retries   int
}

// NewCoordinator wires the three role agents and their collaborators from
// configuration. store may not be nil; indexer and telemetry may be.
func NewCoordinator(cfg config.ResearchConfig, routing config.LLMRoutingConfig, provider llm.Provider, gatherer *Aggregator, store TaskStore, indexer ReportIndexer, tele *telemetry.Telemetry) *Coordinator {
	return &Coordinator{
		producer:  NewProducer(provider, routing.Producer, cfg.GenerationTimeout, tele),
		critic:    NewCritic(provider, routing.Critic, cfg.GenerationTimeout, tele),
		reviser:   NewReviser(provider, routing.Reviser, cfg.GenerationTimeout, tele),
		gatherer:  gatherer,
		store:     store,
		indexer:   indexer,
		tele:      tele,
		logger:    log.New(log.Writer(), "[COORD] ", log.LstdFlags),
		threshold: cfg.QualityThreshold,
		retries:   cfg.MaxRetries,
	}
}

// Submit creates a pending task, persists it and runs the pipeline in the
// background. It returns as soon as the task is visible in the store.
func (c *Coordinator) Submit(ctx context.Context, query ResearchQuery) (*ResearchTask, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	task := NewResearchTask(query, c.retries)
	if err := c.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("saving task: %w", err)
	}
	// The background run keeps mutating task; the caller gets a detached
	// copy so its reads never race the pipeline.
	snapshot := task.Snapshot()
	go func() {
		// The request context dies with the HTTP response; the run gets
		// its own lifetime.
		if _, err := c.run(context.Background(), task); err != nil {
			c.logger.Printf("task %s failed: %v", task.ID, err)
		}
	}()
	return snapshot, nil
}

// Run executes the full pipeline synchronously and returns the finished
// task. The returned error is non-nil only when the task ended FAILED.
func (c *Coordinator) Run(ctx context.Context, query ResearchQuery) (*ResearchTask, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	task := NewResearchTask(query, c.retries)
	if err := c.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("saving task: %w", err)
	}
	return c.run(ctx, task)
}

func (c *Coordinator) run(ctx context.Context, task *ResearchTask) (*ResearchTask, error) {
	started := time.Now()
	c.logger.Printf("task %s starting: %q (depth %d, budget %d)", task.ID, task.Query.Topic, task.Query.Depth, task.MaxRetries)

	if err := ctx.Err(); err != nil {
		return task, c.fail(ctx, task, started, fmt.Errorf("cancelled before start: %w", err))
	}

	task.Status = StatusInProgress
	c.appendMessage(task, RoleProducer, "Conducting initial research...", nil)
	c.persist(ctx, task)

	evidence := c.gatherEvidence(ctx, task.Query)

	report, err := c.producer.Produce(ctx, task.Query, evidence)
	if err != nil {
		return task, c.fail(ctx, task, started, err)
	}
	task.CurrentReport = report
	task.ReportHistory = append(task.ReportHistory, report)
	c.appendMessage(task, RoleProducer,
		fmt.Sprintf("Initial research completed. Report contains %d sections.", len(report.Sections)),
		map[string]interface{}{"sections": len(report.Sections), "sources": len(report.Sources)})
	c.persist(ctx, task)

	for task.RetryCount < task.MaxRetries {
		if err := ctx.Err(); err != nil {
			return task, c.fail(ctx, task, started, fmt.Errorf("cancelled during review: %w", err))
		}

		task.Status = StatusReviewing
		c.appendMessage(task, RoleCritic, "Reviewing report quality...", nil)
		c.persist(ctx, task)

		feedback, err := c.critic.Critique(ctx, task.Query, task.CurrentReport)
		if err != nil {
			return task, c.fail(ctx, task, started, err)
		}
		task.FeedbackHistory = append(task.FeedbackHistory, *feedback)
		c.appendMessage(task, RoleCritic,
			fmt.Sprintf("Critique completed. Overall score: %.1f/10", feedback.OverallScore),
			map[string]interface{}{"overall_score": feedback.OverallScore})
		c.persist(ctx, task)

		if feedback.OverallScore >= c.threshold {
			c.logger.Printf("task %s passed quality gate: %.1f >= %.1f", task.ID, feedback.OverallScore, c.threshold)
			break
		}

		if err := ctx.Err(); err != nil {
			return task, c.fail(ctx, task, started, fmt.Errorf("cancelled during revision: %w", err))
		}

		task.Status = StatusRevising
		c.appendMessage(task, RoleReviser, "Revising report based on feedback...", nil)
		c.persist(ctx, task)

		revised, err := c.reviser.Revise(ctx, task.Query, task.CurrentReport, feedback)
		if err != nil {
			return task, c.fail(ctx, task, started, err)
		}
		task.CurrentReport = revised
		task.ReportHistory = append(task.ReportHistory, revised)
		task.RetryCount++
		c.tele.RecordRevision()
		c.appendMessage(task, RoleReviser,
			fmt.Sprintf("Report revised (revision %d of %d).", task.RetryCount, task.MaxRetries),
			map[string]interface{}{"revision": task.RetryCount})
		c.persist(ctx, task)

		if task.RetryCount >= task.MaxRetries {
			c.appendMessage(task, RoleReviser,
				fmt.Sprintf("Maximum revisions (%d) reached. Using current report.", task.MaxRetries), nil)
		}
	}

	task.Status = StatusCompleted
	now := time.Now().UTC()
	task.CompletedAt = &now
	task.UpdatedAt = now
	score := 0.0
	if n := len(task.FeedbackHistory); n > 0 {
		score = task.FeedbackHistory[n-1].OverallScore
	}
	c.appendMessage(task, RoleProducer,
		fmt.Sprintf("Research completed with score %.1f after %d revision(s).", score, task.RetryCount),
		map[string]interface{}{"final_score": score, "revisions": task.RetryCount})
	c.persist(ctx, task)

	c.indexReport(ctx, task)
	c.tele.RecordTask(string(StatusCompleted), time.Since(started))
	c.logger.Printf("task %s completed in %s (score %.1f, %d revisions)", task.ID, time.Since(started).Round(time.Millisecond), score, task.RetryCount)
	return task, nil
}

// fail moves the task to its terminal FAILED state from wherever it was.
func (c *Coordinator) fail(ctx context.Context, task *ResearchTask, started time.Time, err error) error {
	task.Status = StatusFailed
	now := time.Now().UTC()
	task.CompletedAt = &now
	task.UpdatedAt = now
	task.Metadata["failure"] = err.Error()
	c.appendMessage(task, RoleProducer, fmt.Sprintf("Research failed: %v", err), nil)
	c.persist(ctx, task)
	c.tele.RecordTask(string(StatusFailed), time.Since(started))
	c.logger.Printf("task %s failed: %v", task.ID, err)
	return err
}

func (c *Coordinator) gatherEvidence(ctx context.Context, query ResearchQuery) EvidenceBundle {
	if c.gatherer == nil {
		return NewEvidenceBundle(nil)
	}
	bundle := c.gatherer.Gather(ctx, query)
	c.logger.Printf("gathered %d evidence items across %d sources", bundle.Total(), len(bundle.Kinds))
	return bundle
}

func (c *Coordinator) appendMessage(task *ResearchTask, role AgentRole, message string, metadata map[string]interface{}) {
	task.AgentMessages = append(task.AgentMessages, AgentMessage{
		Role:      role,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
	task.UpdatedAt = time.Now().UTC()
}

// persist saves the task, downgrading storage failures to a metadata flag.
// A broken store must not kill a healthy research run.
func (c *Coordinator) persist(ctx context.Context, task *ResearchTask) {
	if err := c.store.SaveTask(ctx, task); err != nil {
		c.logger.Printf("persisting task %s: %v", task.ID, err)
		task.Metadata["persistence_degraded"] = true
	}
}

func (c *Coordinator) indexReport(ctx context.Context, task *ResearchTask) {
	if c.indexer == nil || task.CurrentReport == nil {
		return
	}
	if err := c.indexer.IndexReport(ctx, task.ID, task.CurrentReport); err != nil {
		c.logger.Printf("indexing report for task %s: %v", task.ID, err)
	}
}
