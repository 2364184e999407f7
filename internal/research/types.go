package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AgentRole identifies which role produced a message or result.
type AgentRole string

const (
	RoleProducer AgentRole = "producer"
	RoleCritic   AgentRole = "critic"
	RoleReviser  AgentRole = "reviser"
)

// TaskStatus is the lifecycle state of a research task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusReviewing  TaskStatus = "reviewing"
	StatusRevising   TaskStatus = "revising"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// ResearchQuery describes what to research. Immutable once created.
type ResearchQuery struct {
	Topic        string   `json:"topic"`
	Subtopics    []string `json:"subtopics,omitempty"`
	Depth        int      `json:"depth_level"`
	Requirements string   `json:"requirements,omitempty"`
}

// Validate checks the query invariants: non-empty topic, depth 1-5.
func (q ResearchQuery) Validate() error {
	if strings.TrimSpace(q.Topic) == "" {
		return fmt.Errorf("query topic must not be empty")
	}
	if q.Depth < 1 || q.Depth > 5 {
		return fmt.Errorf("query depth must be between 1 and 5, got %d", q.Depth)
	}
	return nil
}

// ResearchSource is a cited source of information. Value type, no identity
// beyond URL+title.
type ResearchSource struct {
	Title           string     `json:"title"`
	URL             string     `json:"url,omitempty"`
	Content         string     `json:"content"`
	Credibility     float64    `json:"credibility_score"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
}

// Key returns the identity of a source for deduplication.
func (s ResearchSource) Key() string {
	return s.URL + "|" + s.Title
}

// ClampCredibility bounds the credibility score to [0,1] on ingest. Scores
// are never re-clamped after this initial validation.
func ClampCredibility(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ResearchSection is one titled section of a report.
type ResearchSection struct {
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	Sources    []ResearchSource `json:"sources,omitempty"`
	Confidence float64          `json:"confidence_score"`
}

// ResearchReport is a complete generated report. Reports are replaced
// wholesale on revision, never mutated in place.
type ResearchReport struct {
	ID         string                 `json:"id,omitempty"`
	Title      string                 `json:"title"`
	Abstract   string                 `json:"abstract"`
	Sections   []ResearchSection      `json:"sections"`
	Conclusion string                 `json:"conclusion"`
	Sources    []ResearchSource       `json:"sources"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// DedupeSources rebuilds the bibliography keeping the first occurrence of
// each URL+title identity, preserving order.
func DedupeSources(sources []ResearchSource) []ResearchSource {
	if len(sources) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(sources))
	out := make([]ResearchSource, 0, len(sources))
	for _, s := range sources {
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		out = append(out, s)
	}
	return out
}

// CritiqueFeedback is one critique cycle's verdict. Immutable.
type CritiqueFeedback struct {
	OverallScore        float64           `json:"overall_score"`
	Strengths           []string          `json:"strengths,omitempty"`
	Weaknesses          []string          `json:"weaknesses,omitempty"`
	Suggestions         []string          `json:"suggestions,omitempty"`
	SpecificCorrections map[string]string `json:"specific_corrections,omitempty"`
	PriorityIssues      []string          `json:"priority_issues,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// AgentMessage is one entry in a task's append-only progress log.
type AgentMessage struct {
	Role      AgentRole              `json:"agent_type"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ResearchTask tracks one research run. It is the only mutable aggregate;
// feedback history and agent messages are append-only.
type ResearchTask struct {
	ID              string                 `json:"id"`
	Query           ResearchQuery          `json:"query"`
	Status          TaskStatus             `json:"status"`
	CurrentReport   *ResearchReport        `json:"current_report,omitempty"`
	ReportHistory   []*ResearchReport      `json:"report_history,omitempty"`
	FeedbackHistory []CritiqueFeedback     `json:"feedback_history,omitempty"`
	AgentMessages   []AgentMessage         `json:"agent_messages,omitempty"`
	RetryCount      int                    `json:"retry_count"`
	MaxRetries      int                    `json:"max_retries"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
}

// Snapshot returns a copy of the task that is safe to read while the
// pipeline keeps mutating the original in the background. Reports are
// replaced wholesale, never edited, so sharing the report pointers is fine.
func (t *ResearchTask) Snapshot() *ResearchTask {
	cp := *t
	if t.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	cp.ReportHistory = append([]*ResearchReport(nil), t.ReportHistory...)
	cp.FeedbackHistory = append([]CritiqueFeedback(nil), t.FeedbackHistory...)
	cp.AgentMessages = append([]AgentMessage(nil), t.AgentMessages...)
	return &cp
}

// NewResearchTask creates a pending task for a query.
func NewResearchTask(query ResearchQuery, maxRetries int) *ResearchTask {
	now := time.Now().UTC()
	return &ResearchTask{
		ID:         uuid.NewString(),
		Query:      query,
		Status:     StatusPending,
		MaxRetries: maxRetries,
		Metadata:   make(map[string]interface{}),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// EvidenceItem is one ranked lookup result from an external source.
type EvidenceItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Kind    string `json:"kind"`
}

// EvidenceBundle groups lookup results by source kind. The shape is
// deterministic: every configured kind has a slot, possibly empty, so
// consumers branch on emptiness only.
type EvidenceBundle struct {
	Kinds []string                  `json:"kinds"`
	Slots map[string][]EvidenceItem `json:"slots"`
}

// NewEvidenceBundle builds an empty bundle with one slot per kind.
func NewEvidenceBundle(kinds []string) EvidenceBundle {
	b := EvidenceBundle{Kinds: append([]string(nil), kinds...), Slots: make(map[string][]EvidenceItem, len(kinds))}
	for _, k := range kinds {
		b.Slots[k] = []EvidenceItem{}
	}
	return b
}

// IsEmpty reports whether no source returned any result.
func (b EvidenceBundle) IsEmpty() bool {
	for _, items := range b.Slots {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

// Total returns the number of items across all slots.
func (b EvidenceBundle) Total() int {
	n := 0
	for _, items := range b.Slots {
		n += len(items)
	}
	return n
}
