package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/scholar/internal/research"
	"github.com/mohammad-safakhou/scholar/internal/store"
)

type stubRunner struct {
	store research.TaskStore
	err   error
	last  *research.ResearchTask
}

func (r *stubRunner) Submit(ctx context.Context, query research.ResearchQuery) (*research.ResearchTask, error) {
	if r.err != nil {
		return nil, r.err
	}
	task := research.NewResearchTask(query, 3)
	if err := r.store.SaveTask(ctx, task); err != nil {
		return nil, err
	}
	r.last = task
	return task, nil
}

func newTestHandler() (*ResearchHandler, *store.MemoryStore, *stubRunner) {
	st := store.NewMemoryStore()
	runner := &stubRunner{store: st}
	return &ResearchHandler{Runner: runner, Store: st}, st, runner
}

func doRequest(h *ResearchHandler, method, path, body string) *httptest.ResponseRecorder {
	e := newEcho()
	h.Register(e.Group("/api"))
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateResearchTask(t *testing.T) {
	h, _, runner := newTestHandler()
	rec := doRequest(h, http.MethodPost, "/api/research", `{"topic": "ocean acidification", "depth_level": 2}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["task_id"] != runner.last.ID {
		t.Fatalf("unexpected task_id: %v", body["task_id"])
	}
	if body["status"] != string(research.StatusPending) {
		t.Fatalf("unexpected status: %v", body["status"])
	}
}

func TestCreateResearchTaskDefaultsDepth(t *testing.T) {
	h, _, runner := newTestHandler()
	rec := doRequest(h, http.MethodPost, "/api/research", `{"topic": "soil carbon"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if runner.last.Query.Depth != 3 {
		t.Fatalf("expected default depth 3, got %d", runner.last.Query.Depth)
	}
}

func TestCreateResearchTaskValidation(t *testing.T) {
	h, _, _ := newTestHandler()
	cases := []string{
		`{"topic": "", "depth_level": 2}`,
		`{"topic": "x", "depth_level": 9}`,
		`not json`,
	}
	for _, body := range cases {
		rec := doRequest(h, http.MethodPost, "/api/research", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", body, rec.Code)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	h, st, _ := newTestHandler()
	task := research.NewResearchTask(research.ResearchQuery{Topic: "graphene", Depth: 2}, 3)
	task.Status = research.StatusReviewing
	task.RetryCount = 1
	task.FeedbackHistory = []research.CritiqueFeedback{{OverallScore: 6.5}}
	if err := st.SaveTask(context.Background(), task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	rec := doRequest(h, http.MethodGet, "/api/research/"+task.ID+"/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != string(research.StatusReviewing) {
		t.Fatalf("unexpected status: %v", body["status"])
	}
	if body["latest_score"] != 6.5 {
		t.Fatalf("unexpected latest_score: %v", body["latest_score"])
	}
	if body["feedback_count"] != 1.0 {
		t.Fatalf("unexpected feedback_count: %v", body["feedback_count"])
	}
	if body["has_report"] != false {
		t.Fatalf("unexpected has_report: %v", body["has_report"])
	}
}

func TestStatusNotFound(t *testing.T) {
	h, _, _ := newTestHandler()
	rec := doRequest(h, http.MethodGet, "/api/research/nope/status", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	h, st, _ := newTestHandler()
	task := research.NewResearchTask(research.ResearchQuery{Topic: "graphene", Depth: 2}, 3)

	if err := st.SaveTask(context.Background(), task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	rec := doRequest(h, http.MethodGet, "/api/research/"+task.ID+"/report", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before a report exists, got %d", rec.Code)
	}

	task.CurrentReport = &research.ResearchReport{Title: "Research Report: graphene", Abstract: "a"}
	if err := st.SaveTask(context.Background(), task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	rec = doRequest(h, http.MethodGet, "/api/research/"+task.ID+"/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Report research.ResearchReport `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Report.Title != "Research Report: graphene" {
		t.Fatalf("unexpected report title: %q", body.Report.Title)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	h, st, _ := newTestHandler()
	task := research.NewResearchTask(research.ResearchQuery{Topic: "graphene", Depth: 2}, 3)
	task.AgentMessages = []research.AgentMessage{
		{Role: research.RoleProducer, Message: "Conducting initial research..."},
		{Role: research.RoleCritic, Message: "Critique completed. Overall score: 8.0/10"},
	}
	if err := st.SaveTask(context.Background(), task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	rec := doRequest(h, http.MethodGet, "/api/research/"+task.ID+"/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Messages []research.AgentMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Messages) != 2 || body.Messages[1].Role != research.RoleCritic {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
}

func TestListEndpoint(t *testing.T) {
	h, st, _ := newTestHandler()
	for i := 0; i < 3; i++ {
		task := research.NewResearchTask(research.ResearchQuery{Topic: fmt.Sprintf("topic %d", i), Depth: 1}, 1)
		if err := st.SaveTask(context.Background(), task); err != nil {
			t.Fatalf("SaveTask: %v", err)
		}
	}
	rec := doRequest(h, http.MethodGet, "/api/research", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Tasks []map[string]interface{} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(body.Tasks))
	}
}

func TestSubmitFailureSurfacesError(t *testing.T) {
	h, _, runner := newTestHandler()
	runner.err = fmt.Errorf("store down")
	rec := doRequest(h, http.MethodPost, "/api/research", `{"topic": "x", "depth_level": 1}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
