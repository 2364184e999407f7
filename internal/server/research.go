package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/scholar/internal/research"
)

// Runner starts research tasks. Satisfied by the coordinator.
type Runner interface {
	Submit(ctx context.Context, query research.ResearchQuery) (*research.ResearchTask, error)
}

// ResearchHandler serves the research task endpoints.
type ResearchHandler struct {
	Runner Runner
	Store  research.TaskStore
}

// Register mounts the research routes on the given group.
func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/research", h.create)
	g.GET("/research", h.list)
	g.GET("/research/:id/status", h.status)
	g.GET("/research/:id/report", h.report)
	g.GET("/research/:id/messages", h.messages)
}

type createRequest struct {
	Topic        string   `json:"topic"`
	Subtopics    []string `json:"subtopics"`
	Depth        int      `json:"depth_level"`
	Requirements string   `json:"requirements"`
}

func (h *ResearchHandler) create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Depth == 0 {
		req.Depth = 3
	}
	query := research.ResearchQuery{
		Topic:        req.Topic,
		Subtopics:    req.Subtopics,
		Depth:        req.Depth,
		Requirements: req.Requirements,
	}
	if err := query.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	task, err := h.Runner.Submit(c.Request().Context(), query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"task_id": task.ID,
		"status":  task.Status,
	})
}

func (h *ResearchHandler) list(c echo.Context) error {
	tasks, err := h.Store.ListTasks(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, statusBody(task))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tasks": out})
}

func (h *ResearchHandler) status(c echo.Context) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusBody(task))
}

func (h *ResearchHandler) report(c echo.Context) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}
	if task.CurrentReport == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no report available yet")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"task_id": task.ID,
		"status":  task.Status,
		"report":  task.CurrentReport,
	})
}

func (h *ResearchHandler) messages(c echo.Context) error {
	task, err := h.loadTask(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"task_id":  task.ID,
		"messages": task.AgentMessages,
	})
}

func (h *ResearchHandler) loadTask(c echo.Context) (*research.ResearchTask, error) {
	task, err := h.Store.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return task, nil
}

func statusBody(task *research.ResearchTask) map[string]interface{} {
	body := map[string]interface{}{
		"task_id":        task.ID,
		"topic":          task.Query.Topic,
		"status":         task.Status,
		"retry_count":    task.RetryCount,
		"max_retries":    task.MaxRetries,
		"has_report":     task.CurrentReport != nil,
		"feedback_count": len(task.FeedbackHistory),
		"message_count":  len(task.AgentMessages),
		"created_at":     task.CreatedAt,
		"updated_at":     task.UpdatedAt,
	}
	if n := len(task.FeedbackHistory); n > 0 {
		body["latest_score"] = task.FeedbackHistory[n-1].OverallScore
	}
	if task.CompletedAt != nil {
		body["completed_at"] = task.CompletedAt
	}
	return body
}
