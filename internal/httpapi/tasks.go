package httpapi

import (
	"net/http"

	"bank-risk-audit/internal/review"
	"bank-risk-audit/internal/workflow"

	"github.com/gin-gonic/gin"
)

func (h Handlers) ListTasks(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	f := review.TaskFilter{
		AssessmentID: c.Query("assessment_id"),
		AuditorID:    c.Query("auditor_id"),
		Stage:        workflow.Stage(c.Query("stage")),
		Status:       review.TaskStatus(c.Query("status")),
		OpenOnly:     c.Query("open") == "true",
		Limit:        limit,
	}
	if f.Stage != "" && !f.Stage.Valid() {
		badRequest(c, "unknown stage")
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		badRequest(c, "unknown status")
		return
	}
	tasks, err := h.Review.ListTasks(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h Handlers) MyTasks(c *gin.Context) {
	s, _, ok := session(c)
	if !ok {
		return
	}
	tasks, err := h.Review.MyTasks(c.Request.Context(), s.UserID, c.Query("include_completed") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Queue lists unclaimed tasks the caller's role may act on.
func (h Handlers) Queue(c *gin.Context) {
	_, role, ok := session(c)
	if !ok {
		return
	}
	tasks, err := h.Review.QueueForRole(c.Request.Context(), role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role, "tasks": tasks})
}

func (h Handlers) OverdueTasks(c *gin.Context) {
	tasks, err := h.Review.OverdueTasks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h Handlers) GetTask(c *gin.Context) {
	t, err := h.Review.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ClaimTask assigns the task to the caller.
func (h Handlers) ClaimTask(c *gin.Context) {
	s, _, ok := session(c)
	if !ok {
		return
	}
	t, err := h.Review.Claim(c.Request.Context(), c.Param("id"), s.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// CompleteTask records the caller's decision on a task they hold.
func (h Handlers) CompleteTask(c *gin.Context) {
	s, _, ok := session(c)
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	res, err := h.Review.Complete(c.Request.Context(), review.CompleteRequest{
		TaskID:    c.Param("id"),
		AuditorID: s.UserID,
		Decision:  req.Decision,
		Comments:  req.Comments,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
