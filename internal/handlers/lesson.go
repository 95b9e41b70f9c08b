package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/repos"
	"github.com/ugta/ugta-backend/internal/services"
	"github.com/ugta/ugta-backend/internal/types"
	"github.com/ugta/ugta-backend/internal/utils"
)

type LessonRequest struct {
	Chat  string `json:"chat" binding:"required"`
	Model string `json:"model"`
}

type LessonDraftResponse struct {
	Task  types.TaskSpec    `json:"task"`
	Draft types.LessonDraft `json:"draft"`
	Notes []string          `json:"notes,omitempty"`
}

type LessonHandler struct {
	log      *logger.Logger
	pipeline services.LessonPipelineService
	runs     repos.LessonRunRepo // nil when persistence is disabled
	baseURL  string              // overrides request-derived base when set
}

func NewLessonHandler(log *logger.Logger, pipeline services.LessonPipelineService, runs repos.LessonRunRepo) *LessonHandler {
	return &LessonHandler{
		log:      log.With("handler", "LessonHandler"),
		pipeline: pipeline,
		runs:     runs,
		baseURL:  strings.TrimRight(utils.GetEnv("PUBLIC_BASE_URL", "", log), "/"),
	}
}

// Generate runs normalize + notes + draft and returns the draft without
// touching the filesystem.
func (h *LessonHandler) Generate(c *gin.Context) {
	var req LessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	task, draft, notes, err := h.pipeline.BuildLessonDraft(c.Request.Context(), req.Chat, req.Model)
	if err != nil {
		h.log.Error("lesson draft failed", "error", err)
		RespondError(c, http.StatusBadGateway, "LESSON_FAILED", err.Error())
		return
	}
	RespondOK(c, http.StatusOK, LessonDraftResponse{Task: task, Draft: draft, Notes: notes})
}

// Lesson returns just the draft body, for clients that render assets
// themselves.
func (h *LessonHandler) Lesson(c *gin.Context) {
	var req LessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	_, draft, _, err := h.pipeline.BuildLessonDraft(c.Request.Context(), req.Chat, req.Model)
	if err != nil {
		h.log.Error("lesson draft failed", "error", err)
		RespondError(c, http.StatusBadGateway, "LESSON_FAILED", err.Error())
		return
	}
	RespondOK(c, http.StatusOK, draft)
}

// LessonRendered runs the full pipeline: draft, asset rendering, the diagram
// repair pass, and URL stitching against the caller-visible base URL.
func (h *LessonHandler) LessonRendered(c *gin.Context) {
	var req LessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	lesson, err := h.pipeline.BuildRenderedLesson(c.Request.Context(), req.Chat, req.Model, h.requestBaseURL(c))
	if err != nil {
		h.log.Error("rendered lesson failed", "error", err)
		RespondError(c, http.StatusBadGateway, "LESSON_FAILED", err.Error())
		return
	}
	RespondOK(c, http.StatusOK, lesson)
}

// ListRuns exposes recent pipeline runs when persistence is enabled.
func (h *LessonHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		RespondError(c, http.StatusNotImplemented, "PERSISTENCE_DISABLED", "run history requires a database")
		return
	}
	rows, err := h.runs.ListRecent(c.Request.Context(), nil, 50)
	if err != nil {
		h.log.Error("list runs failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "LIST_RUNS_FAILED", err.Error())
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"runs": rows})
}

func (h *LessonHandler) requestBaseURL(c *gin.Context) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}
