package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ugta/ugta-backend/internal/llm"
	"github.com/ugta/ugta-backend/internal/logger"
)

type NormalizeRequest struct {
	Chat     string         `json:"chat" binding:"required"`
	Defaults map[string]any `json:"defaults"`
	Model    string         `json:"model"`
}

type NormalizeHandler struct {
	log     *logger.Logger
	gateway llm.Gateway
}

func NewNormalizeHandler(log *logger.Logger, gateway llm.Gateway) *NormalizeHandler {
	return &NormalizeHandler{
		log:     log.With("handler", "NormalizeHandler"),
		gateway: gateway,
	}
}

// Normalize turns a free-form chat message into a structured TaskSpec.
func (h *NormalizeHandler) Normalize(c *gin.Context) {
	var req NormalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if strings.TrimSpace(req.Chat) == "" {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", "chat must not be empty")
		return
	}

	task, err := h.gateway.NormalizeTask(c.Request.Context(), req.Chat, req.Defaults, req.Model)
	if err != nil {
		h.log.Error("normalize failed", "error", err)
		RespondError(c, http.StatusBadGateway, "NORMALIZE_FAILED", err.Error())
		return
	}
	RespondOK(c, http.StatusOK, task)
}
