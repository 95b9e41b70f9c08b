package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/retrieval"
)

type NotesHandler struct {
	log   *logger.Logger
	notes retrieval.NotesService
}

func NewNotesHandler(log *logger.Logger, notes retrieval.NotesService) *NotesHandler {
	return &NotesHandler{
		log:   log.With("handler", "NotesHandler"),
		notes: notes,
	}
}

func (h *NotesHandler) HelpfulNotes(c *gin.Context) {
	var req retrieval.NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if len(req.Queries) == 0 {
		RespondError(c, http.StatusBadRequest, "INVALID_BODY", "queries must not be empty")
		return
	}

	notes, err := h.notes.HelpfulNotes(c.Request.Context(), req.Queries)
	if err != nil {
		h.log.Error("helpful notes failed", "error", err)
		RespondError(c, http.StatusBadGateway, "NOTES_FAILED", err.Error())
		return
	}
	if notes == nil {
		notes = []string{}
	}
	RespondOK(c, http.StatusOK, retrieval.NotesResponse{Notes: notes})
}
