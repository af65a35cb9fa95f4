package handlers

import (
	"log/slog"
	"net/http"

	middleware "github.com/markdave123-py/docflow/internal/api/middlewares"
	"github.com/markdave123-py/docflow/internal/services"
)

type ChatHandler struct {
	chat   *services.ChatService
	logger *slog.Logger
}

func NewChatHandler(chat *services.ChatService, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{chat: chat, logger: logger.With("component", "api")}
}

type ChatRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// QueryDocuments answers a question from the caller's embedded documents.
func (h *ChatHandler) QueryDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "tenant not found in token"})
		return
	}

	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	answer, err := h.chat.Ask(r.Context(), tenantID, req.Query, req.TopK)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
