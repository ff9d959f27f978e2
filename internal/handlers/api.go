package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"flatex_bot/internal/chat"
	apperrors "flatex_bot/internal/errors"
	"flatex_bot/internal/middleware"
	"flatex_bot/internal/services"
)

const (
	maxCommandLength = 1024
	defaultAuditSize = 20
	maxAuditSize     = 500
	webhookSender    = "webhook"
)

// Handler serves the admin and webhook routes.
type Handler struct {
	commands CommandRunner
	status   StatusSource
	audit    *services.AuditService
	logger   *zap.Logger
}

// NewHandler creates a Handler from deps.
func NewHandler(deps *Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		commands: deps.Commands,
		status:   deps.Status,
		audit:    deps.AuditService,
		logger:   logger.Named("http"),
	}
}

// Health returns the server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns the brokerage session state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		middleware.WriteError(w, apperrors.New(apperrors.ErrUnavailable, "session not configured"))
		return
	}
	h.writeJSON(w, http.StatusOK, h.status.DebugInfo())
}

// CommandRequest is the body of POST /commands.
type CommandRequest struct {
	Command string `json:"command"`
	Sender  string `json:"sender,omitempty"`
}

// CommandResponse lists the replies the command produced.
type CommandResponse struct {
	Replies []chat.Message `json:"replies"`
}

// Commands runs a command line as if it was posted in the chat room.
func (h *Handler) Commands(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, apperrors.Validation("invalid JSON body"))
		return
	}

	var verr middleware.ValidationErrors
	if !middleware.ValidateRequired(req.Command) {
		verr.Add("command", "is required")
	} else if !middleware.ValidateLength(req.Command, 1, maxCommandLength) {
		verr.Add("command", "is too long")
	}
	if verr.HasErrors() {
		verr.WriteJSON(w)
		return
	}
	if req.Sender == "" {
		req.Sender = webhookSender
	}

	var out chat.Buffer
	h.commands.Execute(r.Context(), req.Sender, chat.Sanitize(req.Command), &out)

	replies := out.Messages()
	if replies == nil {
		replies = []chat.Message{}
	}
	h.writeJSON(w, http.StatusOK, CommandResponse{Replies: replies})
}

// Audit lists audit entries, newest first, or the history of one order
// when order_id is given.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		middleware.WriteError(w, apperrors.New(apperrors.ErrUnavailable, "audit log not configured"))
		return
	}

	var (
		entries []*services.AuditEntry
		err     error
	)
	if orderID := r.URL.Query().Get("order_id"); orderID != "" {
		entries, err = h.audit.GetByOrderID(orderID)
	} else {
		limit := defaultAuditSize
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, perr := strconv.Atoi(raw)
			if perr != nil || n <= 0 || n > maxAuditSize {
				middleware.WriteError(w, apperrors.Validation("limit must be between 1 and "+strconv.Itoa(maxAuditSize)))
				return
			}
			limit = n
		}
		entries, err = h.audit.GetRecent(limit)
	}
	if err != nil {
		h.logger.Error("reading audit log failed", zap.Error(err))
		middleware.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*services.AuditEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}
