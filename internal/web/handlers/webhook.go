package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/znz-systems/sesdash/internal/ingest"
)

// WebhookHandler receives provider notifications.
type WebhookHandler struct {
	ingest  *ingest.Service
	maxBody int64
}

func NewWebhookHandler(svc *ingest.Service, maxBody int64) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = 256 << 10
	}
	return &WebhookHandler{ingest: svc, maxBody: maxBody}
}

// HandleSES accepts an SNS envelope or a bare SES event as the request body.
func (h *WebhookHandler) HandleSES(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, jsonResponse{Error: "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: "failed to read body"})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, jsonResponse{Error: "empty payload"})
		return
	}

	res, err := h.ingest.HandleNotification(r.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidPayload), errors.Is(err, ingest.ErrUnsupportedMessageType):
			slog.Warn("rejected webhook payload", "error", err)
			writeJSON(w, http.StatusBadRequest, jsonResponse{Error: err.Error()})
		case errors.Is(err, ingest.ErrConfirmationFailed):
			slog.Error("SNS subscription confirmation failed", "error", err)
			writeJSON(w, http.StatusBadGateway, jsonResponse{Error: "subscription confirmation failed"})
		default:
			slog.Error("failed to ingest webhook", "error", err)
			writeJSON(w, http.StatusInternalServerError, jsonResponse{Error: "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"outcome": res.Outcome,
	})
}
