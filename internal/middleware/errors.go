package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "flatex_bot/internal/errors"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError translates err and writes it as JSON with the matching status.
// Internal causes are not exposed.
func WriteError(w http.ResponseWriter, err error) {
	app := apperrors.Translate(err)
	body := ErrorBody{Error: app.Error(), Details: app.Details}
	if errors.Is(app, apperrors.ErrInternal) {
		body = ErrorBody{Error: "internal server error"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(app))
	json.NewEncoder(w).Encode(body)
}
