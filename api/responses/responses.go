// Package responses centralizes the HTTP envelope so every controller
// returns the same success and error shapes.
package responses

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

type successEnvelope struct {
	Data any `json:"data"`
}

// APIError is the wire form of an error. Message is always the public
// message for the code; internal detail never leaks past the logger.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}

// WriteSuccess writes data inside the standard envelope with a 200.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

// WriteSuccessStatus writes data inside the standard envelope with the
// given status.
func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Data: data})
}

// WriteError maps err onto the envelope. Coded errors pick their status and
// public message from the error metadata; anything else becomes a 500.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := errors.As(err)
	if typed == nil {
		typed = errors.Wrap(errors.CodeInternal, err, "unhandled error")
	}

	meta := errors.MetadataFor(typed.Code())
	if logg != nil {
		logCtx := logg.WithField(ctx, "error_code", string(typed.Code()))
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(logCtx, "request failed", err)
		} else {
			logg.Warn(logCtx, "request failed: "+typed.Message())
		}
	}

	apiErr := APIError{
		Code:    string(typed.Code()),
		Message: meta.PublicMessage,
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}
	writeJSON(w, meta.HTTPStatus, errorEnvelope{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
