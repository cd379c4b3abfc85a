package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"cot-lab/internal/socrata"
	"cot-lab/internal/storage"
)

// ErrResponse is the JSON body of every failed request.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	Status         string `json:"status"`
	Error          string `json:"error"`
}

// Render implements render.Renderer.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func badRequest(param string, err error) error {
	return fmt.Errorf("%w: parameter %s: %w", storage.ErrInvalidInput, param, err)
}

// statusOf maps an error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, socrata.ErrTransport), errors.Is(err, socrata.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	entry := h.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= 500 {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	render.Render(w, r, &ErrResponse{
		HTTPStatusCode: status,
		Status:         http.StatusText(status),
		Error:          err.Error(),
	})
}
