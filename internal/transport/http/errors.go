package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/FinHutch/licencecheck/internal/licence"
)

// ErrResponse is the uniform error body. Clients key on the message
// string, so the texts below are part of the wire contract.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	Msg  string `json:"msg"`
	Code string `json:"code,omitempty"`
}

// Render implements render.Renderer.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// ErrInvalidRequest maps an undecodable or incomplete request body.
func ErrInvalidRequest(err error, msg string) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		Msg:            msg,
	}
}

// ErrInternal is the catch-all for faults the caller cannot act on.
func ErrInternal(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		Msg:            "Internal server error",
	}
}

// MapLicenceError converts an engine error into its contractual
// status and message. Unknown errors collapse to 500 so internals
// never leak to clients.
func MapLicenceError(err error) render.Renderer {
	switch {
	case errors.Is(err, licence.ErrBadRequest):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusBadRequest, Msg: "Missing licence_code or hwid"}
	case errors.Is(err, licence.ErrNotFound):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusNotFound, Msg: "Licence not found"}
	case errors.Is(err, licence.ErrNotActivated):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusForbidden, Msg: "HWID mismatch or licence not activated"}
	case errors.Is(err, licence.ErrExpired):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusForbidden, Msg: "Licence expired"}
	case errors.Is(err, licence.ErrHWIDConflict):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusForbidden, Msg: "Licence already activated on a different machine"}
	case errors.Is(err, licence.ErrDuplicateCode):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusInternalServerError, Msg: "Could not issue licence"}
	case errors.Is(err, licence.ErrLinkGeneration):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusInternalServerError, Msg: "Could not generate link"}
	case errors.Is(err, licence.ErrUnavailable):
		return &ErrResponse{Err: err, HTTPStatusCode: http.StatusServiceUnavailable, Msg: "Service temporarily unavailable"}
	default:
		return ErrInternal(err)
	}
}
