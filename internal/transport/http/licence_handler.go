package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FinHutch/licencecheck/internal/licence"
	"github.com/FinHutch/licencecheck/internal/signer"
)

var validate = validator.New()

// LicenceHandler serves the client-facing licence endpoints.
type LicenceHandler struct {
	service *licence.Service
	signer  signer.Signer
	linkTTL time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewLicenceHandler creates the handler. The signer may be nil when no
// object store is configured; /get_link then answers 500 for every key.
func NewLicenceHandler(service *licence.Service, s signer.Signer, linkTTL time.Duration, logger *slog.Logger) *LicenceHandler {
	return &LicenceHandler{
		service: service,
		signer:  s,
		linkTTL: linkTTL,
		logger:  logger,
		tracer:  otel.Tracer("transport/http"),
	}
}

// ActivateRequest binds a licence to a machine.
type ActivateRequest struct {
	LicenceCode string `json:"licence_code" validate:"required"`
	HWID        string `json:"hwid" validate:"required"`
}

// Bind implements render.Binder.
func (a *ActivateRequest) Bind(r *http.Request) error {
	return validate.Struct(a)
}

// CheckRequest carries the credentials for a validity check. Fields
// are optional at decode time; missing values fall through to the
// lookup and surface as 404/403, matching the published contract.
type CheckRequest struct {
	LicenceCode string `json:"licence_code"`
	HWID        string `json:"hwid"`
}

// Bind implements render.Binder.
func (c *CheckRequest) Bind(r *http.Request) error { return nil }

// CheckHWIDRequest looks a licence up by machine identifier alone.
type CheckHWIDRequest struct {
	HWID string `json:"hwid"`
}

// Bind implements render.Binder.
func (c *CheckHWIDRequest) Bind(r *http.Request) error { return nil }

// MsgResponse is the generic success envelope.
type MsgResponse struct {
	Msg         string `json:"msg"`
	LicenceCode string `json:"licence_code,omitempty"`
}

// Render implements render.Renderer.
func (m *MsgResponse) Render(w http.ResponseWriter, r *http.Request) error { return nil }

// LinkResponse carries a time-limited download URL.
type LinkResponse struct {
	URL string `json:"url"`
}

// Render implements render.Renderer.
func (l *LinkResponse) Render(w http.ResponseWriter, r *http.Request) error { return nil }

// Activate handles POST /activate.
func (h *LicenceHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "licence.activate")
	defer span.End()

	data := &ActivateRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err, "Missing licence_code or hwid"))
		return
	}

	code := strings.TrimSpace(data.LicenceCode)
	hwid := strings.TrimSpace(data.HWID)
	span.SetAttributes(attribute.String("licence.code", code))

	if err := h.service.Activate(ctx, code, hwid); err != nil {
		h.logger.InfoContext(ctx, "activation rejected",
			slog.String("licence_code", code),
			slog.String("error", err.Error()))
		render.Render(w, r, MapLicenceError(err))
		return
	}

	h.logger.InfoContext(ctx, "licence activated", slog.String("licence_code", code))
	render.Render(w, r, &MsgResponse{
		Msg:         "Licence activated successfully.",
		LicenceCode: code,
	})
}

// Check handles POST /check.
func (h *LicenceHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "licence.check")
	defer span.End()

	data := &CheckRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err, "Invalid request body"))
		return
	}

	err := h.service.Validate(ctx, strings.TrimSpace(data.LicenceCode), strings.TrimSpace(data.HWID))
	if err != nil {
		render.Render(w, r, MapLicenceError(err))
		return
	}

	render.Render(w, r, &MsgResponse{Msg: "Licence valid"})
}

// CheckHWID handles POST /check_hwid.
func (h *LicenceHandler) CheckHWID(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "licence.check_hwid")
	defer span.End()

	data := &CheckHWIDRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err, "Missing HWID"))
		return
	}
	if strings.TrimSpace(data.HWID) == "" {
		render.Render(w, r, ErrInvalidRequest(nil, "Missing HWID"))
		return
	}

	if err := h.service.ValidateByHWID(ctx, strings.TrimSpace(data.HWID)); err != nil {
		render.Render(w, r, MapLicenceError(err))
		return
	}

	render.Render(w, r, &MsgResponse{Msg: "Licence valid"})
}

// GetLink handles GET /get_link/{key}. Licence credentials arrive as
// the licence_code and hwid query parameters; a JSON body is accepted
// as a fallback for clients that send one. Missing credentials fall
// through to the lookup and surface as 404.
func (h *LicenceHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "licence.get_link")
	defer span.End()

	key := chi.URLParam(r, "*")
	span.SetAttributes(attribute.String("object.key", key))

	query := r.URL.Query()
	code := query.Get("licence_code")
	hwid := query.Get("hwid")
	if code == "" && hwid == "" && r.Body != nil {
		data := &CheckRequest{}
		_ = json.NewDecoder(r.Body).Decode(data)
		code, hwid = data.LicenceCode, data.HWID
	}

	err := h.service.Validate(ctx, strings.TrimSpace(code), strings.TrimSpace(hwid))
	if err != nil {
		render.Render(w, r, MapLicenceError(err))
		return
	}

	if h.signer == nil {
		h.logger.ErrorContext(ctx, "link requested but no object store configured")
		render.Render(w, r, MapLicenceError(licence.ErrLinkGeneration))
		return
	}

	url, err := h.signer.PresignedGet(ctx, key, h.linkTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "presign failed",
			slog.String("object_key", key),
			slog.String("error", err.Error()))
		render.Render(w, r, MapLicenceError(licence.ErrLinkGeneration))
		return
	}

	render.Render(w, r, &LinkResponse{URL: url})
}
