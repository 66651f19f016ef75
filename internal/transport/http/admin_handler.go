package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/FinHutch/licencecheck/internal/licence"
)

// AdminHandler serves the operator endpoints. Both routes sit behind
// the admin-key middleware; the handler itself performs no auth.
type AdminHandler struct {
	service *licence.Service
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewAdminHandler creates the handler.
func NewAdminHandler(service *licence.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger,
		tracer:  otel.Tracer("transport/http"),
	}
}

// GenerateResponse is the body returned by POST /generate_code.
type GenerateResponse struct {
	LicenceCode string    `json:"licence_code"`
	Expiry      time.Time `json:"expiry"`
}

// Render implements render.Renderer.
func (g *GenerateResponse) Render(w http.ResponseWriter, r *http.Request) error { return nil }

// LicenceView is the admin listing projection of a licence record.
// HWID is a pointer so unbound licences serialize as null rather
// than the empty string.
type LicenceView struct {
	LicenceCode string     `json:"licence_code"`
	HWID        *string    `json:"hwid"`
	IssuedAt    time.Time  `json:"issued_at"`
	Expiry      time.Time  `json:"expiry"`
	Activated   bool       `json:"activated"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// Generate handles POST /generate_code.
func (h *AdminHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "licence.generate")
	defer span.End()

	lic, err := h.service.Generate(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "licence generation failed", slog.String("error", err.Error()))
		render.Render(w, r, MapLicenceError(err))
		return
	}

	h.logger.InfoContext(ctx, "licence issued",
		slog.String("licence_code", lic.Code),
		slog.Time("expiry", lic.Expiry))
	render.Render(w, r, &GenerateResponse{LicenceCode: lic.Code, Expiry: lic.Expiry})
}

// List handles GET /admin/list_licences.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "licence.list")
	defer span.End()

	records, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "licence listing failed", slog.String("error", err.Error()))
		render.Render(w, r, MapLicenceError(err))
		return
	}

	views := make([]LicenceView, 0, len(records))
	for _, lic := range records {
		v := LicenceView{
			LicenceCode: lic.Code,
			IssuedAt:    lic.IssuedAt,
			Expiry:      lic.Expiry,
			Activated:   lic.Activated,
			ActivatedAt: lic.ActivatedAt,
		}
		if lic.HWID != "" {
			hwid := lic.HWID
			v.HWID = &hwid
		}
		views = append(views, v)
	}

	render.JSON(w, r, views)
}
