package licence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// maxGenerateAttempts bounds the retry loop on code collision.
const maxGenerateAttempts = 3

// Service is the licence lifecycle engine. It is stateless apart from
// its Store reference and safe for concurrent use; the Store provides
// all atomicity the binding transition needs.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	activations metric.Int64Counter
	validations metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source. Used by tests to pin the expiry
// boundary.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the lifecycle engine on top of the given store.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger.With(slog.String("component", "licence")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("licence")
	s.activations, _ = meter.Int64Counter("licence_activations_total",
		metric.WithDescription("Licence activation attempts by outcome"))
	s.validations, _ = meter.Int64Counter("licence_validations_total",
		metric.WithDescription("Licence validation checks by outcome"))

	return s
}

// Generate issues a new licence: a unique 128-bit code and an expiry of
// ValidityWindow from now. Collisions are retried a bounded number of
// times before giving up; with full-entropy codes the retry path should
// never execute.
func (s *Service) Generate(ctx context.Context) (*Licence, error) {
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		code, err := NewCode()
		if err != nil {
			return nil, fmt.Errorf("generate licence code: %w", err)
		}

		now := s.now().UTC()
		l := &Licence{
			Code:     code,
			IssuedAt: now,
			Expiry:   now.Add(ValidityWindow),
		}

		err = s.store.Insert(ctx, l)
		if errors.Is(err, ErrDuplicateCode) {
			s.logger.WarnContext(ctx, "licence code collision, regenerating",
				slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.InfoContext(ctx, "licence issued",
			slog.String("licence_code", l.Code),
			slog.Time("expiry", l.Expiry))
		return l, nil
	}
	return nil, ErrDuplicateCode
}

// Activate binds code to hwid. The transition is evaluated atomically by
// the store: an unbound licence is bound and marked activated; a licence
// already bound to the same hwid succeeds without state change so client
// retries are safe; a licence bound to a different hwid fails with
// ErrHWIDConflict. Two racing activations with different HWIDs can never
// both succeed.
func (s *Service) Activate(ctx context.Context, code, hwid string) error {
	if code == "" || hwid == "" {
		return ErrBadRequest
	}

	outcome, err := s.store.CompareAndBind(ctx, code, hwid)
	if err != nil {
		return err
	}
	s.activations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome.String())))

	switch outcome {
	case BindOutcomeBound:
		s.logger.InfoContext(ctx, "licence activated",
			slog.String("licence_code", code))
		return nil
	case BindOutcomeAlreadyBoundSame:
		s.logger.InfoContext(ctx, "licence re-activation on same machine",
			slog.String("licence_code", code))
		return nil
	case BindOutcomeConflict:
		s.logger.WarnContext(ctx, "licence activation rejected, hwid conflict",
			slog.String("licence_code", code))
		return ErrHWIDConflict
	default:
		return ErrNotFound
	}
}

// Validate checks that code exists, is bound to hwid, and is not past
// its validity window. Precedence is fixed: not-found, then
// mismatch-or-unactivated, then expired. A licence that is both
// mismatched and expired reports the mismatch so expiry state never
// leaks to a party presenting the wrong HWID.
func (s *Service) Validate(ctx context.Context, code, hwid string) error {
	l, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	var outcome string
	defer func() {
		s.validations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome)))
	}()

	if !l.Activated || l.HWID != hwid {
		outcome = "mismatch"
		return ErrNotActivated
	}
	if l.ExpiredAt(s.now()) {
		outcome = "expired"
		return ErrExpired
	}
	outcome = "valid"
	return nil
}

// ValidateByHWID checks the licence bound to hwid. A stored binding
// implies activation (the Store invariant), so only existence and
// expiry are checked here.
func (s *Service) ValidateByHWID(ctx context.Context, hwid string) error {
	if hwid == "" {
		return ErrBadRequest
	}

	l, err := s.store.GetByHWID(ctx, hwid)
	if err != nil {
		return err
	}
	if l.ExpiredAt(s.now()) {
		return ErrExpired
	}
	return nil
}

// List returns the full licence inventory for administrative audit.
// The snapshot is unbounded; callers paginate at their own peril.
func (s *Service) List(ctx context.Context) ([]Licence, error) {
	return s.store.List(ctx)
}
