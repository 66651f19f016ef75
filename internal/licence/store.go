package licence

import "context"

// BindOutcome is the result of an atomic compare-and-bind on one code.
type BindOutcome int

const (
	// BindOutcomeNotFound means no licence exists for the code.
	BindOutcomeNotFound BindOutcome = iota
	// BindOutcomeBound means this call won the binding transition.
	BindOutcomeBound
	// BindOutcomeAlreadyBoundSame means the licence was already bound to
	// the same HWID; no state changed.
	BindOutcomeAlreadyBoundSame
	// BindOutcomeConflict means the licence is bound to a different HWID.
	BindOutcomeConflict
)

// String returns the outcome name for logs.
func (o BindOutcome) String() string {
	switch o {
	case BindOutcomeBound:
		return "bound"
	case BindOutcomeAlreadyBoundSame:
		return "already_bound_same"
	case BindOutcomeConflict:
		return "conflict"
	default:
		return "not_found"
	}
}

// Store is the durable keyed storage contract for licence records.
// Implementations must return the package sentinel errors (ErrNotFound,
// ErrDuplicateCode) for definitive outcomes and wrap transient failures
// in ErrUnavailable.
type Store interface {
	// Insert persists a freshly issued licence. Returns ErrDuplicateCode
	// if the code already exists.
	Insert(ctx context.Context, l *Licence) error

	// GetByCode returns the licence for code, or ErrNotFound.
	GetByCode(ctx context.Context, code string) (*Licence, error)

	// GetByHWID returns the licence bound to hwid, or ErrNotFound. HWID
	// is not unique in the data model; when several licences share one
	// hwid the earliest-issued wins, with the code as a final tie-break,
	// so the result is deterministic across calls and implementations.
	GetByHWID(ctx context.Context, hwid string) (*Licence, error)

	// CompareAndBind reads the current binding state of code and applies
	// the bind transition as one atomic unit with respect to concurrent
	// callers on the same code. Exactly one of N racing callers with
	// distinct HWIDs observes BindOutcomeBound.
	CompareAndBind(ctx context.Context, code, hwid string) (BindOutcome, error)

	// List returns a full snapshot of all licences, ordered by issuance
	// time then code. The result is unbounded; there is no pagination.
	List(ctx context.Context) ([]Licence, error)
}
