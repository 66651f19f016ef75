package licence

import "errors"

// Sentinel errors for licence operations. Handlers map these to HTTP
// status codes with errors.Is; the mapping is part of the external
// contract and must not vary.
var (
	// ErrBadRequest indicates a required field (code or hwid) was empty.
	ErrBadRequest = errors.New("missing licence_code or hwid")

	// ErrNotFound indicates no licence exists for the given code or hwid.
	ErrNotFound = errors.New("licence not found")

	// ErrNotActivated covers both "never activated" and "wrong hwid".
	// The two cases are deliberately indistinguishable to callers so a
	// party presenting a wrong HWID learns nothing about licence state.
	ErrNotActivated = errors.New("hwid mismatch or licence not activated")

	// ErrExpired indicates the licence is past its validity window.
	ErrExpired = errors.New("licence expired")

	// ErrHWIDConflict indicates an activation attempt against a licence
	// already bound to a different machine.
	ErrHWIDConflict = errors.New("licence already activated on a different machine")

	// ErrDuplicateCode indicates a code collision on insert. With
	// 128-bit random codes this should never happen in practice.
	ErrDuplicateCode = errors.New("licence code already exists")

	// ErrLinkGeneration indicates the external object-store signer
	// failed to produce a download URL.
	ErrLinkGeneration = errors.New("failed to generate download link")

	// ErrUnavailable indicates a transient storage failure (connectivity
	// loss, timeout) as distinct from a definitive NotFound.
	ErrUnavailable = errors.New("licence store unavailable")
)
