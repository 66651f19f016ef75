// Package licence implements the licence lifecycle core: issuance of
// hardware-bound licence codes, one-time HWID binding, and validation
// against binding and expiry.
//
// # Architecture Overview
//
// The package is split into three pieces:
//
//	- Licence: the single persisted entity (code, hwid, expiry, activated)
//	- Store: durable keyed storage contract with an atomic bind operation
//	- Service: the stateless lifecycle engine driving all transitions
//
// # Lifecycle
//
// A licence moves through exactly two persisted states:
//
//	Issued(unbound)  -->  Issued(bound)
//
// The transition is performed by Store.CompareAndBind as a single atomic
// unit. Once bound, the hwid and activated fields never change again, and
// expiry is fixed at issuance time. These invariants make validation by
// HWID sound without re-checking the activated flag.
//
// # Concurrency
//
// The Service carries no mutable state and is safe for concurrent use.
// Two concurrent activations of the same code with different HWIDs
// resolve deterministically: exactly one observes BindOutcomeBound, the
// other BindOutcomeConflict. This is the central anti-sharing control of
// the system and must hold under any Store implementation.
//
// # Error Handling
//
// All failures surface as sentinel errors (ErrNotFound, ErrHWIDConflict,
// ErrExpired, ...) so callers can map them to transport responses with
// errors.Is. The engine performs no internal retries; a same-HWID
// re-activation succeeds without a state change, so client retries
// are safe.
package licence
