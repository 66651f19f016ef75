// Package http contains the access gateway: HTTP handlers translating
// inbound requests into licence lifecycle calls and mapping engine
// results onto the fixed external contract.
//
// Status code mapping (part of the contract, must not vary):
//
//	400  missing required fields
//	401  admin key absent or wrong
//	403  hwid conflict, mismatch/not-activated, expired
//	404  unknown code or hwid
//	429  per-origin rate limit exceeded
//	500  download-link signing failure, code collision
//	503  licence store unavailable
package http
