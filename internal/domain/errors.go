package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
//
// ErrInvalidOrExpired deliberately covers three distinct causes — no outstanding
// credential, wrong secret, and expired secret — so a caller cannot tell which
// one occurred.
var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidOrExpired = errors.New("invalid or expired credential")
	ErrStore            = errors.New("store failure")
	ErrDelivery         = errors.New("delivery failure")
)
