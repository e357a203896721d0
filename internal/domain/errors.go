package domain

import "errors"

// Error categories shared across the relay. Concrete errors wrap one of
// these so callers can classify failures with errors.Is.
var (
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrUpstreamRejected = errors.New("upstream rejected request")
	ErrTransport        = errors.New("transport failure")
	ErrStorage          = errors.New("storage failure")
	ErrMalformedEvent   = errors.New("malformed event")
)
