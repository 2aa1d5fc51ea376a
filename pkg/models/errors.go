package models

import "errors"

// Sentinel validation errors raised while decoding/validating request
// bodies. pkg/query's MapValidationErr maps these to gatewayerr kinds (and
// so to their status codes) via errors.Is.
var (
	// ErrModelProviderMismatch is returned when exactly one of model/provider is set.
	ErrModelProviderMismatch = errors.New("model and provider must be both set or both unset")
	// ErrInvalidAttachment is returned when an attachment's type or content-type
	// falls outside the fixed allow-lists.
	ErrInvalidAttachment = errors.New("invalid attachment type or content-type")
)
