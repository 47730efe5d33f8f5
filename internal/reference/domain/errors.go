package domain

import "errors"

var (
	ErrUnknownKind              = errors.New("unknown_reference_kind")
	ErrReferenceNumberExhausted = errors.New("reference_number_exhausted")
)
