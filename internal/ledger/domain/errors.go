package domain

import "errors"

var (
	ErrNotFound          = errors.New("not_found")
	ErrVersionConflict   = errors.New("version_conflict")
	ErrInvalidDocumentID = errors.New("invalid_document_id")
)
