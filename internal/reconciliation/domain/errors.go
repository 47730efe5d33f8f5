package domain

import "errors"

var (
	ErrNotFound          = errors.New("document_not_found")
	ErrAlreadySettled    = errors.New("already_settled")
	ErrPaymentConflict   = errors.New("payment_conflict")
	ErrConflict          = errors.New("transaction_conflict")
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrNotABill          = errors.New("not_a_bill")
	ErrBillHasInvoices   = errors.New("bill_has_invoices")
	ErrNotCancellable    = errors.New("document_not_cancellable")
	ErrInvalidDocumentID = errors.New("invalid_document_id")
)
