package domain

import "errors"

var (
	ErrInvalidReadingRange  = errors.New("invalid_reading_range")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidTaxMode       = errors.New("invalid_tax_mode")
	ErrInvalidTaxRate       = errors.New("invalid_tax_rate")
	ErrInvalidServiceCharge = errors.New("invalid_service_charge")
)
