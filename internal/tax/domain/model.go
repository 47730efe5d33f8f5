package domain

import "github.com/shopspring/decimal"

// TaxMode represents how tax relates to the quoted amount.
type TaxMode string

const (
	TaxModeExclusive     TaxMode = "EXCLUSIVE"      // subtotal + tax
	TaxModeInclusive     TaxMode = "INCLUSIVE"      // quoted amount already includes tax
	TaxModeNotApplicable TaxMode = "NOT_APPLICABLE" // no tax
)

func (m TaxMode) Valid() bool {
	switch m {
	case TaxModeExclusive, TaxModeInclusive, TaxModeNotApplicable:
		return true
	}
	return false
}

// ServiceChargeType selects how the service charge on a rent line is derived.
type ServiceChargeType string

const (
	ServiceChargeNone        ServiceChargeType = ""
	ServiceChargeFixed       ServiceChargeType = "FIXED"
	ServiceChargePercentage  ServiceChargeType = "PERCENTAGE"
	ServiceChargePerAreaUnit ServiceChargeType = "PER_AREA_UNIT"
)

// MeteredChargeInput prices a utility reading window.
type MeteredChargeInput struct {
	PreviousReading decimal.Decimal
	CurrentReading  decimal.Decimal
	ChargePerUnit   decimal.Decimal
	TaxRate         *decimal.Decimal // percent, 0-100
	TaxMode         TaxMode
}

// RentChargeInput prices rent plus an optional service charge.
type RentChargeInput struct {
	Rent               decimal.Decimal
	ServiceChargeType  ServiceChargeType
	ServiceChargeValue decimal.Decimal // amount, percent of rent, or rate per area unit
	Area               decimal.Decimal
	TaxRate            *decimal.Decimal
	TaxMode            TaxMode
}

// Charge holds unrounded figures. Use Rounded before persisting.
type Charge struct {
	Units         decimal.Decimal
	ServiceCharge decimal.Decimal
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	GrandTotal    decimal.Decimal
	TaxRate       *decimal.Decimal
	TaxMode       TaxMode
}

// Rounded returns the charge with every monetary field at 2 decimal places.
func (c Charge) Rounded() Charge {
	c.ServiceCharge = c.ServiceCharge.Round(2)
	c.Subtotal = c.Subtotal.Round(2)
	c.TaxAmount = c.TaxAmount.Round(2)
	c.GrandTotal = c.GrandTotal.Round(2)
	return c
}
