package service

import (
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/rentledger/internal/tax/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

type calculator struct{}

func NewCalculator() taxdomain.Calculator {
	return calculator{}
}

func (calculator) ComputeCharge(in taxdomain.MeteredChargeInput) (taxdomain.Charge, error) {
	return ComputeCharge(in)
}

func (calculator) ComputeRentCharge(in taxdomain.RentChargeInput) (taxdomain.Charge, error) {
	return ComputeRentCharge(in)
}

// ComputeCharge prices units consumed between two meter readings.
func ComputeCharge(in taxdomain.MeteredChargeInput) (taxdomain.Charge, error) {
	if in.CurrentReading.LessThan(in.PreviousReading) {
		return taxdomain.Charge{}, taxdomain.ErrInvalidReadingRange
	}
	if in.ChargePerUnit.IsNegative() {
		return taxdomain.Charge{}, taxdomain.ErrInvalidAmount
	}

	units := in.CurrentReading.Sub(in.PreviousReading)
	charge, err := ApplyTax(units.Mul(in.ChargePerUnit), in.TaxRate, in.TaxMode)
	if err != nil {
		return taxdomain.Charge{}, err
	}
	charge.Units = units
	return charge, nil
}

// ComputeRentCharge taxes rent plus its service charge as a single base.
func ComputeRentCharge(in taxdomain.RentChargeInput) (taxdomain.Charge, error) {
	if in.Rent.IsNegative() {
		return taxdomain.Charge{}, taxdomain.ErrInvalidAmount
	}

	serviceCharge, err := computeServiceCharge(in)
	if err != nil {
		return taxdomain.Charge{}, err
	}

	charge, err := ApplyTax(in.Rent.Add(serviceCharge), in.TaxRate, in.TaxMode)
	if err != nil {
		return taxdomain.Charge{}, err
	}
	charge.ServiceCharge = serviceCharge
	return charge, nil
}

func computeServiceCharge(in taxdomain.RentChargeInput) (decimal.Decimal, error) {
	if in.ServiceChargeValue.IsNegative() || in.Area.IsNegative() {
		return decimal.Zero, taxdomain.ErrInvalidAmount
	}

	switch in.ServiceChargeType {
	case taxdomain.ServiceChargeNone:
		return decimal.Zero, nil
	case taxdomain.ServiceChargeFixed:
		return in.ServiceChargeValue, nil
	case taxdomain.ServiceChargePercentage:
		if in.ServiceChargeValue.GreaterThan(hundred) {
			return decimal.Zero, taxdomain.ErrInvalidServiceCharge
		}
		return in.Rent.Mul(in.ServiceChargeValue).Div(hundred), nil
	case taxdomain.ServiceChargePerAreaUnit:
		return in.ServiceChargeValue.Mul(in.Area), nil
	default:
		return decimal.Zero, taxdomain.ErrInvalidServiceCharge
	}
}

// ApplyTax derives subtotal, tax and grand total from a taxable base.
// INCLUSIVE treats base as gross and reports the net part as subtotal.
func ApplyTax(base decimal.Decimal, rate *decimal.Decimal, mode taxdomain.TaxMode) (taxdomain.Charge, error) {
	if base.IsNegative() {
		return taxdomain.Charge{}, taxdomain.ErrInvalidAmount
	}
	if !mode.Valid() {
		return taxdomain.Charge{}, taxdomain.ErrInvalidTaxMode
	}

	if mode == taxdomain.TaxModeNotApplicable {
		return taxdomain.Charge{
			Subtotal:   base,
			TaxAmount:  decimal.Zero,
			GrandTotal: base,
			TaxMode:    mode,
		}, nil
	}

	if err := validateRate(rate); err != nil {
		return taxdomain.Charge{}, err
	}
	r := *rate

	switch mode {
	case taxdomain.TaxModeExclusive:
		tax := base.Mul(r).Div(hundred)
		return taxdomain.Charge{
			Subtotal:   base,
			TaxAmount:  tax,
			GrandTotal: base.Add(tax),
			TaxRate:    &r,
			TaxMode:    mode,
		}, nil
	default:
		net := base.Div(one.Add(r.Div(hundred)))
		return taxdomain.Charge{
			Subtotal:   net,
			TaxAmount:  base.Sub(net),
			GrandTotal: base,
			TaxRate:    &r,
			TaxMode:    mode,
		}, nil
	}
}

// SplitGross breaks an amount that already includes tax at rate into its
// net and tax parts. A nil rate means no tax was charged.
func SplitGross(gross decimal.Decimal, rate *decimal.Decimal) (subtotal, tax decimal.Decimal) {
	if rate == nil || rate.IsZero() {
		return gross, decimal.Zero
	}
	net := gross.Div(one.Add(rate.Div(hundred)))
	return net, gross.Sub(net)
}

func validateRate(rate *decimal.Decimal) error {
	if rate == nil {
		return taxdomain.ErrInvalidTaxRate
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return taxdomain.ErrInvalidTaxRate
	}
	return nil
}
