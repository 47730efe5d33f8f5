package domain

// Calculator turns raw metering and rent inputs into priced charges.
type Calculator interface {
	ComputeCharge(in MeteredChargeInput) (Charge, error)
	ComputeRentCharge(in RentChargeInput) (Charge, error)
}
