package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/rentledger/internal/tax/domain"
)

type meteredChargeRequest struct {
	PreviousReading *decimal.Decimal `json:"previous_reading"`
	CurrentReading  *decimal.Decimal `json:"current_reading"`
	ChargePerUnit   *decimal.Decimal `json:"charge_per_unit"`
	TaxRate         *decimal.Decimal `json:"tax_rate"`
	TaxMode         string           `json:"tax_mode"`
}

func (r meteredChargeRequest) toInput() (taxdomain.MeteredChargeInput, error) {
	switch {
	case r.PreviousReading == nil:
		return taxdomain.MeteredChargeInput{}, newValidationError("previous_reading", "required", "previous_reading is required")
	case r.CurrentReading == nil:
		return taxdomain.MeteredChargeInput{}, newValidationError("current_reading", "required", "current_reading is required")
	case r.ChargePerUnit == nil:
		return taxdomain.MeteredChargeInput{}, newValidationError("charge_per_unit", "required", "charge_per_unit is required")
	}
	return taxdomain.MeteredChargeInput{
		PreviousReading: *r.PreviousReading,
		CurrentReading:  *r.CurrentReading,
		ChargePerUnit:   *r.ChargePerUnit,
		TaxRate:         r.TaxRate,
		TaxMode:         parseTaxMode(r.TaxMode),
	}, nil
}

type rentChargeRequest struct {
	Rent               *decimal.Decimal `json:"rent"`
	ServiceChargeType  string           `json:"service_charge_type"`
	ServiceChargeValue decimal.Decimal  `json:"service_charge_value"`
	Area               decimal.Decimal  `json:"area"`
	TaxRate            *decimal.Decimal `json:"tax_rate"`
	TaxMode            string           `json:"tax_mode"`
}

func (r rentChargeRequest) toInput() (taxdomain.RentChargeInput, error) {
	if r.Rent == nil {
		return taxdomain.RentChargeInput{}, newValidationError("rent", "required", "rent is required")
	}
	return taxdomain.RentChargeInput{
		Rent:               *r.Rent,
		ServiceChargeType:  taxdomain.ServiceChargeType(strings.ToUpper(strings.TrimSpace(r.ServiceChargeType))),
		ServiceChargeValue: r.ServiceChargeValue,
		Area:               r.Area,
		TaxRate:            r.TaxRate,
		TaxMode:            parseTaxMode(r.TaxMode),
	}, nil
}

// parseTaxMode defaults an empty mode to no tax.
func parseTaxMode(raw string) taxdomain.TaxMode {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return taxdomain.TaxModeNotApplicable
	}
	return taxdomain.TaxMode(raw)
}

func (s *Server) ComputeMeteredCharge(c *gin.Context) {
	var req meteredChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	in, err := req.toInput()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	charge, err := s.calculator.ComputeCharge(in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	charge = charge.Rounded()
	resp := toChargeResponse(charge)
	resp.Units = &charge.Units
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ComputeRentCharge(c *gin.Context) {
	var req rentChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	in, err := req.toInput()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	charge, err := s.calculator.ComputeRentCharge(in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	charge = charge.Rounded()
	resp := toChargeResponse(charge)
	resp.ServiceCharge = &charge.ServiceCharge
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
