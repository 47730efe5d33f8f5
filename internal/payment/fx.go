package payment

import (
	paymentservice "github.com/smallbiznis/rentledger/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(paymentservice.NewEngine),
)
