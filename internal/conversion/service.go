package conversion

import (
	"context"
	goerrors "errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/money"
	"github.com/frahmantamala/payapp/internal/metrics"
)

type Service struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
}

func NewService(provider Provider, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, timeout: timeout, logger: logger}
}

// Convert converts amount from one currency into another. Identical currencies
// convert at rate 1 without consulting the provider. The result is rounded half-up
// to the minor unit of the target currency.
func (s *Service) Convert(ctx context.Context, from, to money.Currency, amount decimal.Decimal) (Conversion, error) {
	if !amount.IsPositive() {
		return Conversion{}, errors.ErrInvalidAmount
	}
	if err := from.Validate(); err != nil {
		return Conversion{}, err
	}
	if err := to.Validate(); err != nil {
		return Conversion{}, err
	}

	if from == to {
		metrics.ConversionsTotal.WithLabelValues("identity").Inc()
		return Conversion{From: from, To: to, Rate: decimal.NewFromInt(1), Amount: amount, Converted: amount}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rate, err := s.provider.Rate(callCtx, from, to)
	if err != nil {
		if goerrors.Is(err, errors.ErrUnsupportedPair) {
			metrics.ConversionsTotal.WithLabelValues("unsupported").Inc()
			s.logger.Info("unsupported conversion pair", "from", from, "to", to)
			return Conversion{}, errors.ErrUnsupportedPair
		}
		metrics.ConversionsTotal.WithLabelValues("unavailable").Inc()
		s.logger.Error("conversion oracle failed", "from", from, "to", to, "error", err)
		if goerrors.Is(err, errors.ErrConversionUnavailable) {
			return Conversion{}, err
		}
		return Conversion{}, errors.ErrConversionUnavailable.WithCause(err)
	}

	rate = money.RoundRate(rate)
	converted := money.RoundMoney(amount.Mul(rate), to)

	metrics.ConversionsTotal.WithLabelValues("converted").Inc()
	s.logger.Debug("converted amount",
		"from", from,
		"to", to,
		"rate", rate.String(),
		"amount", amount.String(),
		"converted", converted.String())

	return Conversion{From: from, To: to, Rate: rate, Amount: amount, Converted: converted}, nil
}
