package conversion_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/conversion"
	"github.com/frahmantamala/payapp/internal/core/money"
)

type countingProvider struct {
	calls int
	rate  decimal.Decimal
	err   error
	delay time.Duration
}

func (p *countingProvider) Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	p.calls++
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	return p.rate, p.err
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		service *conversion.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		service = conversion.NewService(conversion.NewStaticProvider(conversion.DefaultRates()), time.Second, discardLogger)
	})

	Context("when both currencies match", func() {
		It("returns the amount unchanged at rate 1 without a lookup", func() {
			// Given
			provider := &countingProvider{}
			service = conversion.NewService(provider, time.Second, discardLogger)

			// When
			result, err := service.Convert(ctx, "GBP", "GBP", decimal.RequireFromString("12.34"))

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Rate.Equal(decimal.NewFromInt(1))).To(BeTrue())
			Expect(result.Converted.String()).To(Equal("12.34"))
			Expect(result.IsIdentity()).To(BeTrue())
			Expect(provider.calls).To(Equal(0))
		})
	})

	Context("when the pair is in the table", func() {
		It("converts with the directed rate", func() {
			result, err := service.Convert(ctx, "GBP", "USD", decimal.RequireFromString("10"))

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Rate.String()).To(Equal("1.33"))
			Expect(result.Converted.StringFixed(2)).To(Equal("13.30"))
		})

		It("rounds the converted amount half-up to the target minor unit", func() {
			// 10.01 * 0.85 = 8.5085
			result, err := service.Convert(ctx, "USD", "EUR", decimal.RequireFromString("10.01"))

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Converted.StringFixed(2)).To(Equal("8.51"))
		})

		It("is directed rather than symmetric", func() {
			forward, err := service.Convert(ctx, "EUR", "USD", decimal.NewFromInt(1))
			Expect(err).ToNot(HaveOccurred())
			backward, err := service.Convert(ctx, "USD", "EUR", decimal.NewFromInt(1))
			Expect(err).ToNot(HaveOccurred())

			Expect(forward.Rate.String()).To(Equal("1.18"))
			Expect(backward.Rate.String()).To(Equal("0.85"))
		})
	})

	Context("when the pair is missing", func() {
		It("returns UnsupportedPair", func() {
			_, err := service.Convert(ctx, "GBP", "JPY", decimal.NewFromInt(1))
			Expect(errors.Is(err, apperrors.ErrUnsupportedPair)).To(BeTrue())
		})
	})

	Context("when the input is invalid", func() {
		It("rejects non-positive amounts", func() {
			_, err := service.Convert(ctx, "GBP", "USD", decimal.Zero)
			Expect(errors.Is(err, apperrors.ErrInvalidAmount)).To(BeTrue())
		})

		It("rejects malformed currencies", func() {
			_, err := service.Convert(ctx, "GB", "USD", decimal.NewFromInt(1))
			Expect(errors.Is(err, apperrors.ErrInvalidCurrency)).To(BeTrue())
		})
	})

	Context("when the provider is slow or failing", func() {
		It("gives up after the timeout with ConversionUnavailable", func() {
			// Given
			provider := &countingProvider{rate: decimal.NewFromInt(2), delay: time.Second}
			service = conversion.NewService(provider, 20*time.Millisecond, discardLogger)

			// When
			_, err := service.Convert(ctx, "GBP", "USD", decimal.NewFromInt(1))

			// Then
			Expect(errors.Is(err, apperrors.ErrConversionUnavailable)).To(BeTrue())
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		})

		It("wraps arbitrary provider errors", func() {
			provider := &countingProvider{err: errors.New("connection refused")}
			service = conversion.NewService(provider, time.Second, discardLogger)

			_, err := service.Convert(ctx, "GBP", "USD", decimal.NewFromInt(1))
			Expect(errors.Is(err, apperrors.ErrConversionUnavailable)).To(BeTrue())
		})
	})
})
