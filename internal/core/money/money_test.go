package money_test

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/money"
)

func TestMoney(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Money Suite")
}

var _ = Describe("Money", func() {
	Describe("Currency", func() {
		It("accepts three upper-case letters", func() {
			Expect(money.NormalizeCurrency(" gbp ").Validate()).To(Succeed())
		})

		DescribeTable("rejects malformed codes",
			func(code string) {
				err := money.Currency(code).Validate()
				Expect(errors.Is(err, apperrors.ErrInvalidCurrency)).To(BeTrue())
			},
			Entry("too short", "GB"),
			Entry("lower case", "gbp"),
			Entry("digits", "G8P"),
			Entry("empty", ""),
		)

		It("knows the minor units of common currencies", func() {
			Expect(money.Currency("GBP").MinorUnits()).To(Equal(int32(2)))
			Expect(money.Currency("JPY").MinorUnits()).To(Equal(int32(0)))
			Expect(money.Currency("KWD").MinorUnits()).To(Equal(int32(3)))
		})
	})

	Describe("ParseAmount", func() {
		It("parses positive decimals", func() {
			amount, err := money.ParseAmount("15.25")
			Expect(err).ToNot(HaveOccurred())
			Expect(amount.String()).To(Equal("15.25"))
		})

		DescribeTable("rejects invalid amounts",
			func(raw string) {
				_, err := money.ParseAmount(raw)
				Expect(errors.Is(err, apperrors.ErrInvalidAmount)).To(BeTrue())
			},
			Entry("non numeric", "ten"),
			Entry("zero", "0"),
			Entry("negative", "-1.00"),
		)
	})

	Describe("ValidateAmount", func() {
		It("rejects amounts finer than the minor unit", func() {
			err := money.ValidateAmount(decimal.RequireFromString("1.005"), "GBP")
			Expect(err).To(HaveOccurred())
		})

		It("accepts amounts on the minor unit", func() {
			Expect(money.ValidateAmount(decimal.RequireFromString("1.05"), "GBP")).To(Succeed())
		})

		It("rejects amounts the ledger columns cannot hold", func() {
			err := money.ValidateAmount(decimal.RequireFromString("10000000000000"), "GBP")
			Expect(errors.Is(err, apperrors.ErrInvalidAmount)).To(BeTrue())

			err = money.ValidateAmount(money.MaxAmount.Add(decimal.RequireFromString("0.01")), "GBP")
			Expect(errors.Is(err, apperrors.ErrInvalidAmount)).To(BeTrue())

			Expect(money.ValidateAmount(money.MaxAmount, "GBP")).To(Succeed())
		})
	})

	Describe("RoundMoney", func() {
		It("rounds half up to two places", func() {
			Expect(money.RoundMoney(decimal.RequireFromString("8.505"), "EUR").StringFixed(2)).To(Equal("8.51"))
			Expect(money.RoundMoney(decimal.RequireFromString("8.504"), "EUR").StringFixed(2)).To(Equal("8.50"))
		})

		It("rounds rates to six places", func() {
			Expect(money.RoundRate(decimal.RequireFromString("1.1234565")).String()).To(Equal("1.123457"))
		})
	})

	Describe("minor units", func() {
		It("converts gateway totals", func() {
			Expect(money.FromMinor(1050, "GBP").StringFixed(2)).To(Equal("10.50"))
			Expect(money.FromMinor(1050, "JPY").String()).To(Equal("1050"))
			Expect(money.ToMinor(decimal.RequireFromString("10.5"), "USD")).To(Equal(int64(1050)))
		})
	})

	Describe("Format", func() {
		It("renders thousands separators and the currency code", func() {
			Expect(money.Format(decimal.RequireFromString("1234.5"), "GBP")).To(Equal("GBP 1,234.50"))
			Expect(money.Format(decimal.RequireFromString("12"), "USD")).To(Equal("USD 12.00"))
			Expect(money.Format(decimal.RequireFromString("1234567"), "JPY")).To(Equal("JPY 1,234,567"))
		})
	})
})
