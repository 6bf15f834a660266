package validation_test

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/common/validation"
)

func TestValidation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Validation Suite")
}

var _ = Describe("ValidationBuilder", func() {
	supported := validation.CurrencySet([]string{"GBP", "usd"})

	It("passes valid input", func() {
		// Given
		v := validation.NewValidator()
		v.Field("username", "alice").Required().MinLength(3).MaxLength(30)
		v.Field("email", "alice@example.com").Email()
		v.Field("amount", decimal.RequireFromString("10.50")).PositiveAmount("GBP")
		v.Field("currency", "USD").Currency(supported)
		v.Field("expiry_days", 7).IntRange(1, 365, apperrors.ErrCodeInvalidExpiry)

		// When
		err := v.Validate()

		// Then
		Expect(err).To(BeNil())
	})

	It("collects every field error", func() {
		// Given
		v := validation.NewValidator()
		v.Field("username", "").Required()
		v.Field("email", "not-an-email").Email()
		v.Field("amount", decimal.RequireFromString("-1")).PositiveAmount("GBP")
		v.Field("currency", "JPY").Currency(supported)

		// When
		err := v.Validate()

		// Then
		Expect(err).ToNot(BeNil())
		Expect(err.Code).To(Equal(apperrors.ErrCodeValidationFailed))
		details, ok := err.Details.(apperrors.ValidationErrors)
		Expect(ok).To(BeTrue())
		Expect(details.Errors).To(HaveLen(4))
		Expect(details.Errors[2].Code).To(Equal(string(apperrors.ErrCodeInvalidAmount)))
		Expect(details.Errors[3].Code).To(Equal(string(apperrors.ErrCodeInvalidCurrency)))
	})

	It("rejects amounts with too many decimal places", func() {
		v := validation.NewValidator()
		v.Field("amount", decimal.RequireFromString("1.001")).PositiveAmount("GBP")
		Expect(v.Validate()).ToNot(BeNil())
	})

	It("accepts any well-formed currency when no set is configured", func() {
		v := validation.NewValidator()
		v.Field("currency", "CHF").Currency(nil)
		Expect(v.Validate()).To(BeNil())
	})

	It("reports custom rule failures under the field name", func() {
		v := validation.NewValidator()
		v.Field("short_code", "has space").Custom(func(value interface{}) *apperrors.AppError {
			if s, _ := value.(string); strings.Contains(s, " ") {
				return apperrors.NewValidationError("short code must not contain spaces", apperrors.ErrCodeValidationFailed)
			}
			return nil
		})

		err := v.Validate()

		Expect(err).NotTo(BeNil())
		details := err.Details.(apperrors.ValidationErrors)
		Expect(details.Errors).To(HaveLen(1))
		Expect(details.Errors[0].Field).To(Equal("short_code"))
		Expect(details.Errors[0].Message).To(Equal("short code must not contain spaces"))
	})
})
