package conversion_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payapp/internal/conversion"
)

var _ = Describe("Handler", func() {
	var router *chi.Mux

	BeforeEach(func() {
		service := conversion.NewService(conversion.NewStaticProvider(conversion.DefaultRates()), time.Second, discardLogger)
		handler := conversion.NewHandler(service)
		router = chi.NewRouter()
		router.Get("/conversion/{from}/{to}/{amount}", handler.Convert)
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	It("returns the conversion", func() {
		// When
		rec := get("/conversion/usd/GBP/100")

		// Then
		Expect(rec.Code).To(Equal(http.StatusOK))
		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["from"]).To(Equal("USD"))
		Expect(body["to"]).To(Equal("GBP"))
		Expect(body["rate"]).To(Equal("0.75"))
		Expect(body["converted_amount"]).To(Equal("75"))
	})

	It("answers 400 for a non-numeric amount", func() {
		Expect(get("/conversion/USD/GBP/abc").Code).To(Equal(http.StatusBadRequest))
	})

	It("answers 404 for an unsupported pair", func() {
		rec := get("/conversion/USD/JPY/10")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(ContainSubstring("UNSUPPORTED_PAIR"))
	})
})
