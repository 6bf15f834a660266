package settlement_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payapp/internal/auth"
	gatewaytypes "github.com/frahmantamala/payapp/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payapp/internal/paymentgateway"
	"github.com/frahmantamala/payapp/internal/paymentrequest"
	"github.com/frahmantamala/payapp/internal/settlement"
)

const webhookSecret = "whsec_test"

func completedEvent(session *gatewaytypes.CheckoutSession) []byte {
	object, err := json.Marshal(session)
	Expect(err).NotTo(HaveOccurred())
	event := gatewaytypes.Event{ID: "evt_1", Type: gatewaytypes.EventCheckoutCompleted}
	event.Data.Object = object
	body, err := json.Marshal(event)
	Expect(err).NotTo(HaveOccurred())
	return body
}

var _ = Describe("Handler", func() {
	var (
		repo     *mockRepository
		sessions *fakeSessions
		router   *chi.Mux
	)

	post := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
		if signature != "" {
			req.Header.Set(paymentgateway.SignatureHeader, signature)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	signed := func(body []byte) string {
		return paymentgateway.Sign(webhookSecret, body, time.Now())
	}

	outcomeOf := func(rec *httptest.ResponseRecorder) string {
		var resp map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		outcome, _ := resp["outcome"].(string)
		return outcome
	}

	BeforeEach(func() {
		repo = newMockRepository()
		repo.requests["abc"] = &paymentrequest.PaymentRequest{
			ID: 7, MerchantID: 1, ShortCode: "abc",
			Amount: decimal.RequireFromString("25.00"), Currency: "GBP",
			Status: paymentrequest.StatusPending,
		}
		sessions = &fakeSessions{sessions: map[string]*gatewaytypes.CheckoutSession{}}
		reconciler := settlement.NewReconciler(repo, sessions, &capturingPublisher{}, time.Second, discardLogger)
		handler := settlement.NewHandler(reconciler, settlement.NewHMACVerifier(webhookSecret, 5*time.Minute))

		router = chi.NewRouter()
		router.Post("/webhooks/gateway", handler.Webhook)
		router.Get("/pay/{code}/success", handler.Success)
		router.With(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := auth.WithUser(r.Context(), &auth.User{ID: 1})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		}).Get("/settlements/{id}/receipt", handler.Receipt)
	})

	Describe("Webhook", func() {
		It("settles a signed completion", func() {
			// Given
			body := completedEvent(paidSession("cs_1", "abc"))

			// When
			rec := post(body, signed(body))

			// Then
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(outcomeOf(rec)).To(Equal(string(settlement.OutcomeSettled)))
			Expect(repo.settled).To(HaveKey("abc"))
		})

		It("acknowledges a redelivery as a duplicate", func() {
			body := completedEvent(paidSession("cs_1", "abc"))
			Expect(post(body, signed(body)).Code).To(Equal(http.StatusOK))

			rec := post(body, signed(body))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(outcomeOf(rec)).To(Equal(string(settlement.OutcomeDuplicate)))
		})

		It("rejects a bad signature", func() {
			body := completedEvent(paidSession("cs_1", "abc"))

			rec := post(body, paymentgateway.Sign("wrong", body, time.Now()))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(repo.commands).To(BeEmpty())
		})

		It("rejects a missing signature", func() {
			body := completedEvent(paidSession("cs_1", "abc"))

			rec := post(body, "")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a stale signature", func() {
			body := completedEvent(paidSession("cs_1", "abc"))

			rec := post(body, paymentgateway.Sign(webhookSecret, body, time.Now().Add(-time.Hour)))

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("refuses bodies over the size limit before checking the signature", func() {
			// Given
			padding := strings.Repeat(" ", 1<<20)
			body := append(completedEvent(paidSession("cs_1", "abc")), padding...)

			// When
			rec := post(body, signed(body))

			// Then
			Expect(rec.Code).To(Equal(http.StatusRequestEntityTooLarge))
			Expect(repo.commands).To(BeEmpty())
			Expect(repo.settled).To(BeEmpty())
		})

		DescribeTable("acknowledges payloads it cannot act on",
			func(body []byte) {
				rec := post(body, signed(body))
				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(outcomeOf(rec)).To(Equal(string(settlement.OutcomeIgnored)))
				Expect(repo.settled).To(BeEmpty())
			},
			Entry("malformed json", []byte(`{not json`)),
			Entry("other event type", []byte(`{"id":"evt_2","type":"checkout.session.expired","data":{"object":{}}}`)),
			Entry("malformed session", []byte(`{"id":"evt_3","type":"checkout.session.completed","data":{"object":"oops"}}`)),
			Entry("unpaid session", []byte(`{"id":"evt_4","type":"checkout.session.completed","data":{"object":{"id":"cs_9","client_reference_id":"abc","payment_status":"unpaid"}}}`)),
			Entry("unknown short code", []byte(`{"id":"evt_5","type":"checkout.session.completed","data":{"object":{"id":"cs_9","client_reference_id":"zzz","payment_status":"paid"}}}`)),
		)
	})

	Describe("Success", func() {
		get := func(path string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			return rec
		}

		It("confirms a paid session", func() {
			sessions.sessions["cs_1"] = paidSession("cs_1", "abc")

			rec := get("/pay/abc/success?session_id=cs_1")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"status":"paid"`))
		})

		It("refuses an expired request", func() {
			repo.requests["abc"].Status = paymentrequest.StatusExpired
			sessions.sessions["cs_1"] = paidSession("cs_1", "abc")

			rec := get("/pay/abc/success?session_id=cs_1")

			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("answers 404 for an unknown request", func() {
			sessions.sessions["cs_1"] = paidSession("cs_1", "gone")

			rec := get("/pay/gone/success?session_id=cs_1")

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Receipt", func() {
		It("serves the merchant's receipt", func() {
			repo.receipts[3] = &settlement.Receipt{
				Transaction: &settlement.Transaction{ID: 3, Status: settlement.StatusSuccess},
				Request:     &paymentrequest.PaymentRequest{ID: 7, MerchantID: 1},
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settlements/3/receipt", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("answers 404 for a bad id", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settlements/abc/receipt", nil))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})
