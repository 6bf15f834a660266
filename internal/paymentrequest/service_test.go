package paymentrequest_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payapp/internal"
	gatewayDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payapp/internal/core/events"
	"github.com/frahmantamala/payapp/internal/core/money"
	"github.com/frahmantamala/payapp/internal/paymentrequest"
)

func TestPaymentRequest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payment Request Suite")
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockRepository struct {
	byCode     map[string]*paymentrequest.PaymentRequest
	nextID     int64
	taken      map[string]bool
	expired    []int64
	cancelled  []int64
	createErr  error
	overdueRun []int
}

func newMockRepository() *mockRepository {
	return &mockRepository{byCode: map[string]*paymentrequest.PaymentRequest{}, taken: map[string]bool{}}
}

func (m *mockRepository) Create(ctx context.Context, pr *paymentrequest.PaymentRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.taken[pr.ShortCode] {
		return paymentrequest.ErrShortCodeTaken
	}
	if _, ok := m.byCode[pr.ShortCode]; ok {
		return paymentrequest.ErrShortCodeTaken
	}
	m.nextID++
	pr.ID = m.nextID
	stored := *pr
	m.byCode[pr.ShortCode] = &stored
	return nil
}

func (m *mockRepository) GetByShortCode(ctx context.Context, code string) (*paymentrequest.PaymentRequest, error) {
	pr, ok := m.byCode[code]
	if !ok {
		return nil, apperrors.ErrPaymentRequestNotFound
	}
	cp := *pr
	return &cp, nil
}

func (m *mockRepository) ListByMerchant(ctx context.Context, merchantID int64, limit, offset int) ([]*paymentrequest.PaymentRequest, error) {
	var out []*paymentrequest.PaymentRequest
	for _, pr := range m.byCode {
		if pr.MerchantID == merchantID {
			cp := *pr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepository) move(id int64, to string) bool {
	for _, pr := range m.byCode {
		if pr.ID == id && pr.Status == paymentrequest.StatusPending {
			pr.Status = to
			return true
		}
	}
	return false
}

func (m *mockRepository) MarkExpired(ctx context.Context, id int64) (bool, error) {
	m.expired = append(m.expired, id)
	return m.move(id, paymentrequest.StatusExpired), nil
}

func (m *mockRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	m.cancelled = append(m.cancelled, id)
	return m.move(id, paymentrequest.StatusCancelled), nil
}

func (m *mockRepository) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int64, error) {
	m.overdueRun = append(m.overdueRun, limit)
	var n int64
	for _, pr := range m.byCode {
		if int(n) == limit {
			break
		}
		if pr.Status == paymentrequest.StatusPending && pr.ExpiresAt != nil && now.After(*pr.ExpiresAt) {
			pr.Status = paymentrequest.StatusExpired
			n++
		}
	}
	return n, nil
}

type fakeGateway struct {
	requests []*gatewayDatamodel.CheckoutRequest
	err      error
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req *gatewayDatamodel.CheckoutRequest) (*gatewayDatamodel.CheckoutSession, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	return &gatewayDatamodel.CheckoutSession{
		ID:     "cs_test_1",
		URL:    "https://checkout.example.com/cs_test_1",
		Status: gatewayDatamodel.SessionStatusOpen,
	}, nil
}

type capturingTelemetry struct {
	mu          sync.Mutex
	views       []int64
	conversions []int64
}

func (t *capturingTelemetry) View(id int64, meta paymentrequest.ViewMeta) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.views = append(t.views, id)
}

func (t *capturingTelemetry) Conversion(id int64, source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversions = append(t.conversions, id)
}

type capturingPublisher struct {
	events []events.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func sequenceCodes(codes ...string) paymentrequest.ShortCodeGenerator {
	i := 0
	return func() (string, error) {
		if i >= len(codes) {
			return "", errors.New("exhausted")
		}
		c := codes[i]
		i++
		return c, nil
	}
}

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		repo      *mockRepository
		gateway   *fakeGateway
		telemetry *capturingTelemetry
		publisher *capturingPublisher
		now       time.Time
		codes     paymentrequest.ShortCodeGenerator
		service   *paymentrequest.Service
	)

	build := func() {
		service = paymentrequest.NewService(repo, gateway, telemetry, publisher, paymentrequest.Options{
			SupportedCurrencies: map[money.Currency]bool{"GBP": true, "USD": true, "EUR": true},
			GatewayTimeout:      time.Second,
			PublicBaseURL:       "https://pay.example.com/",
			ShortCodes:          codes,
			Now:                 func() time.Time { return now },
		}, discardLogger)
	}

	create := func(days int) *paymentrequest.PaymentRequest {
		pr, err := service.CreateRequest(ctx, 1, paymentrequest.CreateDTO{
			Amount: decimal.RequireFromString("49.99"), Currency: "gbp", Description: "Invoice 42", ExpiryDays: days,
		})
		Expect(err).NotTo(HaveOccurred())
		return pr
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockRepository()
		gateway = &fakeGateway{}
		telemetry = &capturingTelemetry{}
		publisher = &capturingPublisher{}
		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		codes = paymentrequest.RandomShortCode(paymentrequest.DefaultShortCodeBytes)
		build()
	})

	Describe("CreateRequest", func() {
		It("creates a pending request with a 12 character code", func() {
			// When
			pr := create(0)

			// Then
			Expect(pr.Status).To(Equal(paymentrequest.StatusPending))
			Expect(pr.Currency).To(Equal("GBP"))
			Expect(pr.ShortCode).To(HaveLen(12))
			Expect(pr.ShortCode).To(MatchRegexp(`^[A-Za-z0-9_-]+$`))
			Expect(*pr.ExpiresAt).To(Equal(now.AddDate(0, 0, 7)))
		})

		DescribeTable("clamps the expiry",
			func(days, want int) {
				pr := create(days)
				Expect(*pr.ExpiresAt).To(Equal(now.AddDate(0, 0, want)))
			},
			Entry("negative to one day", -5, 1),
			Entry("in range unchanged", 30, 30),
			Entry("above the cap to a year", 1000, 365),
		)

		It("regenerates the code after a collision", func() {
			// Given
			repo.taken["dupe"] = true
			codes = sequenceCodes("dupe", "fresh")
			build()

			// When
			pr := create(7)

			// Then
			Expect(pr.ShortCode).To(Equal("fresh"))
		})

		It("gives up after repeated collisions", func() {
			repo.taken["dupe"] = true
			codes = sequenceCodes("dupe", "dupe", "dupe", "dupe", "dupe", "dupe")
			build()

			_, err := service.CreateRequest(ctx, 1, paymentrequest.CreateDTO{Amount: decimal.NewFromInt(1), Currency: "GBP"})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeInternal))
		})

		It("rejects unsupported currencies and bad amounts", func() {
			_, err := service.CreateRequest(ctx, 1, paymentrequest.CreateDTO{Amount: decimal.NewFromInt(-1), Currency: "JPY"})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("rejects amounts above the ledger limit before touching the store", func() {
			// When
			_, err := service.CreateRequest(ctx, 1, paymentrequest.CreateDTO{
				Amount:   decimal.RequireFromString("10000000000000"),
				Currency: "GBP",
			})

			// Then
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(appErr.GetDetailedMessage()).To(ContainSubstring("cannot exceed"))
			Expect(repo.byCode).To(BeEmpty())
		})

		It("produces distinct codes over many requests", func() {
			seen := map[string]bool{}
			for i := 0; i < 500; i++ {
				pr := create(7)
				Expect(seen[pr.ShortCode]).To(BeFalse())
				seen[pr.ShortCode] = true
			}
		})
	})

	Describe("ViewRequest", func() {
		It("returns an active request and records the view", func() {
			pr := create(7)

			view, err := service.ViewRequest(ctx, pr.ShortCode, paymentrequest.ViewMeta{Method: "GET"})

			Expect(err).NotTo(HaveOccurred())
			Expect(view.State).To(Equal(paymentrequest.StateActive))
			Expect(telemetry.views).To(ConsistOf(pr.ID))
			Expect(telemetry.conversions).To(BeEmpty())
		})

		It("expires an overdue request on read", func() {
			// Given
			pr := create(1)
			now = now.AddDate(0, 0, 2)

			// When
			view, err := service.ViewRequest(ctx, pr.ShortCode, paymentrequest.ViewMeta{Method: "GET"})

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(view.State).To(Equal(paymentrequest.StateExpired))
			Expect(view.Request.Status).To(Equal(paymentrequest.StatusExpired))
			Expect(repo.byCode[pr.ShortCode].Status).To(Equal(paymentrequest.StatusExpired))
			Expect(publisher.events).To(HaveLen(1))
			Expect(publisher.events[0].EventType()).To(Equal(events.EventTypePaymentRequestExpired))
		})

		It("reports unknown codes as not found", func() {
			_, err := service.ViewRequest(ctx, "nope", paymentrequest.ViewMeta{})
			Expect(errors.Is(err, apperrors.ErrPaymentRequestNotFound)).To(BeTrue())
		})
	})

	Describe("InitiateSettlement", func() {
		It("creates a checkout tagged with the short code", func() {
			// Given
			pr := create(7)

			// When
			target, err := service.InitiateSettlement(ctx, pr.ShortCode, paymentrequest.ViewMeta{Method: "POST"})

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(target).To(Equal("https://checkout.example.com/cs_test_1"))
			Expect(gateway.requests).To(HaveLen(1))
			req := gateway.requests[0]
			Expect(req.ClientReference).To(Equal(pr.ShortCode))
			Expect(req.Amount).To(Equal(int64(4999)))
			Expect(req.Currency).To(Equal("gbp"))
			Expect(req.SuccessURL).To(Equal(fmt.Sprintf("https://pay.example.com/pay/%s/success?session_id={CHECKOUT_SESSION_ID}", pr.ShortCode)))
			Expect(telemetry.views).To(HaveLen(1))
			Expect(telemetry.conversions).To(HaveLen(1))
			Expect(repo.byCode[pr.ShortCode].Status).To(Equal(paymentrequest.StatusPending))
		})

		It("refuses an expired request that was never marked expired", func() {
			pr := create(1)
			now = now.AddDate(0, 0, 1).Add(time.Second)

			_, err := service.InitiateSettlement(ctx, pr.ShortCode, paymentrequest.ViewMeta{Method: "POST"})

			Expect(errors.Is(err, apperrors.ErrRequestNotPayable)).To(BeTrue())
			Expect(gateway.requests).To(BeEmpty())
			Expect(telemetry.conversions).To(HaveLen(1))
		})

		It("refuses paid and cancelled requests", func() {
			paid := create(7)
			repo.byCode[paid.ShortCode].Status = paymentrequest.StatusPaid
			cancelled := create(7)
			repo.byCode[cancelled.ShortCode].Status = paymentrequest.StatusCancelled

			_, err := service.InitiateSettlement(ctx, paid.ShortCode, paymentrequest.ViewMeta{})
			Expect(errors.Is(err, apperrors.ErrRequestNotPayable)).To(BeTrue())
			_, err = service.InitiateSettlement(ctx, cancelled.ShortCode, paymentrequest.ViewMeta{})
			Expect(errors.Is(err, apperrors.ErrRequestNotPayable)).To(BeTrue())
		})

		It("maps gateway failures to GatewayUnavailable", func() {
			pr := create(7)
			gateway.err = errors.New("connection refused")

			_, err := service.InitiateSettlement(ctx, pr.ShortCode, paymentrequest.ViewMeta{})
			Expect(errors.Is(err, apperrors.ErrGatewayUnavailable)).To(BeTrue())
		})
	})

	Describe("Cancel", func() {
		It("lets the merchant cancel a pending request once", func() {
			pr := create(7)

			cancelled, err := service.Cancel(ctx, 1, pr.ShortCode)
			Expect(err).NotTo(HaveOccurred())
			Expect(cancelled.Status).To(Equal(paymentrequest.StatusCancelled))

			_, err = service.Cancel(ctx, 1, pr.ShortCode)
			Expect(errors.Is(err, apperrors.ErrRequestNotPayable)).To(BeTrue())
		})

		It("hides requests from other merchants", func() {
			pr := create(7)

			_, err := service.Cancel(ctx, 2, pr.ShortCode)
			Expect(errors.Is(err, apperrors.ErrPaymentRequestNotFound)).To(BeTrue())
			_, err = service.Get(ctx, 2, pr.ShortCode)
			Expect(errors.Is(err, apperrors.ErrPaymentRequestNotFound)).To(BeTrue())
		})
	})

	Describe("List", func() {
		It("evaluates every request", func() {
			create(7)
			create(1)
			now = now.AddDate(0, 0, 3)

			views, err := service.List(ctx, 1, 20, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(HaveLen(2))
			for _, v := range views {
				Expect(v.State).To(BeElementOf(paymentrequest.StateActive, paymentrequest.StateExpired))
			}
		})
	})
})

var _ = Describe("Evaluate", func() {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	DescribeTable("effective state",
		func(status string, expires *time.Time, want paymentrequest.State) {
			pr := &paymentrequest.PaymentRequest{Status: status, ExpiresAt: expires}
			Expect(paymentrequest.Evaluate(pr, now)).To(Equal(want))
		},
		Entry("pending before expiry", paymentrequest.StatusPending, &future, paymentrequest.StateActive),
		Entry("pending without expiry", paymentrequest.StatusPending, nil, paymentrequest.StateActive),
		Entry("pending past expiry", paymentrequest.StatusPending, &past, paymentrequest.StateExpired),
		Entry("paid past expiry", paymentrequest.StatusPaid, &past, paymentrequest.StatePaid),
		Entry("cancelled", paymentrequest.StatusCancelled, &future, paymentrequest.StateCancelled),
		Entry("stored expired", paymentrequest.StatusExpired, &future, paymentrequest.StateExpired),
	)

	It("treats the exact expiry instant as still active", func() {
		pr := &paymentrequest.PaymentRequest{Status: paymentrequest.StatusPending, ExpiresAt: &now}
		Expect(paymentrequest.Evaluate(pr, now)).To(Equal(paymentrequest.StateActive))
	})
})

var _ = Describe("ExpirySweeper", func() {
	It("expires overdue requests in batches", func() {
		// Given
		repo := newMockRepository()
		past := time.Now().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			code := fmt.Sprintf("code%d", i)
			repo.byCode[code] = &paymentrequest.PaymentRequest{ID: int64(i + 1), ShortCode: code, Status: paymentrequest.StatusPending, ExpiresAt: &past}
		}
		sweeper := paymentrequest.NewExpirySweeper(repo, time.Minute, 2, discardLogger)

		// When
		n, err := sweeper.SweepOnce(context.Background())

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(5)))
		Expect(repo.overdueRun).To(HaveLen(3))
	})

	It("stops when its context ends", func() {
		ctx, cancel := context.WithCancel(context.Background())
		sweeper := paymentrequest.NewExpirySweeper(newMockRepository(), 10*time.Millisecond, 10, discardLogger)

		done := make(chan error, 1)
		go func() { done <- sweeper.Run(ctx) }()
		cancel()

		Eventually(done).Should(Receive(BeNil()))
	})
})
