package paymentrequest

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	errors "github.com/frahmantamala/payapp/internal"
	gatewayDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payapp/internal/core/events"
	"github.com/frahmantamala/payapp/internal/core/money"
	"github.com/frahmantamala/payapp/internal/metrics"
)

const maxShortCodeAttempts = 5

type Options struct {
	DefaultExpiryDays   int
	SupportedCurrencies map[money.Currency]bool
	GatewayTimeout      time.Duration
	// PublicBaseURL prefixes the payer-facing success and cancel links handed to the gateway.
	PublicBaseURL string
	ShortCodes    ShortCodeGenerator
	Now           func() time.Time
}

type Service struct {
	repo      RepositoryAPI
	gateway   Gateway
	telemetry Telemetry
	publisher events.Publisher
	opts      Options
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, gateway Gateway, telemetry Telemetry, publisher events.Publisher, opts Options, logger *slog.Logger) *Service {
	if opts.DefaultExpiryDays <= 0 {
		opts.DefaultExpiryDays = DefaultExpiryDays
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.ShortCodes == nil {
		opts.ShortCodes = RandomShortCode(DefaultShortCodeBytes)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		gateway:   gateway,
		telemetry: telemetry,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}
}

// CreateRequest issues a new PENDING payment link for the merchant.
func (s *Service) CreateRequest(ctx context.Context, merchantID int64, dto CreateDTO) (*PaymentRequest, error) {
	dto.Normalize()
	if err := dto.Validate(s.opts.SupportedCurrencies); err != nil {
		return nil, err
	}

	now := s.opts.Now()
	expires := now.AddDate(0, 0, ClampExpiryDays(dto.ExpiryDays, s.opts.DefaultExpiryDays))

	pr := &PaymentRequest{
		MerchantID:  merchantID,
		Amount:      dto.Amount,
		Currency:    dto.Currency,
		Description: dto.Description,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   &expires,
	}

	for attempt := 1; ; attempt++ {
		code, err := s.opts.ShortCodes()
		if err != nil {
			return nil, errors.NewInternalError("failed to generate short code", err)
		}
		pr.ShortCode = code

		err = s.repo.Create(ctx, pr)
		if err == nil {
			break
		}
		if !goerrors.Is(err, ErrShortCodeTaken) {
			s.logger.Error("failed to create payment request", "error", err, "merchant_id", merchantID)
			return nil, err
		}
		s.logger.Warn("short code collision, regenerating", "attempt", attempt)
		if attempt >= maxShortCodeAttempts {
			return nil, errors.NewInternalError("could not allocate a unique short code", err)
		}
	}

	metrics.PaymentRequestsTotal.WithLabelValues("created").Inc()
	s.logger.Info("payment request created",
		"payment_request_id", pr.ID,
		"merchant_id", merchantID,
		"short_code", pr.ShortCode,
		"amount", pr.Amount.String(),
		"currency", pr.Currency)
	return pr, nil
}

// ViewRequest returns the request behind a public link and its effective state.
// An overdue PENDING request is persisted as EXPIRED on the way.
func (s *Service) ViewRequest(ctx context.Context, shortCode string, meta ViewMeta) (*View, error) {
	pr, state, err := s.load(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	if s.telemetry != nil {
		s.telemetry.View(pr.ID, meta)
	}

	return &View{Request: pr, State: state}, nil
}

// InitiateSettlement opens a hosted checkout for an active request and returns
// where to send the payer. Nothing is marked PAID here.
func (s *Service) InitiateSettlement(ctx context.Context, shortCode string, meta ViewMeta) (string, error) {
	pr, state, err := s.load(ctx, shortCode)
	if err != nil {
		return "", err
	}

	if s.telemetry != nil {
		s.telemetry.View(pr.ID, meta)
		s.telemetry.Conversion(pr.ID, "checkout")
	}

	if !state.Payable() {
		s.logger.Info("payment attempt on a closed request", "short_code", shortCode, "state", state.String())
		return "", errors.ErrRequestNotPayable
	}

	currency := money.Currency(pr.Currency)
	req := &gatewayDatamodel.CheckoutRequest{
		Amount:          money.ToMinor(pr.Amount, currency),
		Currency:        strings.ToLower(pr.Currency),
		Description:     s.describe(pr),
		ClientReference: pr.ShortCode,
		SuccessURL:      s.link(pr.ShortCode, "/success") + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:       s.link(pr.ShortCode, ""),
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	session, err := s.gateway.CreateCheckoutSession(gctx, req)
	if err != nil {
		s.logger.Error("failed to create checkout session", "error", err, "short_code", shortCode)
		return "", errors.ErrGatewayUnavailable.WithCause(err)
	}

	metrics.PaymentRequestsTotal.WithLabelValues("checkout_started").Inc()
	s.logger.Info("checkout session created", "short_code", shortCode, "session_id", session.ID)
	return session.URL, nil
}

// Cancel withdraws a PENDING request. Only its merchant may cancel it.
func (s *Service) Cancel(ctx context.Context, merchantID int64, shortCode string) (*PaymentRequest, error) {
	pr, state, err := s.load(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if pr.MerchantID != merchantID {
		return nil, errors.ErrPaymentRequestNotFound
	}
	if !state.Payable() {
		return nil, errors.ErrRequestNotPayable
	}

	moved, err := s.repo.Cancel(ctx, pr.ID)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, errors.ErrRequestNotPayable
	}

	pr.Status = StatusCancelled
	metrics.PaymentRequestsTotal.WithLabelValues("cancelled").Inc()
	s.logger.Info("payment request cancelled", "short_code", shortCode, "merchant_id", merchantID)
	return pr, nil
}

// Get returns one of the merchant's requests with its effective state.
func (s *Service) Get(ctx context.Context, merchantID int64, shortCode string) (*View, error) {
	pr, state, err := s.load(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if pr.MerchantID != merchantID {
		return nil, errors.ErrPaymentRequestNotFound
	}
	return &View{Request: pr, State: state}, nil
}

func (s *Service) List(ctx context.Context, merchantID int64, limit, offset int) ([]*View, error) {
	prs, err := s.repo.ListByMerchant(ctx, merchantID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list payment requests", "error", err, "merchant_id", merchantID)
		return nil, err
	}

	now := s.opts.Now()
	views := make([]*View, 0, len(prs))
	for _, pr := range prs {
		views = append(views, &View{Request: pr, State: Evaluate(pr, now)})
	}
	return views, nil
}

// load fetches a request and evaluates it, persisting a lazy expiry.
func (s *Service) load(ctx context.Context, shortCode string) (*PaymentRequest, State, error) {
	pr, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, StateActive, err
	}

	state := Evaluate(pr, s.opts.Now())
	if state == StateExpired && pr.Status == StatusPending {
		s.expire(ctx, pr)
	}
	return pr, state, nil
}

func (s *Service) expire(ctx context.Context, pr *PaymentRequest) {
	moved, err := s.repo.MarkExpired(ctx, pr.ID)
	if err != nil {
		s.logger.Warn("failed to persist expiry", "error", err, "short_code", pr.ShortCode)
		return
	}
	pr.Status = StatusExpired
	if !moved {
		return
	}

	metrics.PaymentRequestsTotal.WithLabelValues("expired").Inc()
	s.logger.Info("payment request expired", "short_code", pr.ShortCode)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.NewPaymentRequestExpiredEvent(pr.ID, pr.ShortCode)); err != nil {
			s.logger.Warn("failed to publish expiry event", "error", err)
		}
	}
}

func (s *Service) describe(pr *PaymentRequest) string {
	if pr.Description != "" {
		return pr.Description
	}
	return fmt.Sprintf("Payment request %s", pr.ShortCode)
}

func (s *Service) link(shortCode, suffix string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/pay/" + url.PathEscape(shortCode) + suffix
}
