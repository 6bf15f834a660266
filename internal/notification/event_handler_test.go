package notification_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/events"
	"github.com/frahmantamala/payapp/internal/notification"
	"github.com/frahmantamala/payapp/internal/user"
)

type capturingNotifier struct {
	mu       sync.Mutex
	messages []*notification.Message
	refuse   bool
}

func (n *capturingNotifier) Enqueue(m *notification.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.refuse {
		return false
	}
	n.messages = append(n.messages, m)
	return true
}

type mockUsers struct {
	users map[int64]*user.User
}

func (m *mockUsers) GetByID(ctx context.Context, id int64) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

var _ = Describe("EventHandler", func() {
	var (
		ctx      context.Context
		notifier *capturingNotifier
		users    *mockUsers
		handler  *notification.EventHandler
		alice    events.Party
		bob      events.Party
	)

	BeforeEach(func() {
		ctx = context.Background()
		notifier = &capturingNotifier{}
		users = &mockUsers{users: map[int64]*user.User{
			1: {ID: 1, Username: "alice", Email: "alice@example.com"},
			2: {ID: 2, Username: "bob", Email: "bob@example.com"},
			3: {ID: 3, Username: "shop", Email: "shop@example.com"},
		}}
		handler = notification.NewEventHandler(notifier, users, "https://payapp.example.com/dashboard", discardLogger)
		alice = events.Party{UserID: 1, Username: "alice", Email: "alice@example.com"}
		bob = events.Party{UserID: 2, Username: "bob", Email: "bob@example.com"}
	})

	Describe("HandleTransferCompleted", func() {
		It("notifies both parties", func() {
			// Given
			event := events.NewTransferCompletedEvent(42, alice, bob, decimal.RequireFromString("1234.5"), "GBP", nil, "")

			// When
			err := handler.HandleTransferCompleted(ctx, event)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.messages).To(HaveLen(2))

			sent := notifier.messages[0]
			Expect(sent.To).To(Equal("alice@example.com"))
			Expect(sent.Subject).To(Equal("You sent GBP 1,234.50 to bob"))
			Expect(sent.Context["heading"]).To(Equal("Payment Sent"))
			Expect(sent.Context["amount_display"]).To(Equal("GBP 1,234.50"))
			Expect(sent.Context["converted_display"]).To(BeNil())
			Expect(sent.Context["reference"]).To(Equal("42"))
			Expect(sent.Context["dashboard_url"]).To(Equal("https://payapp.example.com/dashboard"))

			received := notifier.messages[1]
			Expect(received.To).To(Equal("bob@example.com"))
			Expect(received.Context["heading"]).To(Equal("Payment Received"))
			Expect(received.Context["amount_display"]).To(Equal("GBP 1,234.50"))
		})

		It("shows the converted amount to both sides", func() {
			converted := decimal.RequireFromString("133")
			event := events.NewTransferCompletedEvent(7, alice, bob, decimal.RequireFromString("100"), "GBP", &converted, "USD")

			Expect(handler.HandleTransferCompleted(ctx, event)).To(Succeed())

			Expect(notifier.messages[0].Context["converted_display"]).To(Equal("USD 133.00"))
			Expect(notifier.messages[1].Context["amount_display"]).To(Equal("USD 133.00"))
			Expect(notifier.messages[1].Subject).To(Equal("You received USD 133.00 from alice"))
		})

		It("skips parties without an address", func() {
			bob.Email = ""
			event := events.NewTransferCompletedEvent(8, alice, bob, decimal.NewFromInt(5), "GBP", nil, "")

			Expect(handler.HandleTransferCompleted(ctx, event)).To(Succeed())

			Expect(notifier.messages).To(HaveLen(1))
		})

		It("does not fail when the queue refuses", func() {
			notifier.refuse = true
			event := events.NewTransferCompletedEvent(9, alice, bob, decimal.NewFromInt(5), "GBP", nil, "")

			Expect(handler.HandleTransferCompleted(ctx, event)).To(Succeed())
		})

		It("rejects other event types", func() {
			err := handler.HandleTransferCompleted(ctx, events.NewTransferRefundedEvent(1, 1, 2))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("HandleTransferRefunded", func() {
		It("notifies both parties found", func() {
			Expect(handler.HandleTransferRefunded(ctx, events.NewTransferRefundedEvent(42, 1, 99))).To(Succeed())

			Expect(notifier.messages).To(HaveLen(1))
			Expect(notifier.messages[0].To).To(Equal("alice@example.com"))
			Expect(notifier.messages[0].Template).To(Equal(notification.TemplateRefund))
		})
	})

	Describe("HandlePaymentRequestPaid", func() {
		It("sends the merchant a receipt", func() {
			event := events.NewPaymentRequestPaidEvent(5, 11, 3, "abc123", decimal.RequireFromString("25"), "GBP", "pi_1")

			Expect(handler.HandlePaymentRequestPaid(ctx, event)).To(Succeed())

			Expect(notifier.messages).To(HaveLen(1))
			m := notifier.messages[0]
			Expect(m.To).To(Equal("shop@example.com"))
			Expect(m.Template).To(Equal(notification.TemplateReceipt))
			Expect(m.Context["amount_display"]).To(Equal("GBP 25.00"))
			Expect(m.Context["short_code"]).To(Equal("abc123"))
		})

		It("reports a missing merchant", func() {
			event := events.NewPaymentRequestPaidEvent(5, 11, 404, "abc123", decimal.NewFromInt(1), "GBP", "pi_1")

			err := handler.HandlePaymentRequestPaid(ctx, event)

			Expect(errors.Is(err, apperrors.ErrUserNotFound)).To(BeTrue())
			Expect(notifier.messages).To(BeEmpty())
		})
	})

	It("registers on the bus and delivers end to end", func() {
		// Given
		bus := events.NewEventBus(discardLogger)
		handler.RegisterEventHandlers(bus)

		// When
		err := bus.PublishSync(ctx, events.NewTransferCompletedEvent(1, alice, bob, decimal.NewFromInt(3), "GBP", nil, ""))

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(notifier.messages).To(HaveLen(2))
	})
})
