package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	apperrors "github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/core/events"
	"github.com/frahmantamala/payapp/internal/notification"
	"github.com/frahmantamala/payapp/internal/user"
	"github.com/frahmantamala/payapp/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage events: publish sample domain events through the notification handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a sample event",
	Long: `Publish a sample event to an in-process event bus. Ledger event types
(transfer.completed, transfer.refunded, payment_request.paid, payment_request.expired)
run through the notification handlers with a log sender; other types are logged.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var (
	eventData   string
	eventAmount string
)

// sampleUsers backs the notification handler's profile lookups.
type sampleUsers map[int64]*user.User

func (s sampleUsers) GetByID(ctx context.Context, id int64) (*user.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, apperrors.ErrUserNotFound
}

var cliUsers = sampleUsers{
	1: {ID: 1, Username: "alice", Email: "alice@mail.com", Currency: "GBP"},
	2: {ID: 2, Username: "bob", Email: "bob@mail.com", Currency: "USD"},
}

func publishTestEvent(eventType string) {
	logger := logger.LoggerWrapper()

	amount, err := decimal.NewFromString(eventAmount)
	if err != nil {
		logger.Error("invalid --amount", "amount", eventAmount, "error", err)
		return
	}

	eventBus := events.NewEventBus(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := notification.NewDispatcher(notification.NewLogSender(logger), notification.DispatcherConfig{Workers: 1}, logger)
	dispatcher.Start(ctx)
	notification.NewEventHandler(dispatcher, cliUsers, "http://localhost:8080/dashboard", logger).
		RegisterEventHandlers(eventBus)

	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		logger.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	alice := events.Party{UserID: 1, Username: "alice", Email: "alice@mail.com"}
	bob := events.Party{UserID: 2, Username: "bob", Email: "bob@mail.com"}

	var event events.Event
	switch eventType {
	case events.EventTypeTransferCompleted:
		converted := amount.Mul(decimal.RequireFromString("1.33")).Round(2)
		event = events.NewTransferCompletedEvent(1, alice, bob, amount, "GBP", &converted, "USD")
	case events.EventTypeTransferRefunded:
		event = events.NewTransferRefundedEvent(1, 1, 2)
	case events.EventTypePaymentRequestPaid:
		event = events.NewPaymentRequestPaidEvent(1, 1, 1, "sample", amount, "GBP", "pi_sample")
	case events.EventTypePaymentRequestExpired:
		event = events.NewPaymentRequestExpiredEvent(1, "sample")
	default:
		event = events.BaseEvent{
			ID:        fmt.Sprintf("test-%d", time.Now().Unix()),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"message": eventData,
				"source":  "cli-command",
			},
		}
	}

	logger.Info("publishing event", "event_type", event.EventType(), "event_id", event.EventID())

	if err := eventBus.PublishSync(ctx, event); err != nil {
		logger.Error("failed to publish event", "error", err)
		return
	}

	dispatcher.Stop()
	logger.Info("event published successfully")
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "Event data message")
	publishEventCmd.Flags().StringVar(&eventAmount, "amount", "25.00", "Amount carried by ledger events")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
