package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/frahmantamala/payapp/internal/metrics"
)

type RetryPolicy struct {
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	JitterPercent uint64
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseBackoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), b)
}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	Retry       RetryPolicy
}

// Dispatcher drains the queue with a fixed worker pool. Delivery failures are
// logged and counted; they never reach the code that enqueued the message.
type Dispatcher struct {
	sender  Sender
	queue   *Queue
	config  DispatcherConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
	once    sync.Once
	stopped sync.Once
}

func NewDispatcher(sender Sender, config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender: sender,
		queue:  NewQueue(config.QueueSize),
		config: config,
		logger: logger,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		for i := 0; i < d.config.Workers; i++ {
			d.wg.Add(1)
			go d.work(ctx, i+1)
		}
		d.logger.Info("notification dispatcher started",
			"transport", d.sender.Name(),
			"workers", d.config.Workers)
	})
}

// Enqueue reports whether the message was accepted.
func (d *Dispatcher) Enqueue(m *Message) bool {
	if d.queue.Enqueue(m) {
		return true
	}
	metrics.NotificationsTotal.WithLabelValues(d.sender.Name(), "dropped").Inc()
	d.logger.Warn("notification dropped, queue full or closed",
		"message_id", m.ID,
		"template", m.Template)
	return false
}

// Stop closes the queue and waits for the workers to drain it.
func (d *Dispatcher) Stop() {
	d.stopped.Do(func() {
		d.queue.Close()
		d.wg.Wait()
		d.logger.Info("notification dispatcher stopped", "transport", d.sender.Name())
	})
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	defer d.wg.Done()
	for m := range d.queue.Messages() {
		d.deliver(ctx, id, m)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, m *Message) {
	attempts := 0
	err := retry.Do(ctx, d.config.Retry.backoff(), func(ctx context.Context) error {
		attempts++
		sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
		defer cancel()
		if err := d.sender.Send(sendCtx, m); err != nil {
			d.logger.Warn("notification attempt failed",
				"worker", worker,
				"message_id", m.ID,
				"attempt", attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(d.sender.Name(), "failed").Inc()
		d.logger.Error("notification delivery failed",
			"message_id", m.ID,
			"template", m.Template,
			"attempts", attempts,
			"error", err)
		return
	}

	metrics.NotificationsTotal.WithLabelValues(d.sender.Name(), "sent").Inc()
	d.logger.Debug("notification delivered",
		"message_id", m.ID,
		"template", m.Template,
		"attempts", attempts)
}
