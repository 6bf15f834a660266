package paymentrequest

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	prDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/paymentrequest"
	"github.com/frahmantamala/payapp/internal/metrics"
)

const maxFieldLength = 512

// TelemetryStore persists funnel rows.
type TelemetryStore interface {
	RecordView(ctx context.Context, view *prDatamodel.PaymentView) error
	RecordConversion(ctx context.Context, conv *prDatamodel.PaymentConversion) error
}

type telemetryEvent struct {
	view       *prDatamodel.PaymentView
	conversion *prDatamodel.PaymentConversion
}

// Recorder buffers telemetry in a channel drained by one goroutine. When the
// buffer is full the event is dropped and counted.
type Recorder struct {
	store  TelemetryStore
	events chan telemetryEvent
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewRecorder(store TelemetryStore, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		events: make(chan telemetryEvent, buffer),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the drain loop. It stops when ctx is cancelled or Stop is called.
func (r *Recorder) Start(ctx context.Context) {
	r.once.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		r.wg.Add(1)
		go r.run(ctx)
	})
}

// Stop ends the drain loop after persisting what is already buffered.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Recorder) View(requestID int64, meta ViewMeta) {
	r.enqueue(telemetryEvent{view: &prDatamodel.PaymentView{
		PaymentRequestID: requestID,
		ViewedAt:         r.now(),
		Method:           meta.Method,
		IPAddress:        truncate(meta.IP, 64),
		UserAgent:        truncate(meta.UserAgent, maxFieldLength),
		Referer:          truncate(meta.Referer, maxFieldLength),
	}})
}

func (r *Recorder) Conversion(requestID int64, source string) {
	r.enqueue(telemetryEvent{conversion: &prDatamodel.PaymentConversion{
		PaymentRequestID: requestID,
		OccurredAt:       r.now(),
		Source:           truncate(source, 32),
	}})
}

func (r *Recorder) enqueue(ev telemetryEvent) {
	select {
	case r.events <- ev:
	default:
		metrics.TelemetryDropped.Inc()
		r.logger.Warn("telemetry buffer full, dropping event")
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer r.wg.Done()
	storeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case ev := <-r.events:
			r.persist(storeCtx, ev)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-r.events:
			r.persist(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, ev telemetryEvent) {
	var err error
	switch {
	case ev.view != nil:
		err = r.store.RecordView(ctx, ev.view)
	case ev.conversion != nil:
		err = r.store.RecordConversion(ctx, ev.conversion)
	}
	if err != nil {
		r.logger.Warn("failed to record telemetry", "error", err)
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
