package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TemplateTransaction = "emails/transaction"
	TemplateRefund      = "emails/refund"
	TemplateReceipt     = "emails/payment_receipt"
)

// Message is one outbound notification. Context feeds the template.
type Message struct {
	ID        string                 `json:"id"`
	To        string                 `json:"to"`
	Subject   string                 `json:"subject"`
	Template  string                 `json:"template"`
	Context   map[string]interface{} `json:"context"`
	CreatedAt time.Time              `json:"created_at"`
}

func NewMessage(to, subject, template string, data map[string]interface{}) *Message {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Message{
		ID:        uuid.New().String(),
		To:        to,
		Subject:   subject,
		Template:  template,
		Context:   data,
		CreatedAt: time.Now().UTC(),
	}
}

// Sender hands a message to a transport. Errors are retried by the Dispatcher.
type Sender interface {
	Name() string
	Send(ctx context.Context, m *Message) error
}

// Queue is a bounded in-memory buffer. Enqueue never blocks; a full or closed
// queue refuses the message.
type Queue struct {
	ch     chan *Message
	mu     sync.RWMutex
	closed bool
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{ch: make(chan *Message, size)}
}

func (q *Queue) Enqueue(m *Message) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- m:
		return true
	default:
		return false
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

// Messages is drained by the workers; it is closed by Close.
func (q *Queue) Messages() <-chan *Message {
	return q.ch
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
