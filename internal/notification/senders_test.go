package notification_test

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/frahmantamala/payapp/internal/notification"
)

type publishedMessage struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published []publishedMessage
	err       error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, publishedMessage{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

var _ = Describe("Senders", func() {
	var (
		ctx     context.Context
		message *notification.Message
	)

	BeforeEach(func() {
		ctx = context.Background()
		message = notification.NewMessage("alice@example.com", "You sent GBP 10.00 to bob", notification.TemplateTransaction,
			map[string]interface{}{"reference": "42"})
	})

	Describe("KafkaSender", func() {
		It("publishes the message as json", func() {
			// Given
			producer := mocks.NewSyncProducer(GinkgoT(), sarama.NewConfig())
			producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
				var decoded notification.Message
				if err := json.Unmarshal(val, &decoded); err != nil {
					return err
				}
				if decoded.ID != message.ID || decoded.To != "alice@example.com" {
					return errors.New("unexpected payload")
				}
				return nil
			})
			sender := notification.NewKafkaSender(producer, "")

			// When
			err := sender.Send(ctx, message)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(sender.Name()).To(Equal("kafka"))
			Expect(sender.Close()).To(Succeed())
		})

		It("surfaces producer errors", func() {
			producer := mocks.NewSyncProducer(GinkgoT(), sarama.NewConfig())
			producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
			sender := notification.NewKafkaSender(producer, "notifications")

			err := sender.Send(ctx, message)

			Expect(errors.Is(err, sarama.ErrOutOfBrokers)).To(BeTrue())
			Expect(sender.Close()).To(Succeed())
		})

		It("requires brokers", func() {
			_, err := notification.NewKafkaProducer(nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RabbitMQSender", func() {
		It("publishes a persistent json message", func() {
			channel := &fakeChannel{}
			sender := notification.NewRabbitMQSender(channel, "payapp", "")

			Expect(sender.Send(ctx, message)).To(Succeed())

			Expect(channel.published).To(HaveLen(1))
			published := channel.published[0]
			Expect(published.exchange).To(Equal("payapp"))
			Expect(published.key).To(Equal("notifications"))
			Expect(published.msg.DeliveryMode).To(Equal(amqp.Persistent))
			Expect(published.msg.ContentType).To(Equal("application/json"))
			Expect(published.msg.MessageId).To(Equal(message.ID))
			Expect(string(published.msg.Body)).To(ContainSubstring(`"to":"alice@example.com"`))
		})

		It("wraps publish errors", func() {
			channel := &fakeChannel{err: amqp.ErrClosed}
			sender := notification.NewRabbitMQSender(channel, "payapp", "mail")

			err := sender.Send(ctx, message)

			Expect(errors.Is(err, amqp.ErrClosed)).To(BeTrue())
			Expect(sender.Close()).To(Succeed())
			Expect(channel.closed).To(BeTrue())
		})
	})

	Describe("LogSender", func() {
		It("always succeeds", func() {
			sender := notification.NewLogSender(discardLogger)
			Expect(sender.Send(ctx, message)).To(Succeed())
			Expect(sender.Name()).To(Equal("log"))
		})
	})
})
