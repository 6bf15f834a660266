package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	amqp "github.com/rabbitmq/amqp091-go"
)

// LogSender writes messages to the log instead of a broker. Used in development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, m *Message) error {
	s.logger.Info("notification",
		"message_id", m.ID,
		"to", m.To,
		"subject", m.Subject,
		"template", m.Template)
	return nil
}

// NewKafkaProducer builds a producer that waits for every in-sync replica.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaSender publishes messages as JSON keyed by message id.
type KafkaSender struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaSender(producer sarama.SyncProducer, topic string) *KafkaSender {
	if topic == "" {
		topic = "payapp.notifications"
	}
	return &KafkaSender{producer: producer, topic: topic}
}

func (s *KafkaSender) Name() string { return "kafka" }

func (s *KafkaSender) Send(ctx context.Context, m *Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(m.ID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("template"), Value: []byte(m.Template)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka send: %w", err)
	}
	return nil
}

func (s *KafkaSender) Close() error {
	return s.producer.Close()
}

// AMQPChannel is the part of *amqp.Channel the sender needs.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialRabbitMQ opens a connection and a channel on it.
func DialRabbitMQ(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return conn, ch, nil
}

// RabbitMQSender publishes persistent JSON messages to an exchange.
type RabbitMQSender struct {
	channel    AMQPChannel
	exchange   string
	routingKey string
}

func NewRabbitMQSender(channel AMQPChannel, exchange, routingKey string) *RabbitMQSender {
	if routingKey == "" {
		routingKey = "notifications"
	}
	return &RabbitMQSender{channel: channel, exchange: exchange, routingKey: routingKey}
}

func (s *RabbitMQSender) Name() string { return "rabbitmq" }

func (s *RabbitMQSender) Send(ctx context.Context, m *Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	err = s.channel.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    m.ID,
		Type:         m.Template,
		Timestamp:    m.CreatedAt,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (s *RabbitMQSender) Close() error {
	return s.channel.Close()
}
