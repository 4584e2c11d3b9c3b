// Package event publishes domain events for other services over RabbitMQ and
// keeps an optional append-only log of everything sent.
package event

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"connect-service/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ActionHeader = "x-action"

	ConnectionRequested = "connection.requested"
	ConnectionAccepted  = "connection.accepted"

	DefaultQueue = "connect"
)

type Emitter interface {
	Emit(ctx context.Context, action string, payload any) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Emit(context.Context, string, any) error { return nil }

type LogData struct {
	Time    int64  `json:"time"`
	Service string `json:"service"`
	Action  string `json:"action"`
	Data    string `json:"data"`
}

// Publisher is the part of *amqp.Channel the bus needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Bus struct {
	mu      sync.Mutex
	channel Publisher
	queue   string
	out     io.Writer
	log     *zap.Logger
}

// NewBus publishes to queue through channel. out may be nil.
func NewBus(channel Publisher, queue string, out io.Writer, log *zap.Logger) *Bus {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{channel: channel, queue: queue, out: out, log: log}
}

func (b *Bus) Emit(ctx context.Context, action string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", action, err)
	}
	return b.publish(ctx, b.queue, action, data, true)
}

func (b *Bus) publish(ctx context.Context, queue, action string, data []byte, record bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Headers: amqp.Table{
				ActionHeader: action,
			},
			Body: data,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", action, err)
	}

	if record && b.out != nil {
		line, _ := json.Marshal(LogData{
			Time:    time.Now().UnixMicro(),
			Service: queue,
			Action:  action,
			Data:    string(data),
		})
		if _, err := b.out.Write(append(line, '\n')); err != nil {
			b.log.Warn("event log write failed", zap.String("action", action), zap.Error(err))
		}
	}
	return nil
}

// Replay re-publishes every event recorded in r without logging them again.
func (b *Bus) Replay(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		var entry LogData
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return n, fmt.Errorf("replay line %d: %w", n+1, err)
		}
		if err := b.publish(ctx, entry.Service, entry.Action, []byte(entry.Data), false); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("replay: %w", err)
	}
	return n, nil
}

// RabbitMQ owns the broker connection behind a Bus.
type RabbitMQ struct {
	*Bus
	Connection *amqp.Connection
	Channel    *amqp.Channel
}

func RabbitMQConnect(log *zap.Logger, out io.Writer) (*RabbitMQ, error) {
	conn, err := amqp.Dial(fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		config.Config("RABBITMQ_USER"),
		config.Config("RABBITMQ_PASSWORD"),
		config.Config("RABBITMQ_HOST"),
		config.Config("RABBITMQ_PORT"),
	))
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	log.Info("connection opened to RabbitMQ server")

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	queue := config.Config("EVENT_QUEUE")
	if queue == "" {
		queue = DefaultQueue
	}
	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	log.Info("declared RabbitMQ queue", zap.String("queue", queue))

	return &RabbitMQ{
		Bus:        NewBus(ch, queue, out, log),
		Connection: conn,
		Channel:    ch,
	}, nil
}

func (r *RabbitMQ) Close() error {
	chErr := r.Channel.Close()
	connErr := r.Connection.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
