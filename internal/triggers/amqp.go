package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

func dialAMQP(url string) (*amqp.Channel, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("error establishing connection with rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("error opening channel for rabbitmq: %w", err)
	}
	return ch, conn, nil
}

func declareQueue(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("error declaring queue %s: %w", queue, err)
	}
	return nil
}

// AMQPConsumer feeds events published on a RabbitMQ queue into a
// dispatcher.
type AMQPConsumer struct {
	url        string
	queue      string
	dispatcher *Dispatcher
}

func NewAMQPConsumer(url, queue string, d *Dispatcher) *AMQPConsumer {
	return &AMQPConsumer{url: url, queue: queue, dispatcher: d}
}

// Run consumes until ctx is done or the broker closes the channel.
// Messages are acknowledged once dispatched; malformed ones are rejected
// without requeue.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	ch, conn, err := dialAMQP(c.url)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	if err := declareQueue(ch, c.queue); err != nil {
		return err
	}
	if err := ch.Qos(32, 0, false); err != nil {
		return fmt.Errorf("error setting qos: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("error consuming queue %s: %w", c.queue, err)
	}
	slog.Info("consuming events", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := c.handle(ctx, msg.Body); err != nil {
				slog.Warn("rejecting event message", "message_id", msg.MessageId, "err", err)
				if err := msg.Nack(false, false); err != nil {
					slog.Error("error rejecting message", "err", err)
				}
				continue
			}
			if err := msg.Ack(false); err != nil {
				slog.Error("error acknowledging message", "err", err)
			}
		}
	}
}

func (c *AMQPConsumer) handle(ctx context.Context, body []byte) error {
	e, err := DecodeEvent(body)
	if err != nil {
		return err
	}
	_, err = c.dispatcher.Dispatch(ctx, e)
	return err
}

// AMQPPublisher publishes events to the queue the consumer reads.
type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func DialPublisher(url, queue string) (*AMQPPublisher, error) {
	ch, conn, err := dialAMQP(url)
	if err != nil {
		return nil, err
	}
	if err := declareQueue(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event %s: %w", e.ID, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return errors.Join(p.ch.Close(), p.conn.Close())
}
