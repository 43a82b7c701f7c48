package events

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one decoded event. Adapter.Handle satisfies it.
type Handler func(ctx context.Context, ev Event) (string, error)

// AMQPConsumer reads domain events from a durable RabbitMQ queue. Deliveries
// are acked after the event is queued; permanent failures are dropped and
// anything else is requeued.
type AMQPConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	handle  Handler
	logger  *zap.Logger
}

// NewAMQPConsumer dials url and declares the durable queue.
func NewAMQPConsumer(url, queue string, handle Handler, logger *zap.Logger) (*AMQPConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitmq")
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	q, err := channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, errors.Wrap(err, "declare queue")
	}

	return &AMQPConsumer{
		conn:    conn,
		channel: channel,
		queue:   q.Name,
		handle:  handle,
		logger:  logger,
	}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	if err := c.channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	); err != nil {
		return errors.Wrap(err, "set qos")
	}

	msgs, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return errors.Wrap(err, "consume")
	}

	c.logger.Info("amqp consumer started", zap.String("queue", c.queue))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("amqp consumer stopping")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			c.HandleDelivery(ctx, d)
		}
	}
}

// HandleDelivery settles one delivery.
func (c *AMQPConsumer) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))

	ev, err := Decode(d.Body)
	if err == nil {
		_, err = c.handle(ctx, ev)
	}

	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack delivery", zap.Error(ackErr))
		}
	case IsPermanent(err):
		log.Warn("dropping event that can never be processed", zap.Error(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("failed to nack delivery", zap.Error(nackErr))
		}
	default:
		log.Warn("event processing failed, requeueing", zap.Error(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("failed to nack delivery", zap.Error(nackErr))
		}
	}
}

func (c *AMQPConsumer) Close() error {
	var errs error
	if c.channel != nil {
		errs = errors.CombineErrors(errs, c.channel.Close())
	}
	if c.conn != nil {
		errs = errors.CombineErrors(errs, c.conn.Close())
	}
	if errs != nil {
		return errors.Wrap(errs, "close rabbitmq")
	}
	return nil
}
