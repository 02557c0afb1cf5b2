package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/tracing"
)

const (
	ExchangeDirect     = "replypilot-direct"
	ExchangeDeadLetter = "dead-letter"

	QueueEmailReceived = "email-received"
	DLQEmailReceived   = QueueEmailReceived + "-dlq"

	RoutingKeyEmailReceived = "email-received"
	RoutingKeyDeadLetter    = "dead-letter"

	defaultMessageTTL       = 240 * time.Hour
	defaultPublishRetries   = 3
	defaultPublishTimeout   = 5 * time.Second
	reconnectBackoff        = time.Second
	maxReconnectBackoff     = 30 * time.Second
)

// RabbitMQPublisher enqueues EmailReceived events on a durable direct
// exchange with a dead-letter queue. Publishes are confirmed by the broker.
type RabbitMQPublisher struct {
	url string
	log logger.Logger

	connectionMutex sync.Mutex
	connection      *amqp091.Connection
	publishMutex    sync.Mutex
	publishChannel  *amqp091.Channel
	confirms        chan amqp091.Confirmation
}

func NewRabbitMQPublisher(rabbitmqURL string, log logger.Logger) (*RabbitMQPublisher, error) {
	publisher := &RabbitMQPublisher{
		url: rabbitmqURL,
		log: log,
	}
	if err := publisher.connect(); err != nil {
		return nil, err
	}
	return publisher, nil
}

func (r *RabbitMQPublisher) PublishEmailReceived(ctx context.Context, event dto.EmailReceived) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishEmailReceived")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", event.EmailID)

	var lastErr error
	for attempt := 0; attempt < defaultPublishRetries; attempt++ {
		lastErr = r.publishWithConfirm(ctx, event)
		if lastErr == nil {
			return nil
		}
		r.log.Warnf("publish attempt %d failed: %v", attempt+1, lastErr)
		time.Sleep(100 * time.Millisecond * time.Duration(attempt+1))
	}
	tracing.TraceErr(span, lastErr)
	return errors.Wrap(lastErr, "publish failed after retries")
}

func (r *RabbitMQPublisher) publishWithConfirm(ctx context.Context, event dto.EmailReceived) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.ensureConnectionAndChannel(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	err = r.publishChannel.Publish(
		ExchangeDirect,
		RoutingKeyEmailReceived,
		true,  // mandatory
		false, // immediate
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return errors.Wrap(err, "publish")
	}

	select {
	case confirm := <-r.confirms:
		if !confirm.Ack {
			return errors.New("message not confirmed by broker")
		}
	case <-time.After(defaultPublishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *RabbitMQPublisher) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	r.connection, err = amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "connect to RabbitMQ")
	}
	if err := declareTopology(r.connection); err != nil {
		return err
	}
	if err := r.setupPublishChannel(); err != nil {
		return err
	}

	go r.handleReconnection()
	return nil
}

func (r *RabbitMQPublisher) setupPublishChannel() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "open publish channel")
	}
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		return errors.Wrap(err, "enable publisher confirms")
	}
	r.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	r.publishChannel = channel
	return nil
}

func (r *RabbitMQPublisher) ensureConnectionAndChannel() error {
	if r.connection == nil || r.connection.IsClosed() {
		if err := r.connect(); err != nil {
			return err
		}
	}
	if r.publishChannel == nil || r.publishChannel.IsClosed() {
		if err := r.setupPublishChannel(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RabbitMQPublisher) handleReconnection() {
	backoff := reconnectBackoff
	for {
		notifyClose := r.connection.NotifyClose(make(chan *amqp091.Error))
		closeErr := <-notifyClose
		if closeErr == nil {
			return
		}
		r.log.Warnf("RabbitMQ connection closed: %v, reconnecting", closeErr)

		for {
			if err := r.connect(); err == nil {
				r.log.Infof("reconnected to RabbitMQ")
				return
			} else {
				r.log.Errorf("reconnect failed: %v, retrying in %v", err, backoff)
			}
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxReconnectBackoff {
				backoff = maxReconnectBackoff
			}
		}
	}
}

func (r *RabbitMQPublisher) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	if r.publishChannel != nil {
		if closeErr := r.publishChannel.Close(); closeErr != nil {
			r.log.Errorf("closing publish channel: %v", closeErr)
			err = closeErr
		}
	}
	if r.connection != nil && !r.connection.IsClosed() {
		if closeErr := r.connection.Close(); closeErr != nil {
			r.log.Errorf("closing connection: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}
	return err
}

// declareTopology sets up the direct exchange, the email-received queue and
// its dead-letter pair. Safe to call repeatedly; declarations are idempotent.
func declareTopology(connection *amqp091.Connection) error {
	channel, err := connection.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel for topology setup")
	}
	defer channel.Close()

	if err := channel.ExchangeDeclare(ExchangeDeadLetter, "direct", true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declare dead letter exchange")
	}
	if err := channel.ExchangeDeclare(ExchangeDirect, "direct", true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declare direct exchange")
	}

	if _, err := channel.QueueDeclare(DLQEmailReceived, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "declare DLQ %s", DLQEmailReceived)
	}
	if err := channel.QueueBind(DLQEmailReceived, RoutingKeyDeadLetter, ExchangeDeadLetter, false, nil); err != nil {
		return errors.Wrapf(err, "bind DLQ %s", DLQEmailReceived)
	}

	args := map[string]interface{}{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": RoutingKeyDeadLetter,
		"x-message-ttl":             int64(defaultMessageTTL.Milliseconds()),
	}
	if _, err := channel.QueueDeclare(QueueEmailReceived, true, false, false, false, args); err != nil {
		return errors.Wrapf(err, "declare queue %s", QueueEmailReceived)
	}
	if err := channel.QueueBind(QueueEmailReceived, RoutingKeyEmailReceived, ExchangeDirect, false, nil); err != nil {
		return errors.Wrapf(err, "bind queue %s", QueueEmailReceived)
	}
	return nil
}
