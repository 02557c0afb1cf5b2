package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

// RabbitMQConsumer delivers queued EmailReceived events to the handler.
// A failed handle nacks without requeue so the message lands in the DLQ.
type RabbitMQConsumer struct {
	url     string
	log     logger.Logger
	handler interfaces.EmailReceivedHandler

	connectionMutex sync.Mutex
	connection      *amqp091.Connection
	stop            chan struct{}
	stopOnce        sync.Once
}

func NewRabbitMQConsumer(rabbitmqURL string, log logger.Logger, handler interfaces.EmailReceivedHandler) (*RabbitMQConsumer, error) {
	consumer := &RabbitMQConsumer{
		url:     rabbitmqURL,
		log:     log,
		handler: handler,
		stop:    make(chan struct{}),
	}
	if err := consumer.connect(); err != nil {
		return nil, err
	}
	return consumer, nil
}

// Start consumes the email-received queue until Close is called. Consume
// loops reconnect on channel loss.
func (r *RabbitMQConsumer) Start() {
	go func() {
		for {
			select {
			case <-r.stop:
				return
			default:
			}

			channel, err := r.connection.Channel()
			if err != nil {
				r.log.Errorf("opening channel for queue %s failed: %v, retrying", QueueEmailReceived, err)
				time.Sleep(5 * time.Second)
				continue
			}

			deliveries, err := channel.Consume(
				QueueEmailReceived,
				"",    // consumer tag
				false, // auto-ack
				false, // exclusive
				false, // no-local
				false, // no-wait
				nil,
			)
			if err != nil {
				channel.Close()
				r.log.Errorf("registering consumer on %s failed: %v, retrying", QueueEmailReceived, err)
				time.Sleep(5 * time.Second)
				continue
			}

			r.log.Infof("listening for messages on queue %s", QueueEmailReceived)
			for delivery := range deliveries {
				r.handleDelivery(delivery)
			}
			channel.Close()

			select {
			case <-r.stop:
				return
			default:
				r.log.Warnf("consume loop for %s ended, reconnecting", QueueEmailReceived)
				time.Sleep(5 * time.Second)
			}
		}
	}()
}

func (r *RabbitMQConsumer) handleDelivery(delivery amqp091.Delivery) {
	defer tracing.RecoverAndLogToJaeger(r.log)

	if err := r.processDelivery(delivery); err != nil {
		r.log.Errorf("processing message on %s failed: %v", QueueEmailReceived, err)
		r.ackNack(delivery, false)
		return
	}
	r.ackNack(delivery, true)
}

func (r *RabbitMQConsumer) processDelivery(delivery amqp091.Delivery) error {
	var event dto.EmailReceived
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		return errors.Wrap(err, "unmarshal EmailReceived")
	}

	ctx := utils.SetTenantInContext(context.Background(), event.TenantID)
	span, ctx := tracing.StartTracerSpan(ctx, "RabbitMQConsumer.processDelivery")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	span.SetTag("email.id", event.EmailID)

	return r.handler.Handle(ctx, event)
}

func (r *RabbitMQConsumer) ackNack(delivery amqp091.Delivery, ack bool) {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		var err error
		if ack {
			err = delivery.Ack(false)
		} else {
			err = delivery.Nack(false, false)
		}
		if err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	r.log.Errorf("failed to settle message after %d attempts (ack=%v)", attempts, ack)
}

func (r *RabbitMQConsumer) connect() error {
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

	go func() {
		notifyClose := r.connection.NotifyClose(make(chan *amqp091.Error))
		closeErr := <-notifyClose
		if closeErr == nil {
			return
		}
		select {
		case <-r.stop:
		default:
			r.log.Warnf("RabbitMQ consumer connection closed: %v, reconnecting", closeErr)
			_ = r.connect()
		}
	}()
	return nil
}

func (r *RabbitMQConsumer) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })

	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()
	if r.connection != nil && !r.connection.IsClosed() {
		return r.connection.Close()
	}
	return nil
}
