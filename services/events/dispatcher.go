package events

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const (
	dispatcherBuffer  = 256
	dispatcherWorkers = 4
)

// InProcessDispatcher is the broker-less stand-in used when RABBITMQ_URL is
// empty: publishes go onto an in-memory queue drained by worker goroutines
// calling the same handler the RabbitMQ consumer would.
type InProcessDispatcher struct {
	log     logger.Logger
	handler interfaces.EmailReceivedHandler

	queue     chan dto.EmailReceived
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewInProcessDispatcher(log logger.Logger, handler interfaces.EmailReceivedHandler) *InProcessDispatcher {
	d := &InProcessDispatcher{
		log:     log,
		handler: handler,
		queue:   make(chan dto.EmailReceived, dispatcherBuffer),
	}
	for i := 0; i < dispatcherWorkers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *InProcessDispatcher) PublishEmailReceived(ctx context.Context, event dto.EmailReceived) error {
	select {
	case d.queue <- event:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "dispatch aborted")
	}
}

func (d *InProcessDispatcher) work() {
	defer d.wg.Done()
	for event := range d.queue {
		d.handleOne(event)
	}
}

func (d *InProcessDispatcher) handleOne(event dto.EmailReceived) {
	defer tracing.RecoverAndLogToJaeger(d.log)

	ctx := utils.SetTenantInContext(context.Background(), event.TenantID)
	if err := d.handler.Handle(ctx, event); err != nil {
		d.log.Errorf("handling email %s failed: %v", event.EmailID, err)
	}
}

// Close drains the queue and stops the workers.
func (d *InProcessDispatcher) Close() error {
	d.closeOnce.Do(func() { close(d.queue) })
	d.wg.Wait()
	return nil
}
