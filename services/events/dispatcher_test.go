package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/utils"
)

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error", DevMode: true, Encoder: "console"})
	l.InitLogger()
	return l
}

type recordingHandler struct {
	mu      sync.Mutex
	handled []dto.EmailReceived
	tenants []string
}

func (h *recordingHandler) Handle(ctx context.Context, event dto.EmailReceived) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	h.tenants = append(h.tenants, utils.GetTenantFromContext(ctx))
	return nil
}

func TestInProcessDispatcher_DeliversToHandler(t *testing.T) {
	handler := &recordingHandler{}
	d := NewInProcessDispatcher(testLogger(), handler)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.PublishEmailReceived(context.Background(), dto.EmailReceived{
			TenantID: "user_1",
			EmailID:  "email_1",
		}))
	}
	require.NoError(t, d.Close())

	assert.Len(t, handler.handled, 5)
	for _, tenant := range handler.tenants {
		assert.Equal(t, "user_1", tenant)
	}
}

func TestInProcessDispatcher_PublishAbortsOnCancelledContext(t *testing.T) {
	// an unread queue at capacity forces Publish to wait on the context
	blocked := make(chan struct{})
	handler := &blockingHandler{release: blocked}
	d := NewInProcessDispatcher(testLogger(), handler)
	defer func() {
		close(blocked)
		_ = d.Close()
	}()

	// fill workers and the buffer
	for i := 0; i < dispatcherBuffer+dispatcherWorkers; i++ {
		require.NoError(t, d.PublishEmailReceived(context.Background(), dto.EmailReceived{EmailID: "fill"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.PublishEmailReceived(ctx, dto.EmailReceived{EmailID: "overflow"})
	assert.Error(t, err)
}

type blockingHandler struct {
	release chan struct{}
}

func (h *blockingHandler) Handle(ctx context.Context, event dto.EmailReceived) error {
	<-h.release
	return nil
}
