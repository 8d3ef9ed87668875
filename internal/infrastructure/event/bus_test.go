package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType, productID string) *testEvent {
	return &testEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "ProductInventory", productID)}
}

type recordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicMsg   string
}

func newRecordingHandler(eventTypes ...string) *recordingHandler {
	return &recordingHandler{eventTypes: eventTypes}
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.eventTypes }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))

	shortage := newRecordingHandler("StockShortageDetected")
	expired := newRecordingHandler("LotExpired")
	all := newRecordingHandler()
	bus.Subscribe(shortage)
	bus.Subscribe(expired)
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("StockShortageDetected", "pork-belly"),
		newTestEvent("StockShortageDetected", "beef-chuck"),
		newTestEvent("LotExpired", "pork-belly"),
	))

	assert.Equal(t, 2, shortage.count())
	assert.Equal(t, 1, expired.count())
	assert.Equal(t, 3, all.count(), "a handler without event types receives everything")

	delivered, failed := bus.Stats()
	assert.Equal(t, int64(6), delivered)
	assert.Zero(t, failed)
}

func TestInMemoryEventBus_SubscribeOverridesHandlerTypes(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	h := newRecordingHandler("LotExpired")
	bus.Subscribe(h, "LotOpened")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("LotExpired", "p"), newTestEvent("LotOpened", "p")))
	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_FailuresAreIsolated(t *testing.T) {
	bus := NewInMemoryEventBus(zaptest.NewLogger(t))

	failing := newRecordingHandler("LotExpired")
	failing.err = errors.New("notifier down")
	panicking := newRecordingHandler("LotExpired")
	panicking.panicMsg = "boom"
	healthy := newRecordingHandler("LotExpired")
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("LotExpired", "pork-belly"))
	require.NoError(t, err, "handler errors never reach the publisher")
	assert.Equal(t, 1, healthy.count())

	delivered, failed := bus.Stats()
	assert.Equal(t, int64(1), delivered)
	assert.Equal(t, int64(2), failed)
}

func TestInMemoryEventBus_StopDropsEvents(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	h := newRecordingHandler("LotOpened")
	bus.Subscribe(h)

	ctx := context.Background()
	require.NoError(t, bus.Stop(ctx))
	require.NoError(t, bus.Publish(ctx, newTestEvent("LotOpened", "p")))
	assert.Zero(t, h.count())

	require.NoError(t, bus.Start(ctx))
	require.NoError(t, bus.Publish(ctx, newTestEvent("LotOpened", "p")))
	assert.Equal(t, 1, h.count())
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	a := newRecordingHandler()
	b := newRecordingHandler()
	w := newRecordingHandler()

	r.Register(a, "LotOpened", "LotExpired")
	r.Register(b, "LotExpired")
	r.Register(w)
	assert.Equal(t, 3, r.Len())

	assert.Equal(t, []shared.EventHandler{a, b, w}, r.Handlers("LotExpired"))
	assert.Equal(t, []shared.EventHandler{w}, r.Handlers("Unknown"))

	r.Unregister(a)
	assert.Equal(t, []shared.EventHandler{w}, r.Handlers("LotOpened"))
	assert.Equal(t, []shared.EventHandler{b, w}, r.Handlers("LotExpired"))

	r.Unregister(w)
	r.Unregister(b)
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Handlers("LotExpired"))
}
