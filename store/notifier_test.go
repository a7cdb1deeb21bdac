package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/priya-sharma/stitchbook-api/pkg/logger"
)

func TestNotifierFansOutToAllSubscribers(t *testing.T) {
	n := NewChangeNotifier(logger.NewNopLogger())

	var first, second []string
	n.Subscribe(func(name string) { first = append(first, name) })
	n.Subscribe(func(name string) { second = append(second, name) })

	n.Notify("orders")
	n.Notify("orders")

	assert.Equal(t, []string{"orders", "orders"}, first)
	assert.Equal(t, []string{"orders", "orders"}, second)
}

func TestNotifierUnsubscribeStopsDelivery(t *testing.T) {
	n := NewChangeNotifier(logger.NewNopLogger())

	count := 0
	unsubscribe := n.Subscribe(func(string) { count++ })

	n.Notify("orders")
	unsubscribe()
	n.Notify("orders")

	assert.Equal(t, 1, count)
}

func TestNotifierPanickingSubscriberDoesNotStarveOthers(t *testing.T) {
	n := NewChangeNotifier(logger.NewNopLogger())

	survived := 0
	n.Subscribe(func(string) { panic("bad subscriber") })
	n.Subscribe(func(string) { survived++ })
	n.Subscribe(func(string) { panic("another bad subscriber") })
	n.Subscribe(func(string) { survived++ })

	assert.NotPanics(t, func() { n.Notify("orders") })
	assert.Equal(t, 2, survived)
}

func TestNotifierSubscribeDuringNotify(t *testing.T) {
	n := NewChangeNotifier(logger.NewNopLogger())

	lateCalls := 0
	n.Subscribe(func(string) {
		// Registering mid-fan-out must not deadlock and must not deliver
		// the in-flight notification to the new subscriber.
		n.Subscribe(func(string) { lateCalls++ })
	})

	n.Notify("orders")
	assert.Equal(t, 0, lateCalls)

	n.Notify("orders")
	assert.Equal(t, 1, lateCalls)
}

func TestNotifierUnsubscribeDuringNotify(t *testing.T) {
	n := NewChangeNotifier(logger.NewNopLogger())

	calls := 0
	var unsubscribe func()
	n.Subscribe(func(string) {
		if unsubscribe != nil {
			unsubscribe()
			unsubscribe = nil
		}
	})
	unsubscribe = n.Subscribe(func(string) { calls++ })

	assert.NotPanics(t, func() { n.Notify("orders") })
	// The snapshot taken at notify time may or may not still include the
	// removed handler; later notifications must not.
	firstRound := calls
	n.Notify("orders")
	assert.Equal(t, firstRound, calls)
}
