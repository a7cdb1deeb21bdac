package store

import (
	"sync"

	"github.com/priya-sharma/stitchbook-api/pkg/logger"
)

// Handler observes "store changed" events. The only payload is the store
// name: deliveries may coalesce, so subscribers must re-read state rather
// than trust event contents.
type Handler func(storeName string)

// ChangeNotifier is a process-wide synchronous fan-out of store-change
// events, used to invalidate cached views. Owned by the LocalStore and
// passed by reference; never a package-level singleton.
type ChangeNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Handler
	log    logger.Logger
}

// NewChangeNotifier creates an empty notifier.
func NewChangeNotifier(log logger.Logger) *ChangeNotifier {
	return &ChangeNotifier{
		subs: make(map[int]Handler),
		log:  log,
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Subscribing or unsubscribing inside a handler is safe: an in-flight
// Notify fires against the subscriber set as it was at notify time.
func (n *ChangeNotifier) Subscribe(h Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subs[id] = h

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Notify fires to all current subscribers synchronously, in undefined order.
// A panicking subscriber is recovered and logged so the rest still run.
func (n *ChangeNotifier) Notify(storeName string) {
	n.mu.Lock()
	snapshot := make([]Handler, 0, len(n.subs))
	for _, h := range n.subs {
		snapshot = append(snapshot, h)
	}
	n.mu.Unlock()

	for _, h := range snapshot {
		n.fire(h, storeName)
	}
}

func (n *ChangeNotifier) fire(h Handler, storeName string) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("Change subscriber panicked", "store", storeName, "panic", r)
		}
	}()
	h(storeName)
}
