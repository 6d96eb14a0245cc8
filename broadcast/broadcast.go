/*Package broadcast implements the controller-wide event hub: one typed
channel per event kind, any number of subscribers, ordering preserved
within a channel, and delivery that never blocks the publisher.
*/
package broadcast

import (
	"sync"

	"github.com/nasa-jpl/cncctl/errs"
)

// StatusUpdate is the payload of a statusUpdate event: a snapshot is
// supplied by the controller package, which has visibility into both
// state.Vector and coord; broadcast only fans out an already-built value
// of this type, kept as interface{} so this package has no dependency on
// controller/state and cannot form an import cycle.
type StatusUpdate = interface{}

// Hub is the typed publish/subscribe hub for controller-wide events. The
// zero value is not usable; use New.
type Hub struct {
	mu          sync.Mutex
	statusSubs  []chan StatusUpdate
	connectSubs []chan struct{}
	readySubs   []chan struct{}
	sentSubs    []chan string
	recvSubs    []chan string
	errSubs     []chan *errs.Error
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{}
}

// subscribeStruct is the shared implementation behind SubscribeConnected
// and SubscribeReady: it allocates a buffer-1 channel and appends it to
// the slice pointed to by subs. A publish that finds the buffer full is
// dropped (see publishStructNonBlocking).
func subscribeStruct(mu *sync.Mutex, subs *[]chan struct{}) <-chan struct{} {
	mu.Lock()
	defer mu.Unlock()
	ch := make(chan struct{}, 1)
	*subs = append(*subs, ch)
	return ch
}

// SubscribeStatusUpdate returns a channel receiving every (possibly
// coalesced) status update. The channel is buffered 1 and uses
// replace-pending semantics: a publish that finds the buffer full drops
// the stale pending value and installs the new one, so a slow subscriber
// never blocks the controller and never falls arbitrarily far behind;
// it only ever misses intermediate states, never the final one.
func (h *Hub) SubscribeStatusUpdate() <-chan StatusUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StatusUpdate, 1)
	h.statusSubs = append(h.statusSubs, ch)
	return ch
}

// SubscribeConnected returns a channel receiving a value when the
// transport opens. The channel is buffered 1; an event published while
// the previous one is still unread is dropped.
func (h *Hub) SubscribeConnected() <-chan struct{} {
	return subscribeStruct(&h.mu, &h.connectSubs)
}

// SubscribeReady returns a channel receiving a value when the device
// reports idle and un-alarmed. The channel is buffered 1; an event
// published while the previous one is still unread is dropped.
func (h *Hub) SubscribeReady() <-chan struct{} {
	return subscribeStruct(&h.mu, &h.readySubs)
}

// SubscribeSent returns a channel receiving the raw lines transmitted to
// the device, in order. The channel is buffered 1; a line published while
// the previous one is still unread is dropped.
func (h *Hub) SubscribeSent() <-chan string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan string, 1)
	h.sentSubs = append(h.sentSubs, ch)
	return ch
}

// SubscribeReceived returns a channel receiving the raw lines received
// from the device, in order. The channel is buffered 1; a line published
// while the previous one is still unread is dropped.
func (h *Hub) SubscribeReceived() <-chan string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan string, 1)
	h.recvSubs = append(h.recvSubs, ch)
	return ch
}

// SubscribeError returns a channel receiving controller-level errors. The
// channel is buffered 1; an error published while the previous one is
// still unread is dropped.
func (h *Hub) SubscribeError() <-chan *errs.Error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan *errs.Error, 1)
	h.errSubs = append(h.errSubs, ch)
	return ch
}

// publishDebounced delivers v to ch without blocking: if the buffer is
// full, the stale pending value is drained and replaced.
func publishDebounced(ch chan StatusUpdate, v StatusUpdate) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// PublishStatusUpdate fans a status snapshot out to every subscriber,
// coalescing with any update already pending delivery (see
// SubscribeStatusUpdate).
func (h *Hub) PublishStatusUpdate(v StatusUpdate) {
	h.mu.Lock()
	subs := append([]chan StatusUpdate(nil), h.statusSubs...)
	h.mu.Unlock()
	for _, ch := range subs {
		publishDebounced(ch, v)
	}
}

func publishStructNonBlocking(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// PublishConnected fans out a connected event.
func (h *Hub) PublishConnected() {
	h.mu.Lock()
	subs := append([]chan struct{}(nil), h.connectSubs...)
	h.mu.Unlock()
	for _, ch := range subs {
		publishStructNonBlocking(ch)
	}
}

// PublishReady fans out a ready event.
func (h *Hub) PublishReady() {
	h.mu.Lock()
	subs := append([]chan struct{}(nil), h.readySubs...)
	h.mu.Unlock()
	for _, ch := range subs {
		publishStructNonBlocking(ch)
	}
}

// PublishSent fans out a sent(raw) event.
func (h *Hub) PublishSent(raw string) {
	h.mu.Lock()
	subs := append([]chan string(nil), h.sentSubs...)
	h.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- raw:
		default:
		}
	}
}

// PublishReceived fans out a received(raw) event.
func (h *Hub) PublishReceived(raw string) {
	h.mu.Lock()
	subs := append([]chan string(nil), h.recvSubs...)
	h.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- raw:
		default:
		}
	}
}

// PublishError fans out a controller-level error event.
func (h *Hub) PublishError(e *errs.Error) {
	h.mu.Lock()
	subs := append([]chan *errs.Error(nil), h.errSubs...)
	h.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}
