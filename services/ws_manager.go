package services

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Push event types.
const (
	EventIncomingCall = "incoming_call"
	EventCallAccepted = "call_accepted"
	EventCallRejected = "call_rejected"
	EventCallEnded    = "call_ended"
	EventNewMessage   = "new_message"
)

// Close codes used on the push channel.
const (
	CloseNoToken      = 4001
	CloseNoSubject    = 4002
	CloseInvalidToken = 4003
	CloseReplaced     = 4000
	CloseNormal       = 1000
	CloseGoingAway    = 1001
)

const sendBuffer = 64

// Event is the envelope written to push channels.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Channel is the server-to-client half of a push connection.
type Channel interface {
	WriteJSON(v interface{}) error
	Close(code int, reason string) error
}

// Pusher is what the call and message services need from the registry.
type Pusher interface {
	Send(userID uint, ev Event) bool
}

// Client is one registered push connection.
type Client struct {
	ID     string
	UserID uint

	ch   Channel
	send chan Event
	done chan struct{}
	once sync.Once
}

func newClient(userID uint, ch Channel) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		ch:     ch,
		send:   make(chan Event, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Done is closed once the client has been shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

// shutdown stops the writer and closes the channel. Safe to call repeatedly.
func (c *Client) shutdown(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.ch.Close(code, reason)
	})
}

// enqueue never blocks: a closed client or a full buffer drops the event.
func (c *Client) enqueue(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *Client) writeLoop(r *Registry) {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			if err := c.ch.WriteJSON(ev); err != nil {
				log.WithFields(log.Fields{"user_id": c.UserID, "event": ev.Type}).
					WithError(err).Debug("push write failed")
				r.metrics.pushDropped(ev.Type)
				r.Unregister(c)
				return
			}
			r.metrics.pushDelivered(ev.Type)
		}
	}
}

// Registry maps each online user to exactly one push connection.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint]*Client
	closed  bool
	metrics *Metrics
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(metrics *Metrics) *Registry {
	return &Registry{
		clients: make(map[uint]*Client),
		metrics: metrics,
	}
}

// Register associates ch with userID. A previous connection of the same user
// is evicted and closed.
func (r *Registry) Register(userID uint, ch Channel) *Client {
	c := newClient(userID, ch)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		c.shutdown(CloseGoingAway, "server shutting down")
		return c
	}
	old := r.clients[userID]
	r.clients[userID] = c
	online := len(r.clients)
	r.mu.Unlock()

	if old != nil {
		old.shutdown(CloseReplaced, "replaced by a new connection")
	}
	r.metrics.setOnline(online)
	go c.writeLoop(r)

	log.WithFields(log.Fields{"user_id": userID, "conn_id": c.ID}).Info("push client registered")
	return c
}

// Unregister removes c if it is still the user's registered connection and
// closes it.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	removed := false
	if cur, ok := r.clients[c.UserID]; ok && cur == c {
		delete(r.clients, c.UserID)
		removed = true
	}
	online := len(r.clients)
	r.mu.Unlock()

	c.shutdown(CloseNormal, "bye")
	if removed {
		r.metrics.setOnline(online)
		log.WithFields(log.Fields{"user_id": c.UserID, "conn_id": c.ID}).Info("push client unregistered")
	}
}

// Remove drops whatever connection userID has.
func (r *Registry) Remove(userID uint) {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()
	if ok {
		r.Unregister(c)
	}
}

// Send delivers ev to userID if they are online. It never blocks and never
// fails; the return value only reports whether the event was queued.
func (r *Registry) Send(userID uint, ev Event) bool {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()

	if !ok || !c.enqueue(ev) {
		r.metrics.pushDropped(ev.Type)
		log.WithFields(log.Fields{"user_id": userID, "event": ev.Type}).Debug("push dropped")
		return false
	}
	return true
}

// Online reports whether userID has a registered connection.
func (r *Registry) Online(userID uint) bool {
	r.mu.RLock()
	_, ok := r.clients[userID]
	r.mu.RUnlock()
	return ok
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close disconnects everyone. Later registrations are refused.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[uint]*Client)
	r.closed = true
	r.mu.Unlock()

	for _, c := range clients {
		c.shutdown(CloseGoingAway, "server shutting down")
	}
	r.metrics.setOnline(0)
}
