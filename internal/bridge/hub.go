package bridge

import (
	"sync"

	"github.com/google/uuid"
)

// Envelope is an inbound message as the receiving window sees it.
type Envelope struct {
	Origin string
	Data   []byte
}

// Channel connects one hosting window with the viewer screen it embeds or
// opened. The viewer announces itself to the host; the host posts
// deliveries to the viewer.
type Channel struct {
	ID string

	mu        sync.Mutex
	listeners map[int]func(Envelope)
	hosts     map[int]chan Message
	nextID    int
	closed    bool
}

func newChannel(id string) *Channel {
	return &Channel{
		ID:        id,
		listeners: make(map[int]func(Envelope)),
		hosts:     make(map[int]chan Message),
	}
}

// Listen registers fn for inbound envelopes and returns its removal.
func (c *Channel) Listen(fn func(Envelope)) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Post delivers env to every current listener and reports how many there
// were. Messages posted while nobody listens are lost.
func (c *Channel) Post(env Envelope) int {
	c.mu.Lock()
	fns := make([]func(Envelope), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(env)
	}
	return len(fns)
}

// SubscribeTop returns the stream of messages the viewer sends to the
// hosting window.
func (c *Channel) SubscribeTop() (<-chan Message, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Message, 4)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.hosts[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.hosts[id]; ok {
			delete(c.hosts, id)
			close(sub)
		}
	}
}

// PostToTop sends m to the hosting window subscribers. Slow subscribers
// miss messages rather than block the viewer.
func (c *Channel) PostToTop(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.hosts {
		select {
		case ch <- m:
		default:
		}
	}
}

func (c *Channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.hosts {
		delete(c.hosts, id)
		close(ch)
	}
	clear(c.listeners)
}

// Hub hands out channels by id.
type Hub struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]*Channel)}
}

// Channel returns the channel for id, creating it on first use. An empty
// id gets a fresh random one.
func (h *Hub) Channel(id string) *Channel {
	if id == "" {
		id = uuid.NewString()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[id]
	if !ok {
		c = newChannel(id)
		h.channels[id] = c
	}
	return c
}

func (h *Hub) Lookup(id string) (*Channel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[id]
	return c, ok
}

func (h *Hub) Close(id string) {
	h.mu.Lock()
	c, ok := h.channels[id]
	delete(h.channels, id)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}
