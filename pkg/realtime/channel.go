// Package realtime maintains the push subscription to the feed
// backend. Delivery is at-least-once with no ordering guarantee and no
// replay after a disconnect: on every reconnect the channel fires its
// reconnect hooks so the consumer can heal by refetching canonical
// state.
package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pulse/pkg/envelope"
)

type Handler func(envelope.Envelope)

// Subscription identifies one registered handler so it can be removed.
type Subscription int

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Channel is a websocket client with auto-reconnect. It is an injected
// service with an explicit lifecycle: the owner calls Connect (in a
// goroutine) and Close, nothing here is a lazy singleton.
type Channel struct {
	url   string
	token string

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID Subscription

	handlerMu   sync.RWMutex
	handlers    map[string]map[Subscription]Handler
	onReconnect map[Subscription]func()

	done chan struct{}
	once sync.Once
}

func New(url, token string) *Channel {
	return &Channel{
		url:         url,
		token:       token,
		handlers:    make(map[string]map[Subscription]Handler),
		onReconnect: make(map[Subscription]func()),
		done:        make(chan struct{}),
	}
}

// Subscribe registers a handler for one event action. Handlers run on
// the read goroutine, one at a time, so consumers see events already
// serialized.
func (c *Channel) Subscribe(action string, h Handler) Subscription {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.nextID++
	id := c.nextID
	if c.handlers[action] == nil {
		c.handlers[action] = make(map[Subscription]Handler)
	}
	c.handlers[action][id] = h
	return id
}

func (c *Channel) Unsubscribe(action string, sub Subscription) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	delete(c.handlers[action], sub)
}

// OnReconnect registers a hook fired after every re-established
// connection (not the first). Missed events are not replayed, so the
// hook is where consumers trigger their reconciliation refetch.
func (c *Channel) OnReconnect(fn func()) Subscription {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.nextID++
	id := c.nextID
	c.onReconnect[id] = fn
	return id
}

func (c *Channel) RemoveReconnect(sub Subscription) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	delete(c.onReconnect, sub)
}

// Connect blocks, keeping the subscription alive until Close. Run it
// with go. Reconnect attempts back off from 1s doubling to 30s and
// reset after a successful dial.
func (c *Channel) Connect() {
	backoff := initialBackoff
	connected := false

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.dial(); err != nil {
			log.Printf("[realtime] dial %s: %v — retry in %s", c.url, err, backoff)
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff
		if connected {
			log.Printf("[realtime] reconnected to %s", c.url)
			c.fireReconnect()
		} else {
			log.Printf("[realtime] connected to %s", c.url)
			connected = true
		}

		c.readLoop()

		select {
		case <-c.done:
			return
		default:
			log.Printf("[realtime] connection lost — reconnecting")
		}
	}
}

func (c *Channel) dial() error {
	header := map[string][]string{}
	if c.token != "" {
		header["Authorization"] = []string{"Bearer " + c.token}
	}
	conn, _, err := websocket.DefaultDialer.Dial(c.url, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Channel) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}

		env, err := envelope.Unmarshal(raw)
		if err != nil || env.Action == "" {
			// Malformed frames are dropped, never fatal.
			log.Printf("[realtime] dropping malformed frame: %v", err)
			continue
		}

		c.Dispatch(env)
	}
}

// Dispatch routes one envelope to its subscribers. Exported so tests
// and local tooling can feed events without a live socket.
func (c *Channel) Dispatch(env envelope.Envelope) {
	c.handlerMu.RLock()
	hs := make([]Handler, 0, len(c.handlers[env.Action]))
	for _, h := range c.handlers[env.Action] {
		hs = append(hs, h)
	}
	c.handlerMu.RUnlock()

	for _, h := range hs {
		h(env)
	}
}

func (c *Channel) fireReconnect() {
	c.handlerMu.RLock()
	hooks := make([]func(), 0, len(c.onReconnect))
	for _, fn := range c.onReconnect {
		hooks = append(hooks, fn)
	}
	c.handlerMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
	})
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}
