package ws

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sketchwave/server/internal/ratelimit"
	"github.com/sketchwave/server/internal/relay"
	"github.com/sketchwave/server/internal/room"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 64 * 1024
	messagesPerSecond = 100
	messageBurst      = 200
	sendQueueSize     = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live websocket connection. It implements room.Outbox: the
// relay engine enqueues frames into send, and writePump drains them to the
// browser. The bounded queue plus Close on overflow is the backpressure
// policy: a slow consumer is disconnected, never allowed to stall its room.
type Client struct {
	engine      *relay.Engine
	conn        *websocket.Conn
	id          string
	rateLimiter *ratelimit.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// ServeWS upgrades the request and starts the connection's goroutine pair.
// A ?room= query parameter joins immediately; otherwise the client sends a
// joinRoom frame when it is ready.
func ServeWS(engine *relay.Engine, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &Client{
		engine:      engine,
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		id:          uuid.NewString(),
		rateLimiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
	}

	if code := r.URL.Query().Get("room"); code != "" {
		if _, err := engine.Join(client, code); err != nil {
			client.Deliver(relay.ErrorFrame(err.Error()))
		}
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) ID() string { return c.id }

// Deliver enqueues without blocking; false means the queue is full or the
// client is already closed. Deliver and Close share c.mu so a late fan-out
// can never send on the closed channel.
func (c *Client) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close shuts the outbound queue, which unwinds writePump and the
// underlying connection. Safe to call from any goroutine, any number of
// times.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.engine.Leave(c.id)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				log.Printf("⚠️ Rate limit exceeded for connection %s (warning #%d)",
					c.id, rateLimitWarnings)
			}
			if rateLimitWarnings > 1000 {
				log.Printf("🚫 Disconnecting connection %s for excessive rate limit violations", c.id)
				return
			}
			continue
		}

		env, err := relay.Decode(message)
		if err != nil {
			c.Deliver(relay.ErrorFrame(err.Error()))
			continue
		}
		c.dispatch(env)
	}
}

// dispatch routes one inbound frame. Every rejection is scoped to this
// connection: an error frame goes back to the sender and the room carries
// on.
func (c *Client) dispatch(env relay.Envelope) {
	var err error
	switch env.Event {
	case relay.EventJoinRoom:
		_, err = c.engine.Join(c, env.Code)
	case relay.EventRequestHistory:
		_, err = c.engine.RequestHistory(c.id)
	case relay.EventDraw, relay.EventShape, relay.EventText:
		if env.Action == nil {
			err = errors.New("missing action payload")
			break
		}
		err = c.engine.Submit(c.id, *env.Action)
	case relay.EventClear:
		err = c.engine.Clear(c.id)
	default:
		err = errors.New("unknown event: " + env.Event)
	}

	if err != nil {
		if errors.Is(err, room.ErrClearCooldown) {
			log.Printf("Clear rejected for connection %s: cooldown active", c.id)
		}
		c.Deliver(relay.ErrorFrame(err.Error()))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
