package api

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"price-negotiation/backend/internal/offer"
)

const (
	recentDecisionLimit = 20
	clientQueueSize     = 32
	writeTimeout        = 10 * time.Second
)

// DecisionEvent describes websocket payloads emitted after every negotiation turn.
type DecisionEvent struct {
	Type           string    `json:"type"`
	ShopID         string    `json:"shop_id"`
	SessionID      string    `json:"session_id,omitempty"`
	ProductID      string    `json:"product_id"`
	Round          int       `json:"round"`
	Status         string    `json:"status"`
	Category       string    `json:"category,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OfferValue     *float64  `json:"offer_value,omitempty"`
	CounterPrice   *float64  `json:"counter_price,omitempty"`
	DiscountAmount float64   `json:"discount_amount,omitempty"`
	Final          bool      `json:"final,omitempty"`
	Source         string    `json:"source,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// wsClient owns a websocket connection and the queue its writer drains.
type wsClient struct {
	conn   *websocket.Conn
	shopID string
	send   chan DecisionEvent
	once   sync.Once
}

// DecisionNotifier keeps track of connected dashboards and broadcasts decisions.
// Broadcast never waits on a socket; a client whose queue is full is dropped.
type DecisionNotifier struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	recent  []DecisionEvent
}

// NewDecisionNotifier constructs a notifier instance.
func NewDecisionNotifier() *DecisionNotifier {
	return &DecisionNotifier{clients: make(map[*wsClient]struct{})}
}

func newWSClient(conn *websocket.Conn, shopID string) *wsClient {
	return &wsClient{conn: conn, shopID: shopID, send: make(chan DecisionEvent, clientQueueSize)}
}

// Register attaches a websocket connection for one shop, queues the most recent
// decisions of that shop and starts the connection writer.
func (n *DecisionNotifier) Register(conn *websocket.Conn, shopID string) *wsClient {
	client := newWSClient(conn, shopID)
	n.mu.Lock()
	for _, event := range n.recent {
		if client.wants(event) {
			client.send <- event
		}
	}
	n.clients[client] = struct{}{}
	n.mu.Unlock()

	go client.writeLoop()
	return client
}

// Unregister removes the websocket client from the notifier and closes the socket.
func (n *DecisionNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	client.close()
}

// ObserveDecision implements offer.Observer.
func (n *DecisionNotifier) ObserveDecision(_ context.Context, event offer.Event) {
	n.Broadcast(decisionEventFrom(event))
}

// Broadcast queues the supplied event for every interested client.
func (n *DecisionNotifier) Broadcast(event DecisionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.recent = append(n.recent, event)
	if len(n.recent) > recentDecisionLimit {
		n.recent = n.recent[len(n.recent)-recentDecisionLimit:]
	}
	for client := range n.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.send <- event:
		default:
			logrus.WithField("shop", client.shopID).Warn("decision websocket too slow, dropping client")
			delete(n.clients, client)
			client.close()
		}
	}
}

// Recent returns a copy of the buffered decisions, oldest first.
func (n *DecisionNotifier) Recent() []DecisionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]DecisionEvent, len(n.recent))
	copy(out, n.recent)
	return out
}

func decisionEventFrom(event offer.Event) DecisionEvent {
	d := event.Decision
	return DecisionEvent{
		Type:           "decision",
		ShopID:         event.ShopID,
		SessionID:      event.SessionID,
		ProductID:      event.ProductID,
		Round:          event.Round,
		Status:         string(d.Status),
		Category:       string(d.Category),
		Reason:         string(d.Reason),
		OfferValue:     d.OfferValue,
		CounterPrice:   d.CounterPrice,
		DiscountAmount: d.DiscountAmount,
		Final:          d.Final,
		Source:         string(event.Source),
		DurationMs:     event.Duration.Milliseconds(),
		Timestamp:      event.At,
	}
}

func (c *wsClient) wants(event DecisionEvent) bool {
	return c.shopID == event.ShopID
}

// close stops the writer and the socket. Callers must have removed the client
// from the notifier first so nothing sends on the closed queue.
func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *wsClient) writeLoop() {
	for event := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(event); err != nil {
			logrus.WithError(err).WithField("shop", c.shopID).Debug("write decision event")
			_ = c.conn.Close()
			return
		}
	}
}
