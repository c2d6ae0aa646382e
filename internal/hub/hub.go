// Package hub fans job change notifications out to connected dashboards.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/jobs"
	"github.com/Glen-Yegon/niapay-carwash1/internal/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	relayTimeout   = 2 * time.Second
	relayQueueSize = 256
)

// ErrRelayBacklog is returned by Dispatch when the relay publisher has fallen
// behind and the frame was delivered locally only.
var ErrRelayBacklog = errors.New("relay backlog full")

// Subscription narrows what a client receives. An empty Token means every job.
type Subscription struct {
	Token string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Token  string `json:"job_token"`
}

// Message is the frame written to dashboard clients.
type Message struct {
	Type      string          `json:"type"`
	Token     string          `json:"job_token,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Relay carries messages between service replicas so that a dashboard
// connected to one replica sees changes made through another.
type Relay interface {
	Publish(ctx context.Context, raw []byte) error
	Start(ctx context.Context, onMsg func(raw []byte)) error
	Close() error
}

type relayFrame struct {
	Origin  string  `json:"origin"`
	Message Message `json:"message"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logger.Logger
	now     func() time.Time
	origin  string
	relay   Relay
	// outbound feeds the relay publisher started by StartRelay.
	outbound chan []byte
}

type Option func(*Hub)

func WithLogger(log *logger.Logger) Option {
	return func(h *Hub) { h.log = log }
}

func WithRelay(relay Relay) Option {
	return func(h *Hub) { h.relay = relay }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func New(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		log:     logger.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
		origin:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("component", "hub")
	if h.relay != nil {
		h.outbound = make(chan []byte, relayQueueSize)
	}
	return h
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers to local clients only. Slow clients lose the frame
// rather than stall the sender.
func (h *Hub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode hub message", "type", msg.Type, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, msg) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.log.Warn("drop message for slow client", "client_id", client.ID, "type", msg.Type)
		}
	}
}

// Dispatch implements jobs.EventDispatcher. Local clients are served before it
// returns. The relay copy is queued for the publisher started by StartRelay.
func (h *Hub) Dispatch(event jobs.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	msg := Message{Type: event.Type(), Payload: body, CreatedAt: h.now()}
	if changed, ok := event.(jobs.JobChanged); ok {
		msg.Token = changed.Token
		if !changed.At.IsZero() {
			msg.CreatedAt = changed.At
		}
	}
	h.Broadcast(msg)

	if h.relay == nil {
		return nil
	}
	raw, err := json.Marshal(relayFrame{Origin: h.origin, Message: msg})
	if err != nil {
		return errors.Wrap(err, "encode relay frame")
	}
	select {
	case h.outbound <- raw:
		return nil
	default:
		return ErrRelayBacklog
	}
}

// StartRelay forwards frames published by other replicas to local clients
// and starts publishing this replica's queued frames. Both stop with ctx.
func (h *Hub) StartRelay(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	err := h.relay.Start(ctx, func(raw []byte) {
		var frame relayFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.log.Warn("bad relay frame", "error", err)
			return
		}
		if frame.Origin == h.origin {
			return
		}
		h.Broadcast(frame.Message)
	})
	if err != nil {
		return err
	}
	go h.publish(ctx)
	return nil
}

func (h *Hub) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-h.outbound:
			pubCtx, cancel := context.WithTimeout(ctx, relayTimeout)
			if err := h.relay.Publish(pubCtx, raw); err != nil {
				h.log.Warn("relay publish failed", "error", err)
			}
			cancel()
		}
	}
}

func match(sub Subscription, msg Message) bool {
	return sub.Token == "" || sub.Token == msg.Token
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
