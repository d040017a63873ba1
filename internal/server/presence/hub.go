// Package presence tracks connected clients, the conversation rooms they
// joined, and fans events out to them. Transport concerns (websocket framing,
// pumps) live in package ws.
package presence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/carenest/internal/logging"
	"github.com/google/uuid"
)

// Event names exchanged with clients.
const (
	EventJoin           = "conversation:join"
	EventLeave          = "conversation:leave"
	EventJoined         = "conversation:joined"
	EventTypingStart    = "typing:start"
	EventTypingStop     = "typing:stop"
	EventMessageNew     = "message:new"
	EventMessageRead    = "message:read"
	EventMessageDeleted = "message:deleted"
	EventError          = "error"
)

const defaultBufferSize = 64

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Broadcast is a room emit as carried by a Relay.
type Broadcast struct {
	Room          string          `json:"room"`
	Event         string          `json:"event"`
	Data          json.RawMessage `json:"data,omitempty"`
	ExcludeUserID string          `json:"excludeUserId,omitempty"`
}

// Relay carries broadcasts between server instances. When a hub has a
// relay, every emit goes through it and local delivery happens only on
// receipt.
type Relay interface {
	Publish(ctx context.Context, b Broadcast) error
	Subscribe(ctx context.Context, deliver func(Broadcast)) error
}

// Client is one connection. Frames queued for it are read from Send.
type Client struct {
	ID     string
	UserID string

	send   chan []byte
	rooms  map[string]struct{}
	closed bool
}

func (c *Client) Send() <-chan []byte { return c.send }

type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*Client]struct{}
	users map[string]map[*Client]struct{}

	relay      Relay
	bufferSize int
	logger     logging.Logger
}

type Option func(*Hub)

func WithRelay(r Relay) Option { return func(h *Hub) { h.relay = r } }

func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

func WithLogger(l logging.Logger) Option { return func(h *Hub) { h.logger = l } }

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		users:      make(map[string]map[*Client]struct{}),
		bufferSize: defaultBufferSize,
		logger:     logging.Nop{},
	}
	for _, o := range opts {
		o(h)
	}
	h.logger = h.logger.With("module", "presence")
	return h
}

// Run consumes the relay until ctx is done. Without a relay it returns
// immediately.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	return h.relay.Subscribe(ctx, h.deliver)
}

// Register adds an authenticated connection for userID.
func (h *Hub) Register(userID string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, h.bufferSize),
		rooms:  make(map[string]struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[userID] = set
	}
	set[c] = struct{}{}
	return c
}

// Unregister removes c from every room and the online registry and closes
// its send channel. Calling it twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = nil
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	close(c.send)
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether c has joined room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

// IsOnline reports whether userID has at least one connection on this
// instance.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users[userID]) > 0
}

// Emit sends event to every member of room.
func (h *Hub) Emit(ctx context.Context, room, event string, payload any) error {
	return h.emit(ctx, room, event, payload, "")
}

// EmitOthers sends event to room members other than userID's connections.
func (h *Hub) EmitOthers(ctx context.Context, room, event string, payload any, userID string) error {
	return h.emit(ctx, room, event, payload, userID)
}

func (h *Hub) emit(ctx context.Context, room, event string, payload any, exclude string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b := Broadcast{Room: room, Event: event, Data: data, ExcludeUserID: exclude}
	if h.relay != nil {
		return h.relay.Publish(ctx, b)
	}
	h.deliver(b)
	return nil
}

// SendTo queues a frame for a single connection, dropping it if the
// buffer is full.
func (h *Hub) SendTo(c *Client, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return nil
	}
	select {
	case c.send <- frame:
	default:
	}
	return nil
}

func (h *Hub) deliver(b Broadcast) {
	frame, err := json.Marshal(Envelope{Event: b.Event, Data: b.Data})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[b.Room] {
		if b.ExcludeUserID != "" && c.UserID == b.ExcludeUserID {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn(context.Background(), "dropping slow consumer", "connection_id", c.ID, "user_id", c.UserID)
			h.dropLocked(c)
		}
	}
}
