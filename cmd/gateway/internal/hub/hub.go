package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/market-pulse/pkg/models"
)

type ClientInterface interface {
	ID() string
	SendBytes(b []byte)
	Close()
}

// SubscriptionRegistry is the ref-counted symbol set the poller reads from.
type SubscriptionRegistry interface {
	Add(alias string) string
	Remove(alias string) bool
}

// SnapshotReader serves the last known update to new subscribers.
type SnapshotReader interface {
	GetSnapshots(ctx context.Context, canonicals []string) (map[string]models.UpdateMessage, error)
}

// Stats is a point-in-time view of the hub for health reporting.
type Stats struct {
	Connections int `json:"connections"`
	Groups      int `json:"groups"`
}

// Hub groups connections by the alias they subscribed under. Lock order is
// hub before registry.
type Hub struct {
	groups     map[string]map[ClientInterface]bool
	clientSubs map[ClientInterface]map[string]bool
	clients    map[ClientInterface]bool

	registry  SubscriptionRegistry
	snapshots SnapshotReader
	logger    *zap.Logger
	mu        sync.RWMutex

	// maxPerClient caps the groups one connection may hold; 0 means no cap.
	maxPerClient int
}

// NewHub builds a hub. snapshots may be nil.
func NewHub(registry SubscriptionRegistry, snapshots SnapshotReader, logger *zap.Logger) *Hub {
	return &Hub{
		groups:     make(map[string]map[ClientInterface]bool),
		clientSubs: make(map[ClientInterface]map[string]bool),
		clients:    make(map[ClientInterface]bool),
		registry:   registry,
		snapshots:  snapshots,
		logger:     logger,
	}
}

// WithMaxSubscriptions caps how many aliases a single connection can be
// subscribed to. Aliases past the cap are dropped silently.
func (h *Hub) WithMaxSubscriptions(n int) *Hub {
	h.maxPerClient = n
	return h
}

func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// HandleCommand applies a subscribe or unsubscribe. Nothing is sent back to
// the client; failures just mean no updates.
func (h *Hub) HandleCommand(client ClientInterface, cmd protocol.Command) {
	switch cmd.Action {
	case protocol.ActionSubscribe:
		h.handleSubscribe(client, cmd.Aliases)
	case protocol.ActionUnsubscribe:
		h.handleUnsubscribe(client, cmd.Aliases)
	default:
		h.logger.Debug("Ignoring unknown action", zap.String("client", client.ID()), zap.String("action", cmd.Action))
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, aliases []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	if h.clientSubs[client] == nil {
		h.clientSubs[client] = make(map[string]bool)
	}

	joined := make(map[string]string)
	for _, alias := range aliases {
		// Idempotency: Ignore if already subscribed
		if h.clientSubs[client][alias] {
			continue
		}
		if h.maxPerClient > 0 && len(h.clientSubs[client]) >= h.maxPerClient {
			h.logger.Debug("Subscription cap reached",
				zap.String("client", client.ID()),
				zap.Int("max", h.maxPerClient))
			break
		}
		h.clientSubs[client][alias] = true
		if h.groups[alias] == nil {
			h.groups[alias] = make(map[ClientInterface]bool)
		}
		h.groups[alias][client] = true

		joined[alias] = h.registry.Add(alias)
	}

	if len(joined) > 0 && h.snapshots != nil {
		// Send Snapshots (Async to avoid blocking lock)
		go h.sendSnapshots(client, joined)
	}
}

func (h *Hub) handleUnsubscribe(client ClientInterface, aliases []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clientSubs[client]
	if !ok {
		return
	}
	for _, alias := range aliases {
		if subs[alias] {
			delete(subs, alias)
			h.leaveGroup(client, alias)
		}
	}
}

// Unregister removes the client from every group it joined, releasing one
// registry reference per group, and closes it.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	if subs, ok := h.clientSubs[client]; ok {
		for alias := range subs {
			h.leaveGroup(client, alias)
		}
		delete(h.clientSubs, client)
	}
	delete(h.clients, client)
	h.mu.Unlock()

	client.Close()
}

// EmitToGroup delivers a frame to the members of one group only.
func (h *Hub) EmitToGroup(group string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.groups[group] {
		client.SendBytes(frame)
	}
}

// EmitToAll delivers a frame to every registered connection.
func (h *Hub) EmitToAll(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.SendBytes(frame)
	}
}

// Dispatch is the bus consumer: an event with a group goes to that group,
// one without goes to everybody.
func (h *Hub) Dispatch(ev models.Event) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("event", ev.Name), zap.Error(err))
		return
	}

	if ev.Group == "" {
		h.EmitToAll(frame)
		return
	}
	h.EmitToGroup(ev.Group, frame)
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Connections: len(h.clients), Groups: len(h.groups)}
}

// Groups lists the group names with at least one member.
func (h *Hub) Groups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.groups))
	for g := range h.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// sendIfMember delivers a frame only while the client still belongs to the
// alias group, so a snapshot never lands after an unsubscribe.
func (h *Hub) sendIfMember(client ClientInterface, alias string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.groups[alias][client] {
		client.SendBytes(frame)
	}
}

func (h *Hub) leaveGroup(client ClientInterface, alias string) {
	if members, ok := h.groups[alias]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, alias)
		}
	}
	h.registry.Remove(alias)
}

func (h *Hub) sendSnapshots(client ClientInterface, joined map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	canonicals := make([]string, 0, len(joined))
	for _, c := range joined {
		canonicals = append(canonicals, c)
	}

	snaps, err := h.snapshots.GetSnapshots(ctx, canonicals)
	if err != nil {
		h.logger.Warn("Failed to load snapshots", zap.String("client", client.ID()), zap.Error(err))
		return
	}

	for alias, canonical := range joined {
		u, ok := snaps[canonical]
		if !ok {
			continue
		}
		u.Symbol = alias
		payload, err := json.Marshal(u)
		if err != nil {
			continue
		}
		frame, err := protocol.Encode(models.Event{Name: models.EventStockUpdate, Group: alias, Payload: payload})
		if err != nil {
			continue
		}
		h.sendIfMember(client, alias, frame)
	}
}
