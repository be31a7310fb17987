package api

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/avclink-core/internal/connection"
	"github.com/nerrad567/avclink-core/internal/infrastructure/config"
	"github.com/nerrad567/avclink-core/internal/infrastructure/logging"
	"github.com/nerrad567/avclink-core/internal/session"
)

// StateSource supplies the connection state replayed to new subscribers.
// *connection.Simulator satisfies it.
type StateSource interface {
	Snapshot() connection.Snapshot
}

// channelReplay builds the payloads a new subscriber receives before any
// live event. Channels without retained state have a nil replay.
type channelReplay func(snap connection.Snapshot) []any

// wsChannels are the channels a client may subscribe to.
var wsChannels = map[string]channelReplay{
	session.ChannelConnectionState:  replayConnectionState,
	session.ChannelDeviceDiscovered: replayDiscoveries,
	session.ChannelNotification:     nil,
	session.ChannelAlertCreated:     nil,
}

// replayConnectionState mirrors a live state change: an Event carrying the
// full snapshot and the device it concerns.
func replayConnectionState(snap connection.Snapshot) []any {
	ev := connection.Event{
		Type:     connection.EventSnapshot,
		Snapshot: snap,
		Device:   snap.ConnectedDevice,
	}
	if ev.Device == nil {
		ev.Device = snap.ConnectingDevice
	}
	return []any{ev}
}

// replayDiscoveries sends each device of the current scan result in
// discovery order, shaped like live discoveries.
func replayDiscoveries(snap connection.Snapshot) []any {
	out := make([]any, 0, len(snap.ScannedDevices))
	for i := range snap.ScannedDevices {
		out = append(out, &snap.ScannedDevices[i])
	}
	return out
}

// HubStats describes hub activity for the metrics endpoint.
type HubStats struct {
	ConnectedClients int            `json:"connected_clients"`
	Subscribers      map[string]int `json:"subscribers"`
	LastSeq          uint64         `json:"last_seq"`
	Delivered        uint64         `json:"delivered"`
	Dropped          uint64         `json:"dropped"`
}

// Hub fans session events out to WebSocket clients.
//
// Every live event gets the next hub sequence number. Delivery is
// serialised by sendMu, so a client sees sequence numbers in increasing
// order. Replayed messages carry the sequence number of the last live
// event they already reflect.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	state   StateSource

	sendMu    sync.Mutex
	seq       atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub with no clients and no state source.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetStateSource sets where subscribe replays read the current state.
// Without one, subscribing replays nothing.
func (h *Hub) SetStateSource(src StateSource) {
	h.mu.Lock()
	h.state = src
	h.mu.Unlock()
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that removes it from the map
// closes its send channel, so shutdown and read errors can race safely.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends payload to every client subscribed to channel. Payloads
// on channels outside the dashboard set are dropped.
func (h *Hub) Broadcast(channel string, payload any) {
	if _, ok := wsChannels[channel]; !ok {
		h.logger.Warn("broadcast on unknown channel dropped", "channel", channel)
		return
	}

	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Seq:       h.seq.Load() + 1,
		Timestamp: wsTimestamp(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}
	h.seq.Add(1)

	recipients := 0
	for _, client := range h.snapshotClients() {
		if client.isSubscribed(channel) {
			h.deliver(client, data)
			recipients++
		}
	}
	if recipients > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", recipients)
	}
}

// replayAttempts bounds how often subscribe retakes the snapshot when live
// events keep landing between reading the state and taking sendMu.
const replayAttempts = 3

// subscribe adds channels to client, acknowledges with id and then replays
// retained state for the channels that were not already subscribed.
//
// The snapshot is read before sendMu because simulator listeners broadcast
// while the simulator holds its dispatch lock. If the sequence moved in
// between, the snapshot is retaken so the replay is not older than a live
// event the client never saw.
func (h *Hub) subscribe(client *WSClient, id string, channels []string) {
	h.mu.RLock()
	src := h.state
	h.mu.RUnlock()
	if !hasReplay(channels) {
		src = nil
	}

	var snap connection.Snapshot
	for attempt := 1; ; attempt++ {
		before := h.seq.Load()
		if src != nil {
			snap = src.Snapshot()
		}
		h.sendMu.Lock()
		if src == nil || h.seq.Load() == before || attempt == replayAttempts {
			break
		}
		h.sendMu.Unlock()
	}
	defer h.sendMu.Unlock()

	fresh := client.addSubscriptions(channels)
	client.sendResponse(id, WSTypeResponse, map[string]any{"subscribed": channels})
	if src == nil {
		return
	}

	sent := 0
	for _, ch := range fresh {
		replay := wsChannels[ch]
		if replay == nil {
			continue
		}
		for _, payload := range replay(snap) {
			data, err := json.Marshal(WSMessage{
				Type:      WSTypeEvent,
				EventType: ch,
				Seq:       h.seq.Load(),
				Replay:    true,
				Timestamp: wsTimestamp(),
				Payload:   payload,
			})
			if err != nil {
				h.logger.Error("failed to marshal replay message", "channel", ch, "error", err)
				continue
			}
			h.deliver(client, data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("subscription replayed", "channels", fresh, "messages", sent)
	}
}

func hasReplay(channels []string) bool {
	for _, ch := range channels {
		if wsChannels[ch] != nil {
			return true
		}
	}
	return false
}

func (h *Hub) deliver(client *WSClient, data []byte) {
	if client.trySend(data) {
		h.delivered.Add(1)
		return
	}
	h.dropped.Add(1)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns client, subscription and delivery counters. Every
// dashboard channel appears in Subscribers, including unused ones.
func (h *Hub) Stats() HubStats {
	clients := h.snapshotClients()
	subs := make(map[string]int, len(wsChannels))
	for ch := range wsChannels {
		subs[ch] = 0
	}
	for _, c := range clients {
		for _, ch := range c.channels() {
			subs[ch]++
		}
	}
	return HubStats{
		ConnectedClients: len(clients),
		Subscribers:      subs,
		LastSeq:          h.seq.Load(),
		Delivered:        h.delivered.Load(),
		Dropped:          h.dropped.Load(),
	}
}

// Channels lists the subscribable channels in name order.
func Channels() []string {
	return slices.Sorted(maps.Keys(wsChannels))
}

func (h *Hub) snapshotClients() []*WSClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// closeAll disconnects every client and closes its send channel so the
// write pumps exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

func wsTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

var _ session.Broadcaster = (*Hub)(nil)
