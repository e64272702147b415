// Package hub is the broadcast engine: the single place where connection
// events mutate shared state and fan notifications out to clients.
//
// All mutations run on one goroutine (the run loop), so each event is an
// atomic critical section: no two updates or saves interleave, and every
// client observes broadcasts in the order their triggering events were
// accepted. HTTP snapshot operations funnel through the same loop.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Ganesh7742/ShareTheCode/internal/chat"
	"github.com/Ganesh7742/ShareTheCode/internal/presence"
	"github.com/Ganesh7742/ShareTheCode/internal/session"
	"github.com/Ganesh7742/ShareTheCode/internal/snapshot"
)

// Options configures a Hub.
type Options struct {
	// BaseURL prefixes snapshot share links, e.g. "https://code.example.com".
	BaseURL string
	// ClearOnSave empties the live document after a successful save and
	// notifies clients with code:clear. The clear runs in the same critical
	// section as the save, immediately after it, so no update broadcast can
	// land between the two.
	ClearOnSave bool
	// AppendUpdates switches code:update from full replacement to append
	// (transcript-style deployments).
	AppendUpdates bool
	// ChatEnabled turns on the chat log and its events.
	ChatEnabled bool
	// ChatHistory caps the retained chat messages.
	ChatHistory int
	// WriteTimeout bounds each durable store operation.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Hub owns the document, presence tracker, snapshot store and chat log.
// Register/unregister/command traffic is serialized by Run.
type Hub struct {
	opts     Options
	log      *slog.Logger
	doc      *session.Store
	presence *presence.Tracker
	snaps    snapshot.Store
	chatLog  *chat.Log
	bridge   *Bridge

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	commands   chan func()
}

// New wires the engine around its stores. bridge may be nil.
func New(opts Options, doc *session.Store, snaps snapshot.Store, bridge *Bridge) *Hub {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Hub{
		opts:       opts,
		log:        opts.Logger,
		doc:        doc,
		presence:   presence.NewTracker(),
		snaps:      snaps,
		bridge:     bridge,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		commands:   make(chan func()),
	}
	if opts.ChatEnabled {
		h.chatLog = chat.NewLog(opts.ChatHistory)
	}
	return h
}

// Run drives the event loop until ctx is canceled. Everything that touches
// shared state executes here.
func (h *Hub) Run(ctx context.Context) {
	if h.bridge != nil {
		go h.bridge.run(ctx, h.applyRemote)
	}
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case fn := <-h.commands:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// do runs fn inside the event loop and waits for it to finish. Once accepted
// by the loop, fn completes even if ctx expires while waiting for the reply.
func (h *Hub) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case h.commands <- func() { defer close(done); fn() }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addClient sends the full current state to the new connection before any
// later broadcast can reach it: the document, then the snapshot list, then
// chat history when enabled.
func (h *Hub) addClient(c *client) {
	h.clients[c] = true
	count := h.presence.Connected()
	h.log.Info("client connected", "conn", c.id, "connections", count)

	h.unicast(c, newEvent(EvInit, initPayload{Code: h.doc.Document()}))

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
	defer cancel()
	snaps, err := h.snaps.List(ctx)
	if err != nil {
		h.log.Error("list snapshots for init", "conn", c.id, "error", err)
	}
	infos := make([]SnapshotInfo, 0, len(snaps))
	for _, sn := range snaps {
		infos = append(infos, snapshotInfo(sn, h.opts.BaseURL))
	}
	h.unicast(c, newEvent(EvSnapshotsInit, snapshotsInitPayload{Snapshots: infos}))

	if h.chatLog != nil {
		h.unicast(c, newEvent(EvChatHistory, chatHistoryPayload{Messages: h.chatLog.Messages()}))
	}

	h.broadcast(newEvent(EvUserConnected, countPayload{Count: count}), nil, false)
}

// removeClient tears down presence synchronously so a departed identity is
// never broadcast as present. Events the connection had already gotten into
// the loop still complete; only echo suppression becomes moot.
func (h *Hub) removeClient(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := h.presence.Disconnected()
	h.log.Info("client disconnected", "conn", c.id, "connections", count)

	if p, ok := h.presence.Leave(c.id); ok {
		if h.chatLog != nil {
			m := h.chatLog.AppendSystem(p.Name + " left the session")
			h.broadcast(newEvent(EvChatMessage, m), nil, false)
		}
		h.broadcast(newEvent(EvUserLeft, userEventPayload{Username: p.Name}), nil, false)
		h.broadcast(newEvent(EvUsersUpdate, usersUpdatePayload{Users: h.presence.List()}), nil, false)
	}
	h.broadcast(newEvent(EvUserDisconnected, countPayload{Count: count}), nil, false)
}

// dispatch handles one decoded client event inside the run loop. Malformed
// payloads are dropped before any shared state is touched; only chat:delete
// surfaces an error back to the sender.
func (h *Hub) dispatch(c *client, evt Event) {
	switch evt.Event {
	case EvUserJoin:
		var p joinPayload
		if json.Unmarshal(evt.Data, &p) != nil {
			return
		}
		h.handleJoin(c, p.Username)
	case EvCodeUpdate:
		var p codeUpdatePayload
		if json.Unmarshal(evt.Data, &p) != nil || p.Code == nil {
			return
		}
		h.handleUpdate(c, *p.Code)
	case EvCodeSave:
		var p codeSavePayload
		if json.Unmarshal(evt.Data, &p) != nil || p.Code == nil {
			return
		}
		h.handleSave(c, *p.Code, p.Title)
	case EvCodeDelete:
		var p idPayload
		if json.Unmarshal(evt.Data, &p) != nil || p.ID == "" {
			return
		}
		h.handleDelete(c, p.ID)
	case EvChatSend:
		var p chatSendPayload
		if json.Unmarshal(evt.Data, &p) != nil {
			return
		}
		h.handleChatSend(c, p.Message)
	case EvChatDelete:
		var p idPayload
		if json.Unmarshal(evt.Data, &p) != nil || p.ID == "" {
			return
		}
		h.handleChatDelete(c, p.ID)
	default:
		h.log.Debug("unknown event dropped", "conn", c.id, "event", evt.Event)
	}
}

func (h *Hub) handleJoin(c *client, username string) {
	p, ok := h.presence.Join(c.id, username)
	if !ok {
		return
	}
	c.username = username
	c.joined = true
	h.log.Info("user joined", "conn", c.id, "username", username)

	if h.chatLog != nil {
		m := h.chatLog.AppendSystem(username + " joined the session")
		h.broadcast(newEvent(EvChatMessage, m), nil, false)
	}
	h.broadcast(newEvent(EvUserJoined, userEventPayload{Username: p.Name}), nil, false)
	h.broadcast(newEvent(EvUsersUpdate, usersUpdatePayload{Users: h.presence.List()}), nil, false)
}

// handleUpdate applies last-writer-wins replacement (or append) and notifies
// every other connection. The sender is excluded: it already holds the
// authoritative local state, and echoing would make its editor flicker.
func (h *Hub) handleUpdate(c *client, code string) {
	var payload codeBroadcastPayload
	if h.opts.AppendUpdates {
		payload = codeBroadcastPayload{
			Code:         h.doc.Append(code),
			Username:     c.username,
			IsNewMessage: true,
		}
	} else {
		h.doc.SetDocument(code)
		payload = codeBroadcastPayload{Code: code, Username: c.username}
	}
	h.log.Debug("document updated", "conn", c.id, "length", len(code))
	h.broadcast(newEvent(EvCodeBroadcast, payload), c, true)
}

// handleSave snapshots the submitted text. When ClearOnSave is set, the
// clear follows the save inside this same critical section; the ordering
// guarantee makes it impossible for a client to observe the clear before the
// save, or an update between the two.
func (h *Hub) handleSave(c *client, code, title string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
	defer cancel()
	sn, err := h.snaps.Create(ctx, code, title, c.username)
	if err != nil {
		h.log.Error("save snapshot", "conn", c.id, "error", err)
		return
	}
	h.log.Info("snapshot created", "id", sn.ID, "name", sn.Name, "creator", sn.Creator)
	h.broadcast(newEvent(EvCodeSaved, snapshotInfo(sn, h.opts.BaseURL)), nil, true)

	if h.opts.ClearOnSave {
		h.doc.Clear()
		h.broadcast(newEvent(EvCodeClear, struct{}{}), nil, true)
	}
}

func (h *Hub) handleDelete(c *client, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
	defer cancel()
	if err := h.snaps.Delete(ctx, id); err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			h.log.Error("delete snapshot", "conn", c.id, "id", id, "error", err)
		}
		return
	}
	h.log.Info("snapshot deleted", "id", id)
	h.broadcast(newEvent(EvCodeDeleted, idPayload{ID: id}), nil, true)
}

func (h *Hub) handleChatSend(c *client, body string) {
	if h.chatLog == nil || !c.joined || body == "" {
		return
	}
	m := h.chatLog.AppendUser(c.id, c.username, body)
	h.broadcast(newEvent(EvChatMessage, m), nil, true)
}

func (h *Hub) handleChatDelete(c *client, id string) {
	if h.chatLog == nil {
		return
	}
	if err := h.chatLog.Delete(id, c.id); err != nil {
		reason := "Message not found"
		if errors.Is(err, chat.ErrNotOwner) {
			reason = "You can only delete your own messages"
		}
		h.unicast(c, newEvent(EvChatDeleteError, chatDeleteErrorPayload{ID: id, Error: reason}))
		return
	}
	h.broadcast(newEvent(EvChatMessageDeleted, idPayload{ID: id}), nil, true)
}

// broadcast queues an event on every connection except the excluded one.
// A client whose send buffer is full is dropped rather than allowed to stall
// the loop. forward mirrors the event to the redis bridge when one is
// configured.
func (h *Hub) broadcast(evt Event, except *client, forward bool) {
	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("marshal broadcast", "event", evt.Event, "error", err)
		return
	}
	for c := range h.clients {
		if c == except {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.log.Info("dropping slow client", "conn", c.id)
			delete(h.clients, c)
			close(c.send)
		}
	}
	if forward && h.bridge != nil {
		h.bridge.publish(evt)
	}
}

func (h *Hub) unicast(c *client, evt Event) {
	if _, ok := h.clients[c]; !ok {
		// The connection was already torn down; its accepted events still
		// ran, there is just nowhere left to reply.
		return
	}
	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("marshal unicast", "event", evt.Event, "error", err)
		return
	}
	select {
	case c.send <- msg:
	default:
		h.log.Info("dropping slow client", "conn", c.id)
		delete(h.clients, c)
		close(c.send)
	}
}

// applyRemote feeds an event relayed from another instance into the loop.
// Remote document broadcasts update the local copy so late joiners here see
// the same text; everything else just fans out.
func (h *Hub) applyRemote(ctx context.Context, evt Event) {
	select {
	case h.commands <- func() {
		switch evt.Event {
		case EvCodeBroadcast:
			var p codeBroadcastPayload
			if json.Unmarshal(evt.Data, &p) != nil {
				return
			}
			h.doc.SetDocument(p.Code)
		case EvCodeClear:
			h.doc.Clear()
		}
		h.broadcast(evt, nil, false)
	}:
	case <-ctx.Done():
	}
}

// CreateSnapshot is the HTTP save surface. It reads the document and writes
// the snapshot inside the critical section, so the copy cannot interleave
// with a concurrent update. The broadcast only happens after the durable
// write succeeded.
func (h *Hub) CreateSnapshot(ctx context.Context, name, creator string) (snapshot.Snapshot, error) {
	var (
		sn  snapshot.Snapshot
		err error
	)
	doErr := h.do(ctx, func() {
		wctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
		defer cancel()
		sn, err = h.snaps.Create(wctx, h.doc.Document(), name, creator)
		if err != nil {
			return
		}
		h.log.Info("snapshot created", "id", sn.ID, "name", sn.Name, "creator", sn.Creator)
		h.broadcast(newEvent(EvSnapshotCreated, snapshotInfo(sn, h.opts.BaseURL)), nil, true)
		if h.opts.ClearOnSave {
			h.doc.Clear()
			h.broadcast(newEvent(EvCodeClear, struct{}{}), nil, true)
		}
	})
	if doErr != nil {
		return snapshot.Snapshot{}, doErr
	}
	return sn, err
}

// DeleteSnapshot is the HTTP delete surface; the deletion broadcast follows
// a successful durable delete only.
func (h *Hub) DeleteSnapshot(ctx context.Context, id string) error {
	var err error
	doErr := h.do(ctx, func() {
		wctx, cancel := context.WithTimeout(context.Background(), h.opts.WriteTimeout)
		defer cancel()
		if err = h.snaps.Delete(wctx, id); err != nil {
			return
		}
		h.log.Info("snapshot deleted", "id", id)
		h.broadcast(newEvent(EvSnapshotDeleted, idPayload{ID: id}), nil, true)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// GetSnapshot reads straight from the store; reads do not need the loop.
func (h *Hub) GetSnapshot(ctx context.Context, id string) (snapshot.Snapshot, error) {
	return h.snaps.Get(ctx, id)
}
