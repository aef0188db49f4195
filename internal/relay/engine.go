package relay

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/sketchwave/server/internal/action"
	"github.com/sketchwave/server/internal/room"
)

var ErrNotInRoom = errors.New("connection has not joined a room")

// Archiver receives a write-behind copy of accepted actions. It is never
// read back into live rooms; restarts start empty.
type Archiver interface {
	SaveAction(roomCode, kind string, data []byte) error
	ClearActions(roomCode string) error
}

// Engine binds live connections to rooms and relays their actions. Each
// connection belongs to at most one room at a time; joining another room
// silently leaves the previous one. All room state goes through the Store's
// per-room critical sections, so the engine itself only guards the
// connection→room index.
type Engine struct {
	store   *room.Store
	archive Archiver // may be nil

	mu       sync.RWMutex
	sessions map[string]string // connection id -> room code
}

func New(store *room.Store, archive Archiver) *Engine {
	return &Engine{
		store:    store,
		archive:  archive,
		sessions: make(map[string]string),
	}
}

// Join registers the connection in the room and hands it the history
// snapshot through its outbox. The snapshot and the member's live feed are
// atomic with respect to concurrent submits (see room.Room.Join). Unknown
// codes fail with room.ErrNotFound; nothing about the connection changes.
func (e *Engine) Join(out room.Outbox, code string) ([]action.Action, error) {
	code = room.Normalize(code)
	r, err := e.store.Get(code)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	prev, had := e.sessions[out.ID()]
	e.sessions[out.ID()] = code
	e.mu.Unlock()

	// Implicit leave on room switch. Silent: no event is broadcast for it.
	if had && prev != code {
		if pr, err := e.store.Get(prev); err == nil {
			pr.RemoveMember(out.ID())
		}
	}

	snap, slow := r.Join(out, func(h []action.Action) []byte {
		return HistoryFrame(code, h)
	})
	e.dropSlow(slow)
	return snap, nil
}

// Leave detaches the connection from its room, if any. Invoked on
// disconnect; the removal is synchronous from the room's point of view, so
// no fan-out targets the connection afterwards.
func (e *Engine) Leave(id string) {
	e.mu.Lock()
	code, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()

	if !ok {
		return
	}
	if r, err := e.store.Get(code); err == nil {
		r.RemoveMember(id)
	}
}

// Submit validates the action, appends it to the sender's room history, and
// fans it out to every other member. The sender is never echoed: producers
// render locally before transmitting, and that contract holds here as a
// postcondition, not an accident. Per-sender order is preserved because
// each connection submits from a single reader goroutine and append plus
// fan-out share one room critical section.
func (e *Engine) Submit(senderID string, a action.Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.Type == action.KindClear {
		// Clears go through Clear so the cooldown and full-membership
		// broadcast apply.
		return e.Clear(senderID)
	}

	code, r, err := e.sessionRoom(senderID)
	if err != nil {
		return err
	}

	payload := encode(Envelope{Event: eventFor(a.Type), Code: code, Action: &a})
	e.dropSlow(r.AppendAndRelay(a, payload, senderID))

	// Write-behind, outside the room section: archive order across senders
	// is best-effort. Nothing replays the archive, so it does not need to
	// match history order.
	if e.archive != nil {
		data, _ := json.Marshal(a)
		if err := e.archive.SaveAction(code, string(a.Type), data); err != nil {
			log.Printf("archive: save action for room %s: %v", code, err)
		}
	}
	return nil
}

// Clear empties the sender's room and broadcasts the clear to the full
// membership, the requester included, so every canvas resets together. A
// clear inside the room's cooldown window fails with room.ErrClearCooldown
// and produces no broadcast.
func (e *Engine) Clear(requesterID string) error {
	code, r, err := e.sessionRoom(requesterID)
	if err != nil {
		return err
	}

	slow, err := r.Clear(encode(Envelope{Event: EventClear, Code: code}))
	if err != nil {
		return err
	}
	e.dropSlow(slow)

	if e.archive != nil {
		if err := e.archive.ClearActions(code); err != nil {
			log.Printf("archive: clear room %s: %v", code, err)
		}
	}
	return nil
}

// RequestHistory re-delivers the current snapshot to a connection that
// suspects it missed events. Membership is untouched.
func (e *Engine) RequestHistory(id string) ([]action.Action, error) {
	code, r, err := e.sessionRoom(id)
	if err != nil {
		return nil, err
	}
	snap, slow, ok := r.Resync(id, func(h []action.Action) []byte {
		return HistoryFrame(code, h)
	})
	if !ok {
		return nil, ErrNotInRoom
	}
	e.dropSlow(slow)
	return snap, nil
}

// RestoreHistory replaces a room's history with a saved snapshot and pushes
// the result to all members.
func (e *Engine) RestoreHistory(code string, h []action.Action) error {
	code = room.Normalize(code)
	r, err := e.store.Get(code)
	if err != nil {
		return err
	}
	e.dropSlow(r.ReplaceHistory(h, func(cur []action.Action) []byte {
		return HistoryFrame(code, cur)
	}))
	return nil
}

// SessionCount returns how many connections are currently in a room.
func (e *Engine) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

func (e *Engine) sessionRoom(id string) (string, *room.Room, error) {
	e.mu.RLock()
	code, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return "", nil, ErrNotInRoom
	}
	r, err := e.store.Get(code)
	if err != nil {
		return "", nil, err
	}
	return code, r, nil
}

// dropSlow finishes disconnecting members whose outbound queues overflowed
// during fan-out. They are already out of the room; closing the transport
// lets the client reconnect and resync rather than silently fall behind.
func (e *Engine) dropSlow(slow []room.Outbox) {
	for _, out := range slow {
		e.mu.Lock()
		delete(e.sessions, out.ID())
		e.mu.Unlock()
		out.Close()
		log.Printf("⚠️ Dropped slow member %s", out.ID())
	}
}
