package room

import (
	"sync"
	"time"

	"github.com/sketchwave/server/internal/action"
	"github.com/sketchwave/server/internal/ratelimit"
)

// Outbox is the send side of one member's transport channel. Deliver must
// not block; it returns false when the member's queue is full, which marks
// the member as too slow to keep. Close tears the transport down and must
// be safe to call more than once.
type Outbox interface {
	ID() string
	Deliver(data []byte) bool
	Close()
}

// FrameFunc builds the wire frame for a history snapshot. It runs inside
// the room's critical section so the frame and the member's live feed can
// never overlap or miss an action; keep it to marshaling.
type FrameFunc func(history []action.Action) []byte

// Room is one isolated synchronization domain. Every mutation of its
// history or membership runs under r.mu, so the order actions land in
// history is exactly the order live members see them. Fan-out only
// enqueues while the lock is held; Outbox.Deliver never blocks, so the
// critical section stays short.
type Room struct {
	code      string
	createdAt time.Time
	clearGate *ratelimit.Cooldown

	mu      sync.Mutex
	history []action.Action
	members map[string]Outbox
}

func newRoom(code string, clearCooldown time.Duration) *Room {
	return &Room{
		code:      code,
		createdAt: time.Now(),
		clearGate: ratelimit.NewCooldown(clearCooldown),
		members:   make(map[string]Outbox),
	}
}

func (r *Room) Code() string         { return r.code }
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// Join adds the member, snapshots history, and enqueues the framed snapshot
// to the new member in one critical section. A concurrent submit therefore
// lands either in the snapshot or in the member's live feed, never both and
// never neither. Re-joining is idempotent: the member is simply handed the
// current snapshot again. A member whose queue cannot take the snapshot is
// removed and returned as slow, same policy as relay: live frames on top of
// a missing snapshot would never reconstruct the canvas.
func (r *Room) Join(out Outbox, frame FrameFunc) ([]action.Action, []Outbox) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[out.ID()] = out
	snap := r.snapshotLocked()
	if frame != nil && !out.Deliver(frame(snap)) {
		delete(r.members, out.ID())
		return snap, []Outbox{out}
	}
	return snap, nil
}

// Resync re-delivers the current snapshot to an existing member without
// altering membership. Same atomicity and same slow-member policy as Join.
func (r *Room) Resync(id string, frame FrameFunc) ([]action.Action, []Outbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out, ok := r.members[id]
	if !ok {
		return nil, nil, false
	}
	snap := r.snapshotLocked()
	if frame != nil && !out.Deliver(frame(snap)) {
		delete(r.members, id)
		return snap, []Outbox{out}, true
	}
	return snap, nil, true
}

// Snapshot returns a copy of the current history without touching
// membership. Used by the HTTP snapshot surface.
func (r *Room) Snapshot() []action.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() []action.Action {
	snap := make([]action.Action, len(r.history))
	copy(snap, r.history)
	return snap
}

// RemoveMember detaches the connection. From the room's point of view this
// is synchronous: once it returns, no further fan-out targets the member.
func (r *Room) RemoveMember(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

func (r *Room) HasMember(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[id]
	return ok
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// AppendAndRelay appends the action and enqueues payload to every member
// except the sender, who already rendered locally before transmitting.
// Returns the members whose queues were full; they have been removed and
// the caller finishes disconnecting them.
func (r *Room) AppendAndRelay(a action.Action, payload []byte, senderID string) []Outbox {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, a)
	return r.relayLocked(payload, senderID)
}

// Clear truncates history at a fresh clear marker and enqueues payload to
// all members, the requester included, so every view resets together. At
// most one clear succeeds per cooldown window; inside the window it
// returns ErrClearCooldown and nothing is broadcast.
func (r *Room) Clear(payload []byte) ([]Outbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.clearGate.Try() {
		return nil, ErrClearCooldown
	}

	r.history = append(r.history, action.ClearMarker())
	r.history = action.Compact(r.history)
	return r.relayLocked(payload, ""), nil
}

// ReplaceHistory swaps in a restored history and enqueues the framed
// result to every member so they reload their canvases.
func (r *Room) ReplaceHistory(h []action.Action, frame FrameFunc) []Outbox {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = action.Compact(append([]action.Action(nil), h...))
	if frame == nil {
		return nil
	}
	return r.relayLocked(frame(r.snapshotLocked()), "")
}

func (r *Room) relayLocked(payload []byte, except string) []Outbox {
	var slow []Outbox
	for id, out := range r.members {
		if id == except {
			continue
		}
		if !out.Deliver(payload) {
			slow = append(slow, out)
			delete(r.members, id)
		}
	}
	return slow
}
