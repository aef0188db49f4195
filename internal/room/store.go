package room

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6

	// DefaultClearCooldown is the minimum interval between successful
	// clears of one room.
	DefaultClearCooldown = 30 * time.Second
)

var (
	ErrNotFound      = errors.New("room not found")
	ErrClearCooldown = errors.New("room was cleared too recently")
)

// Store owns the code→room table. It is constructed once per process and
// injected into everything that needs rooms; there is no ambient registry.
// Rooms live for the life of the process once created, even after their
// membership drains to zero. Known limitation, same as the upstream
// behavior this replaces.
type Store struct {
	clearCooldown time.Duration

	mu      sync.RWMutex
	rooms   map[string]*Room
	genCode func() string
}

func NewStore(clearCooldown time.Duration) *Store {
	if clearCooldown <= 0 {
		clearCooldown = DefaultClearCooldown
	}
	return &Store{
		clearCooldown: clearCooldown,
		rooms:         make(map[string]*Room),
		genCode:       generateCode,
	}
}

// Normalize maps a user-supplied code to its canonical form. Lookups are
// case-insensitive.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create inserts a fresh empty room under a new unique code. Generation
// retries until the candidate does not collide with an active code; the
// check and the insert happen under one lock, so two concurrent creators
// can never claim the same code.
func (s *Store) Create() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		code := s.genCode()
		if _, taken := s.rooms[code]; taken {
			continue
		}
		r := newRoom(code, s.clearCooldown)
		s.rooms[code] = r
		return r
	}
}

func (s *Store) Exists(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[Normalize(code)]
	return ok
}

func (s *Store) Get(code string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[Normalize(code)]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// FindOpen returns some room that already has at least one member, for
// quick play. Map iteration order supplies the "random" pick.
func (s *Store) FindOpen() (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.MemberCount() > 0 {
			return r, true
		}
	}
	return nil, false
}

// ActiveRooms maps each room code to its current member count.
func (s *Store) ActiveRooms() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make(map[string]int, len(s.rooms))
	for code, r := range s.rooms {
		active[code] = r.MemberCount()
	}
	return active
}

func generateCode() string {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
