/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request-scoped failures, surfaced to the originating connection only.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrDuplicateRoomCode   = errors.New("a room with that code already exists")
	ErrGameAlreadyStarted  = errors.New("the game has already started")
	ErrRoomFull            = errors.New("the room is full")
	ErrDuplicateName       = errors.New("that name is already taken")
	ErrNotHost             = errors.New("only the host can do that")
	ErrInsufficientPlayers = errors.New("at least 3 players are needed to start")
	ErrInvalidState        = errors.New("the room is not in a state that allows that")
	ErrPlayerNotFound      = errors.New("you are not a member of that room")
)

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
)

const (
	maxPlayers       = 15
	minPlayersToDeal = 3
	spyCard          = "spy"
)

// Player is one seat in a room. Card is "" before the first deal, "spy" for
// the spy, and the round's location for everyone else. The connection ID is
// a weak back-reference used only for routing and is never serialized.
type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Card         string `json:"card"`
	CardRevealed bool   `json:"cardRevealed"`
	IsHost       bool   `json:"isHost"`

	connID string
}

type Room struct {
	Code       string     `json:"code"`
	Players    []Player   `json:"players"`
	Location   string     `json:"location"`
	SpyID      string     `json:"spyId"`
	Status     RoomStatus `json:"status"`
	MaxPlayers int        `json:"maxPlayers"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// snapshot returns a copy safe to hand outside the store lock.
func (r *Room) snapshot() Room {
	s := *r
	s.Players = append([]Player(nil), r.Players...)
	return s
}

func (r *Room) playerIndexByConn(connID string) int {
	for i := range r.Players {
		if r.Players[i].connID == connID {
			return i
		}
	}
	return -1
}

// RoomManager owns the room store. Every mutation runs to completion under
// the store lock, so broadcast consumers always observe whole transitions.
// The random source is injectable so dealing is deterministic under test.
type RoomManager struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	locations []string
	rand      *rand.Rand
	now       func() time.Time
}

func NewRoomManager(locations []string, src rand.Source) *RoomManager {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}

	return &RoomManager{
		rooms:     make(map[string]*Room),
		locations: locations,
		rand:      rand.New(src),
		now:       time.Now,
	}
}

// Room codes are case-insensitive on the wire; upper-case is canonical.
func canonicalCode(code string) string {
	return strings.ToUpper(code)
}

// CreateRoom builds a room holding only its host. Callers are expected to
// generate collision-resistant codes upstream.
func (m *RoomManager) CreateRoom(code, hostName, connID string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createRoomLocked(canonicalCode(code), hostName, connID)
}

func (m *RoomManager) createRoomLocked(code, hostName, connID string) (Room, error) {
	if _, exists := m.rooms[code]; exists {
		return Room{}, ErrDuplicateRoomCode
	}

	room := &Room{
		Code: code,
		Players: []Player{{
			ID:     uuid.NewString(),
			Name:   hostName,
			IsHost: true,
			connID: connID,
		}},
		Status:     StatusWaiting,
		MaxPlayers: maxPlayers,
		CreatedAt:  m.now(),
	}

	m.rooms[code] = room

	return room.snapshot(), nil
}

// JoinRoom adds a player to an existing room, or creates the room when
// asHost is set and the code is unused.
func (m *RoomManager) JoinRoom(code, name, connID string, asHost bool) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code = canonicalCode(code)

	room, exists := m.rooms[code]
	if !exists {
		if asHost {
			return m.createRoomLocked(code, name, connID)
		}
		return Room{}, ErrRoomNotFound
	}

	if room.Status != StatusWaiting {
		return Room{}, ErrGameAlreadyStarted
	}
	if len(room.Players) >= room.MaxPlayers {
		return Room{}, ErrRoomFull
	}
	for i := range room.Players {
		if strings.EqualFold(room.Players[i].Name, name) {
			return Room{}, ErrDuplicateName
		}
	}

	room.Players = append(room.Players, Player{
		ID:     uuid.NewString(),
		Name:   name,
		connID: connID,
	})

	return room.snapshot(), nil
}

// LeaveRoom removes the player bound to connID. Idempotent: a missing room
// or connection is not an error. The last player out deletes the room, and
// a departing host hands the role to the longest-joined remaining player.
func (m *RoomManager) LeaveRoom(code, connID string) (*Room, *Player) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[canonicalCode(code)]
	if !exists {
		return nil, nil
	}

	idx := room.playerIndexByConn(connID)
	if idx == -1 {
		snap := room.snapshot()
		return &snap, nil
	}

	removed := room.Players[idx]
	room.Players = append(room.Players[:idx], room.Players[idx+1:]...)

	if len(room.Players) == 0 {
		delete(m.rooms, room.Code)
		return nil, &removed
	}

	if removed.IsHost {
		room.Players[0].IsHost = true
	}

	snap := room.snapshot()
	return &snap, &removed
}

// StartGame deals the first round: one location for everyone but a single
// randomly chosen spy. Host only, three players minimum, waiting rooms only.
func (m *RoomManager) StartGame(code, connID string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[canonicalCode(code)]
	if !exists {
		return Room{}, ErrRoomNotFound
	}

	if err := m.dealPreconditions(room, connID); err != nil {
		return Room{}, err
	}
	if room.Status != StatusWaiting {
		return Room{}, ErrInvalidState
	}

	m.dealLocked(room)

	return room.snapshot(), nil
}

// RestartGame re-deals for a fresh round without leaving the room. Same
// checks as StartGame, except a round already in play may be re-dealt.
func (m *RoomManager) RestartGame(code, connID string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[canonicalCode(code)]
	if !exists {
		return Room{}, ErrRoomNotFound
	}

	if err := m.dealPreconditions(room, connID); err != nil {
		return Room{}, err
	}
	if room.Status != StatusWaiting && room.Status != StatusPlaying {
		return Room{}, ErrInvalidState
	}

	m.dealLocked(room)

	return room.snapshot(), nil
}

func (m *RoomManager) dealPreconditions(room *Room, connID string) error {
	idx := room.playerIndexByConn(connID)
	if idx == -1 || !room.Players[idx].IsHost {
		return ErrNotHost
	}
	if len(room.Players) < minPlayersToDeal {
		return ErrInsufficientPlayers
	}
	return nil
}

func (m *RoomManager) dealLocked(room *Room) {
	location := m.locations[m.rand.Intn(len(m.locations))]
	spyIdx := m.rand.Intn(len(room.Players))

	for i := range room.Players {
		if i == spyIdx {
			room.Players[i].Card = spyCard
		} else {
			room.Players[i].Card = location
		}
		room.Players[i].CardRevealed = false
	}

	room.Location = location
	room.SpyID = room.Players[spyIdx].ID
	room.Status = StatusPlaying
}

// RevealCard marks the caller's own card revealed. Room status is unchanged.
func (m *RoomManager) RevealCard(code, connID string) (Room, Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[canonicalCode(code)]
	if !exists {
		return Room{}, Player{}, ErrRoomNotFound
	}

	idx := room.playerIndexByConn(connID)
	if idx == -1 {
		return Room{}, Player{}, ErrPlayerNotFound
	}

	room.Players[idx].CardRevealed = true

	return room.snapshot(), room.Players[idx], nil
}

func (m *RoomManager) GetRoom(code string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[canonicalCode(code)]
	if !exists {
		return nil
	}

	snap := room.snapshot()
	return &snap
}

func (m *RoomManager) PlayerByConn(code, connID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[canonicalCode(code)]
	if !exists {
		return nil
	}

	idx := room.playerIndexByConn(connID)
	if idx == -1 {
		return nil
	}

	player := room.Players[idx]
	return &player
}

// SweepStaleRooms deletes every room created before the retention cutoff and
// returns the removed codes. Eviction is gated on creation time alone, not
// last activity, so a room still in play is swept once the window elapses.
func (m *RoomManager) SweepStaleRooms(retention time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-retention)

	var removed []string
	for code, room := range m.rooms {
		if room.CreatedAt.Before(cutoff) {
			delete(m.rooms, code)
			removed = append(removed, code)
		}
	}

	return removed
}
