// Spyfall ("find the spy")
//
// Players join a coded room. When the host starts the round, one player is
// secretly dealt the "spy" card while everyone else receives a shared secret
// location. The group then questions each other until someone fingers the
// spy (or the spy guesses the location).
//
// Features:
// - WebSockets per room: /path/:code and /path/:code/ws
// - First join with the host flag set creates the room
// - Random 6-char room codes via crypto/rand, with server-side collision check
// - Authoritative room snapshots broadcast after every mutation
// - Advisory events (player-joined, player-left, card-revealed) as UI hints
// - Failures sent only to the offending connection, never broadcast
// - Abrupt disconnects are treated as an explicit leave
// - Host leaving hands the role to the longest-joined remaining player
// - Rooms swept on a fixed interval once their retention window elapses
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // "join-room", "start-game", "restart-game", "reveal-card", "leave-room"
	Code   string `json:"code,omitempty"`   // all intents
	Name   string `json:"name,omitempty"`   // join-room
	AsHost bool   `json:"asHost,omitempty"` // join-room
}

// RoomSnapshotMessage carries the authoritative room state. Sent with type
// "room-updated" after every mutation; "game-started" and "game-restarted"
// reuse the shape as advisory duplicates.
type RoomSnapshotMessage struct {
	Type string `json:"type"`
	Room Room   `json:"room"`
}

// PlayerJoinedMessage is advisory, sent to everyone except the joiner.
type PlayerJoinedMessage struct {
	Type   string `json:"type"` // "player-joined"
	Player Player `json:"player"`
}

// PlayerLeftMessage is advisory.
type PlayerLeftMessage struct {
	Type     string `json:"type"` // "player-left"
	PlayerID string `json:"playerId"`
}

// CardRevealedMessage is advisory.
type CardRevealedMessage struct {
	Type     string `json:"type"` // "card-revealed"
	PlayerID string `json:"playerId"`
}

// ErrorMessage goes to the originating connection only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// RoomNotFoundMessage goes to the originating connection only.
type RoomNotFoundMessage struct {
	Type string `json:"type"` // "room-not-found"
}

type Client struct {
	conn *websocket.Conn
	send chan any
	id   string

	// Guarded by the gateway mutex.
	room   string
	closed bool
}

// Gateway fans inbound intents into the room manager and broadcasts the
// resulting snapshots to every connection subscribed to the room. Mutation
// and broadcast enqueueing happen under one lock, so every subscriber
// observes snapshots for a given room in the same total order.
type Gateway struct {
	cfg   *Config
	rooms *RoomManager

	mu   sync.Mutex
	subs map[string]map[*Client]bool
}

func newGateway(cfg *Config, rooms *RoomManager) *Gateway {
	return &Gateway{
		cfg:   cfg,
		rooms: rooms,
		subs:  make(map[string]map[*Client]bool),
	}
}

func (g *Gateway) dispatch(c *Client, msg ClientMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c.closed {
		return
	}

	switch msg.Type {
	case "join-room":
		g.handleJoinLocked(c, msg)
	case "start-game":
		g.handleStartLocked(c, msg.Code, false)
	case "restart-game":
		g.handleStartLocked(c, msg.Code, true)
	case "reveal-card":
		g.handleRevealLocked(c, msg.Code)
	case "leave-room":
		g.leaveLocked(c, msg.Code)
	default:
		// ignore unknown types
	}
}

func (g *Gateway) handleJoinLocked(c *Client, msg ClientMessage) {
	if msg.Code == "" || msg.Name == "" {
		return
	}

	room, err := g.rooms.JoinRoom(msg.Code, msg.Name, c.id, msg.AsHost)
	if err != nil {
		if err == ErrRoomNotFound {
			g.sendLocked(c, RoomNotFoundMessage{Type: "room-not-found"})
		} else {
			g.sendLocked(c, ErrorMessage{Type: "error", Message: err.Error()})
		}
		return
	}

	code := room.Code

	set := g.subs[code]
	if set == nil {
		set = make(map[*Client]bool)
		g.subs[code] = set
	}
	set[c] = true
	c.room = code

	g.broadcastLocked(code, RoomSnapshotMessage{Type: "room-updated", Room: room})

	if idx := room.playerIndexByConn(c.id); idx != -1 {
		joined := PlayerJoinedMessage{Type: "player-joined", Player: room.Players[idx]}
		for other := range set {
			if other != c {
				g.sendLocked(other, joined)
			}
		}
		logf(g.cfg, "GAMES: Player %q joined room %s (%d total)", msg.Name, code, len(room.Players))
	}
}

func (g *Gateway) handleStartLocked(c *Client, code string, restart bool) {
	var (
		room Room
		err  error
	)

	if restart {
		room, err = g.rooms.RestartGame(code, c.id)
	} else {
		room, err = g.rooms.StartGame(code, c.id)
	}
	if err != nil {
		g.sendLocked(c, ErrorMessage{Type: "error", Message: err.Error()})
		return
	}

	event := "game-started"
	if restart {
		event = "game-restarted"
	}

	g.broadcastLocked(room.Code, RoomSnapshotMessage{Type: event, Room: room})
	g.broadcastLocked(room.Code, RoomSnapshotMessage{Type: "room-updated", Room: room})

	logf(g.cfg, "GAMES: Round dealt in room %s (location %q)", room.Code, room.Location)
}

func (g *Gateway) handleRevealLocked(c *Client, code string) {
	room, player, err := g.rooms.RevealCard(code, c.id)
	if err != nil {
		g.sendLocked(c, ErrorMessage{Type: "error", Message: err.Error()})
		return
	}

	g.broadcastLocked(room.Code, CardRevealedMessage{Type: "card-revealed", PlayerID: player.ID})
	g.broadcastLocked(room.Code, RoomSnapshotMessage{Type: "room-updated", Room: room})

	logf(g.cfg, "GAMES: %q revealed their card in room %s", player.Name, room.Code)
}

// leaveLocked handles both the explicit leave intent and disconnects. A
// second leave for the same connection is a no-op.
func (g *Gateway) leaveLocked(c *Client, code string) {
	if code == "" {
		return
	}
	code = canonicalCode(code)

	room, removed := g.rooms.LeaveRoom(code, c.id)

	if set := g.subs[code]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(g.subs, code)
		}
	}
	if c.room == code {
		c.room = ""
	}

	if removed == nil {
		return
	}

	if room != nil {
		g.broadcastLocked(code, PlayerLeftMessage{Type: "player-left", PlayerID: removed.ID})
		g.broadcastLocked(code, RoomSnapshotMessage{Type: "room-updated", Room: *room})
	}

	logf(g.cfg, "GAMES: Player %q left room %s", removed.Name, code)
}

// disconnect treats a dropped connection as an explicit leave from its last
// known room, then retires the client.
func (g *Gateway) disconnect(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c.room != "" {
		g.leaveLocked(c, c.room)
	}
	g.dropLocked(c)
}

func (g *Gateway) broadcastLocked(code string, msg any) {
	for client := range g.subs[code] {
		g.sendLocked(client, msg)
	}
}

func (g *Gateway) sendLocked(c *Client, msg any) {
	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		// Client is slow/full - drop them.
		g.dropLocked(c)
	}
}

func (g *Gateway) dropLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true

	if set := g.subs[c.room]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(g.subs, c.room)
		}
	}
	c.room = ""

	close(c.send)
}

// sweepLoop evicts rooms past the retention window on a fixed interval,
// independent of any request, and hangs up their remaining subscribers.
func (g *Gateway) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweepOnce()
		}
	}
}

func (g *Gateway) sweepOnce() {
	for _, code := range g.rooms.SweepStaleRooms(g.cfg.roomRetention) {
		g.mu.Lock()
		for client := range g.subs[code] {
			g.dropLocked(client)
		}
		g.mu.Unlock()

		logf(g.cfg, "GAMES: Swept stale room %s", code)
	}
}

// newRoomCode generates a crypto-random room code and ensures it doesn't
// collide with an active room.
func (g *Gateway) newRoomCode() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 6)
		for i := range out {
			out[i] = charset[int(buf[i])%len(charset)]
		}
		code := string(out)

		if g.rooms.GetRoom(code) == nil {
			return code
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the connection and binds it to a fresh ephemeral ID.
// Room membership comes from join-room intents, not from the URL.
func serveWS(cfg *Config, g *Gateway) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: websocket upgrade: %v", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
			id:   uuid.NewString(),
		}

		go client.writePump()
		client.readPump(g)
	}
}

func (c *Client) readPump(g *Gateway) {
	defer func() {
		g.disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		g.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:code/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewRoom handles GET /path by generating a new random room code
// (with server-side collision detection) and redirecting to /path/:code.
func redirectNewRoom(cfg *Config, path string, g *Gateway) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code := g.newRoomCode()
		logf(cfg, "GAMES: Reserved room %s%s/%s", cfg.prefix, path, code)
		http.Redirect(w, r, cfg.prefix+path+"/"+code, http.StatusTemporaryRedirect)
	}
}

// registerSpyfallGame sets up routes so that:
//   - $path                  → redirects to a new random room code
//   - $path/:code            → HTML client
//   - $path/:code/ws         → WebSocket for that room
//   - $path/:code/qr         → PNG QR code for that room URL
func registerSpyfallGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router) {
	g := newGateway(cfg, NewRoomManager(gameLocations, nil))

	go g.sweepLoop(ctx)

	// Root path → redirect to new random room
	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, g))

	// Per-room client view (HTML)
	mux.GET(cfg.prefix+path+"/:code", getIndexHandler(cfg))

	// Shared assets (no room code in route)
	mux.GET(cfg.prefix+"/assets/spyfall/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/spyfall/app.js", getJsHandler(cfg))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:code/ws", serveWS(cfg, g))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:code/qr", qrHandler)
}
