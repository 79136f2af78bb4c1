package main

import (
	"math/rand"
	"testing"
	"time"
)

func newTestGateway() *Gateway {
	cfg := &Config{
		roomRetention: 24 * time.Hour,
		sweepInterval: time.Hour,
	}

	return newGateway(cfg, NewRoomManager(gameLocations, rand.NewSource(1)))
}

func newTestClient(id string) *Client {
	return &Client{
		send: make(chan any, 32),
		id:   id,
	}
}

// helper: receive one queued message; dispatch is synchronous, so anything
// the gateway sent is already buffered
func recvMsg(t *testing.T, c *Client) any {
	t.Helper()

	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatalf("client %s: expected a queued message", c.id)
		return nil // unreachable
	}
}

func recvNoMsg(t *testing.T, c *Client) {
	t.Helper()

	select {
	case msg := <-c.send:
		t.Fatalf("client %s: expected no message, got %+v", c.id, msg)
	default:
		// good: nothing queued
	}
}

func recvSnapshot(t *testing.T, c *Client, event string) Room {
	t.Helper()

	msg := recvMsg(t, c)
	snap, ok := msg.(RoomSnapshotMessage)
	if !ok {
		t.Fatalf("client %s: expected %s snapshot, got %+v", c.id, event, msg)
	}
	if snap.Type != event {
		t.Fatalf("client %s: expected event %q, got %q", c.id, event, snap.Type)
	}
	return snap.Room
}

func join(t *testing.T, g *Gateway, c *Client, code, name string, asHost bool) {
	t.Helper()

	g.dispatch(c, ClientMessage{Type: "join-room", Code: code, Name: name, AsHost: asHost})
}

// helper: seed a room with three members and drain their queues
func threePlayerRoom(t *testing.T, g *Gateway, code string) (host, second, third *Client) {
	t.Helper()

	host = newTestClient("conn-host")
	second = newTestClient("conn-second")
	third = newTestClient("conn-third")

	join(t, g, host, code, "Ana", true)
	join(t, g, second, code, "Bruno", false)
	join(t, g, third, code, "Carla", false)

	for _, c := range []*Client{host, second, third} {
		for len(c.send) > 0 {
			<-c.send
		}
	}

	return host, second, third
}

func TestGatewayJoinBroadcastsSnapshot(t *testing.T) {
	g := newTestGateway()

	host := newTestClient("c1")
	join(t, g, host, "abc123", "Ana", true)

	room := recvSnapshot(t, host, "room-updated")
	if room.Code != "ABC123" || len(room.Players) != 1 {
		t.Fatalf("unexpected host snapshot: %+v", room)
	}
	recvNoMsg(t, host)

	joiner := newTestClient("c2")
	join(t, g, joiner, "ABC123", "Bruno", false)

	// Both subscribers get the authoritative snapshot.
	room = recvSnapshot(t, host, "room-updated")
	if len(room.Players) != 2 {
		t.Fatalf("expected 2 players in broadcast, got %d", len(room.Players))
	}
	recvSnapshot(t, joiner, "room-updated")

	// The advisory goes to everyone except the joiner.
	advisory, ok := recvMsg(t, host).(PlayerJoinedMessage)
	if !ok || advisory.Player.Name != "Bruno" {
		t.Fatalf("expected player-joined for Bruno, got %+v", advisory)
	}
	recvNoMsg(t, joiner)
}

func TestGatewayErrorOnlyToOrigin(t *testing.T) {
	g := newTestGateway()

	host := newTestClient("c1")
	join(t, g, host, "ABC123", "Ana", true)
	recvSnapshot(t, host, "room-updated")

	dup := newTestClient("c2")
	join(t, g, dup, "ABC123", "ana", false)

	errMsg, ok := recvMsg(t, dup).(ErrorMessage)
	if !ok || errMsg.Message != ErrDuplicateName.Error() {
		t.Fatalf("expected duplicate-name error, got %+v", errMsg)
	}
	recvNoMsg(t, host)

	if room := g.rooms.GetRoom("ABC123"); len(room.Players) != 1 {
		t.Errorf("failed join mutated the room: %+v", room.Players)
	}
}

func TestGatewayRoomNotFound(t *testing.T) {
	g := newTestGateway()

	c := newTestClient("c1")
	join(t, g, c, "GHOST1", "Ana", false)

	if _, ok := recvMsg(t, c).(RoomNotFoundMessage); !ok {
		t.Fatal("expected room-not-found")
	}
}

func TestGatewayStartBroadcastOrder(t *testing.T) {
	g := newTestGateway()
	host, second, third := threePlayerRoom(t, g, "ABC123")

	g.dispatch(host, ClientMessage{Type: "start-game", Code: "ABC123"})

	// Every subscriber sees the same events in the same order.
	for _, c := range []*Client{host, second, third} {
		started := recvSnapshot(t, c, "game-started")
		updated := recvSnapshot(t, c, "room-updated")

		if started.Status != StatusPlaying || updated.Status != StatusPlaying {
			t.Errorf("client %s: expected playing snapshots", c.id)
		}
		if started.SpyID == "" || started.Location == "" {
			t.Errorf("client %s: snapshot missing deal: %+v", c.id, started)
		}
	}
}

func TestGatewayStartDeniedForNonHost(t *testing.T) {
	g := newTestGateway()
	host, second, _ := threePlayerRoom(t, g, "ABC123")

	g.dispatch(second, ClientMessage{Type: "start-game", Code: "ABC123"})

	errMsg, ok := recvMsg(t, second).(ErrorMessage)
	if !ok || errMsg.Message != ErrNotHost.Error() {
		t.Fatalf("expected not-host error, got %+v", errMsg)
	}
	recvNoMsg(t, host)
}

func TestGatewayRestartBroadcast(t *testing.T) {
	g := newTestGateway()
	host, second, third := threePlayerRoom(t, g, "ABC123")

	g.dispatch(host, ClientMessage{Type: "start-game", Code: "ABC123"})
	for _, c := range []*Client{host, second, third} {
		recvSnapshot(t, c, "game-started")
		recvSnapshot(t, c, "room-updated")
	}

	g.dispatch(host, ClientMessage{Type: "restart-game", Code: "ABC123"})
	for _, c := range []*Client{host, second, third} {
		restarted := recvSnapshot(t, c, "game-restarted")
		recvSnapshot(t, c, "room-updated")

		for _, p := range restarted.Players {
			if p.CardRevealed {
				t.Errorf("client %s: %s still revealed after restart", c.id, p.Name)
			}
		}
	}
}

func TestGatewayRevealBroadcast(t *testing.T) {
	g := newTestGateway()
	host, second, third := threePlayerRoom(t, g, "ABC123")

	g.dispatch(host, ClientMessage{Type: "start-game", Code: "ABC123"})
	for _, c := range []*Client{host, second, third} {
		recvSnapshot(t, c, "game-started")
		recvSnapshot(t, c, "room-updated")
	}

	g.dispatch(second, ClientMessage{Type: "reveal-card", Code: "ABC123"})

	brunoID := g.rooms.PlayerByConn("ABC123", second.id).ID
	for _, c := range []*Client{host, second, third} {
		revealed, ok := recvMsg(t, c).(CardRevealedMessage)
		if !ok || revealed.PlayerID != brunoID {
			t.Fatalf("client %s: expected card-revealed for Bruno, got %+v", c.id, revealed)
		}
		recvSnapshot(t, c, "room-updated")
	}
}

func TestGatewayLeaveReassignsHost(t *testing.T) {
	g := newTestGateway()
	host, second, third := threePlayerRoom(t, g, "ABC123")

	g.dispatch(host, ClientMessage{Type: "leave-room", Code: "ABC123"})

	anaID := ""
	for _, c := range []*Client{second, third} {
		left, ok := recvMsg(t, c).(PlayerLeftMessage)
		if !ok {
			t.Fatalf("client %s: expected player-left", c.id)
		}
		anaID = left.PlayerID

		room := recvSnapshot(t, c, "room-updated")
		if len(room.Players) != 2 {
			t.Fatalf("client %s: expected 2 players, got %d", c.id, len(room.Players))
		}
		if !room.Players[0].IsHost || room.Players[0].Name != "Bruno" {
			t.Errorf("client %s: expected Bruno as new host, got %+v", c.id, room.Players)
		}
	}

	if anaID == "" {
		t.Error("player-left carried no player id")
	}

	// The leaver is unsubscribed and hears nothing.
	recvNoMsg(t, host)
}

func TestGatewayDisconnectActsAsLeave(t *testing.T) {
	g := newTestGateway()
	host, second, third := threePlayerRoom(t, g, "ABC123")

	g.disconnect(second)

	for _, c := range []*Client{host, third} {
		if _, ok := recvMsg(t, c).(PlayerLeftMessage); !ok {
			t.Fatalf("client %s: expected player-left after disconnect", c.id)
		}
		room := recvSnapshot(t, c, "room-updated")
		if len(room.Players) != 2 {
			t.Errorf("client %s: expected 2 players, got %d", c.id, len(room.Players))
		}
	}

	// Idempotent: dropping the same client again changes nothing.
	g.disconnect(second)
	recvNoMsg(t, host)
	recvNoMsg(t, third)

	if room := g.rooms.GetRoom("ABC123"); room == nil || len(room.Players) != 2 {
		t.Errorf("expected room with 2 players, got %+v", room)
	}
}

func TestGatewayLastLeaveDeletesRoom(t *testing.T) {
	g := newTestGateway()

	host := newTestClient("c1")
	join(t, g, host, "ABC123", "Ana", true)
	recvSnapshot(t, host, "room-updated")

	g.dispatch(host, ClientMessage{Type: "leave-room", Code: "ABC123"})

	recvNoMsg(t, host)
	if g.rooms.GetRoom("ABC123") != nil {
		t.Error("expected room deleted after last leave")
	}
	if len(g.subs) != 0 {
		t.Errorf("expected no leftover subscriptions, got %d", len(g.subs))
	}
}

func TestGatewaySweepDropsSubscribers(t *testing.T) {
	g := newTestGateway()

	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	g.rooms.now = func() time.Time { return base }

	host, second, third := threePlayerRoom(t, g, "ABC123")

	g.rooms.now = func() time.Time { return base.Add(25 * time.Hour) }
	g.sweepOnce()

	if g.rooms.GetRoom("ABC123") != nil {
		t.Error("expected room swept")
	}
	if len(g.subs) != 0 {
		t.Errorf("expected subscriptions cleared, got %d", len(g.subs))
	}

	for _, c := range []*Client{host, second, third} {
		if _, open := <-c.send; open {
			t.Errorf("client %s: expected closed send channel", c.id)
		}
	}
}
