package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/mcdev12/buzzer/go/internal/buzzer/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInbound struct {
	mu           sync.Mutex
	connected    []string
	received     map[string][]string
	disconnected []string
}

func newRecordingInbound() *recordingInbound {
	return &recordingInbound{received: make(map[string][]string)}
}

func (r *recordingInbound) Connected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, id)
}

func (r *recordingInbound) Received(id string, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received[id] = append(r.received[id], string(frame))
}

func (r *recordingInbound) Disconnected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, id)
}

func (r *recordingInbound) disconnects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.disconnected...)
}

type recordingMirror struct {
	types []events.Type
}

func (m *recordingMirror) Publish(eventType events.Type, _ []byte) {
	m.types = append(m.types, eventType)
}

func createTestManager() (*ConnectionManager, *recordingInbound) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	inbound := newRecordingInbound()
	cm.inbound = inbound
	return cm, inbound
}

// createTestConnection builds a connection without a socket; only Send is used
func createTestConnection(cm *ConnectionManager, id string, buffer int) *Connection {
	now := time.Now()
	conn := &Connection{
		ID:          id,
		Send:        make(chan []byte, buffer),
		Manager:     cm,
		ConnectedAt: now,
	}
	conn.touch(now)
	cm.registerConnection(conn)
	return conn
}

func decodeFrame(t *testing.T, frame []byte) events.Event {
	t.Helper()
	var ev events.Event
	require.NoError(t, json.Unmarshal(frame, &ev))
	return ev
}

func TestConnectionManager_RegisterUnregister(t *testing.T) {
	cm, inbound := createTestManager()

	conn := createTestConnection(cm, "conn1", 4)
	assert.Equal(t, []string{"conn1"}, inbound.connected)
	assert.Equal(t, 1, cm.GetConnectionStats()["total_connections"])

	assert.True(t, cm.unregisterConnection(conn))
	assert.False(t, cm.unregisterConnection(conn), "second unregister is a no-op")

	assert.Equal(t, []string{"conn1"}, inbound.disconnects(), "disconnect is reported once")
	assert.Equal(t, 0, cm.GetConnectionStats()["total_connections"])

	_, open := <-conn.Send
	assert.False(t, open)
}

func TestConnectionManager_TargetedAndBroadcast(t *testing.T) {
	cm, _ := createTestManager()
	mirror := &recordingMirror{}
	cm.mirror = mirror

	a := createTestConnection(cm, "a", 4)
	b := createTestConnection(cm, "b", 4)

	cm.handleBroadcast(BroadcastMessage{Event: events.NewEvent(events.TypePing, time.Now(), nil), ConnectionID: "a"})
	cm.handleBroadcast(BroadcastMessage{Event: events.NewEvent(events.TypeReset, time.Now(), nil)})

	require.Len(t, a.Send, 2)
	assert.Equal(t, events.TypePing, decodeFrame(t, <-a.Send).Type)
	assert.Equal(t, events.TypeReset, decodeFrame(t, <-a.Send).Type)

	require.Len(t, b.Send, 1)
	assert.Equal(t, events.TypeReset, decodeFrame(t, <-b.Send).Type)

	cm.handleBroadcast(BroadcastMessage{Event: events.NewEvent(events.TypeNameOK, time.Now(), nil)})
	assert.Equal(t, []events.Type{events.TypeReset}, mirror.types, "only all-recipient events are mirrored")
}

func TestConnectionManager_TargetMissing(t *testing.T) {
	cm, _ := createTestManager()
	a := createTestConnection(cm, "a", 4)

	cm.handleBroadcast(BroadcastMessage{Event: events.NewEvent(events.TypeCodeOK, time.Now(), nil), ConnectionID: "gone"})
	assert.Empty(t, a.Send)
}

func TestConnectionManager_SlowConnectionDropped(t *testing.T) {
	cm, inbound := createTestManager()

	slow := createTestConnection(cm, "slow", 1)
	fast := createTestConnection(cm, "fast", 4)

	cm.handleBroadcast(BroadcastMessage{Event: events.NewEvent(events.TypeBuzzSingle, time.Now(), events.Identity{Name: "A", Color: "red"})})
	cm.handleBroadcast(BroadcastMessage{Event: events.NewEvent(events.TypeBuzzList, time.Now(), []events.Identity{})})

	assert.Equal(t, []string{"slow"}, inbound.disconnects())
	assert.Len(t, fast.Send, 2)

	// The frame queued before the overflow is still drained by the write pump
	frame, ok := <-slow.Send
	require.True(t, ok)
	assert.Equal(t, events.TypeBuzzSingle, decodeFrame(t, frame).Type)
	_, ok = <-slow.Send
	assert.False(t, ok)
}

func TestConnectionManager_StartPreservesOrder(t *testing.T) {
	cm, inbound := createTestManager()
	a := createTestConnection(cm, "a", 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()

	order := []events.Type{events.TypeNameOK, events.TypePing, events.TypeBuzzSingle, events.TypeBuzzList}
	for _, typ := range order {
		if typ.ToAll() {
			cm.Broadcast(events.NewEvent(typ, time.Now(), nil))
		} else {
			cm.SendTo("a", events.NewEvent(typ, time.Now(), nil))
		}
	}

	for _, want := range order {
		select {
		case frame := <-a.Send:
			assert.Equal(t, want, decodeFrame(t, frame).Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	<-done
	assert.Equal(t, []string{"a"}, inbound.disconnects(), "shutdown closes remaining connections")
}

func fillQueue(cm *ConnectionManager) {
	for len(cm.broadcastCh) < cap(cm.broadcastCh) {
		cm.broadcastCh <- BroadcastMessage{Event: events.NewEvent(events.TypeUserCount, time.Now(), 0)}
	}
}

func drainQueue(cm *ConnectionManager) {
	for len(cm.broadcastCh) > 0 {
		<-cm.broadcastCh
	}
}

func TestConnectionManager_QueueFull(t *testing.T) {
	cm, _ := createTestManager()
	fillQueue(cm)

	assert.False(t, cm.SendTo("a", events.NewEvent(events.TypePing, time.Now(), nil)))
	assert.False(t, cm.Broadcast(events.NewEvent(events.TypeBuzzList, time.Now(), []events.Identity{})))

	<-cm.broadcastCh
	assert.True(t, cm.SendTo("a", events.NewEvent(events.TypePing, time.Now(), nil)))
}

func TestConnectionManager_QueueFullDoesNotStrandBuzz(t *testing.T) {
	cm, _ := createTestManager()
	a := createTestConnection(cm, "a", 16)
	g := game.New(game.Config{HostCode: "letmein"}, clockwork.NewFakeClock(), cm)

	require.NoError(t, g.Connect("a"))
	env, err := events.Decode([]byte(`{"type":"name","data":{"name":"Alice","color":"red"}}`))
	require.NoError(t, err)
	g.Handle("a", env)
	drainQueue(cm)

	buzz, err := events.Decode([]byte(`{"type":"buzz"}`))
	require.NoError(t, err)

	fillQueue(cm)
	g.Handle("a", buzz)
	assert.Equal(t, 0, g.Snapshot().PendingProbes, "a ping that was never queued is not outstanding")

	drainQueue(cm)
	g.Handle("a", buzz)
	assert.Equal(t, 1, g.Snapshot().PendingProbes)

	require.NotEmpty(t, cm.broadcastCh)
	cm.handleBroadcast(<-cm.broadcastCh)
	require.Len(t, a.Send, 1)
	assert.Equal(t, events.TypePing, decodeFrame(t, <-a.Send).Type)
}

func TestConnectionManager_KeepaliveAgeInStats(t *testing.T) {
	cm, _ := createTestManager()
	assert.Equal(t, 0.0, cm.GetConnectionStats()["oldest_keepalive_sec"])

	fresh := createTestConnection(cm, "fresh", 4)
	stale := createTestConnection(cm, "stale", 4)
	stale.touch(time.Now().Add(-90 * time.Second))

	assert.WithinDuration(t, time.Now(), fresh.LastPing(), time.Second)
	age, ok := cm.GetConnectionStats()["oldest_keepalive_sec"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, age, 90.0)
	assert.Less(t, age, 100.0)
}
