package presence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackboard-protocol/blackboard/internal/models"
)

type fakeHandle struct {
	mu     sync.Mutex
	frames []models.Frame
}

func (h *fakeHandle) Send(frame models.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame)
	return nil
}

func (h *fakeHandle) Close() error { return nil }

type stubLookup struct {
	routes map[string]string
}

func (s *stubLookup) Lookup(ctx context.Context, peerID string) (string, error) {
	route, ok := s.routes[peerID]
	if !ok {
		return "", ErrNotFound
	}
	return route, nil
}

func TestRegisterMarksOnline(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), nil)

	r.Register("alice", &fakeHandle{}, map[string]any{"name": "Alice"})

	agents := r.AllAgents()
	require.Len(t, agents, 1)
	assert.Equal(t, "alice", agents[0].ID)
	assert.Equal(t, "Alice", agents[0].Name)
	assert.Equal(t, models.StatusOnline, agents[0].Status)
	assert.NotZero(t, agents[0].LastSeen)
}

func TestRegisterDefaultsNameToPeerID(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), nil)

	r.Register("alice", &fakeHandle{}, nil)

	agents := r.AllAgents()
	require.Len(t, agents, 1)
	assert.Equal(t, "alice", agents[0].Name)
}

func TestUnregisterKeepsPresenceRecord(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), nil)

	r.Register("alice", &fakeHandle{}, nil)
	r.Unregister("alice")

	agents := r.AllAgents()
	require.Len(t, agents, 1)
	assert.Equal(t, models.StatusOffline, agents[0].Status)

	_, err := r.FindPeer(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), nil)

	r.Register("alice", &fakeHandle{}, nil)
	r.Unregister("alice")
	r.Unregister("alice")
	r.Unregister("ghost")

	agents := r.AllAgents()
	require.Len(t, agents, 1)
	assert.Equal(t, models.StatusOffline, agents[0].Status)
}

func TestReRegistrationReplacesHandle(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), nil)

	first := &fakeHandle{}
	second := &fakeHandle{}
	r.Register("alice", first, nil)
	r.Register("alice", second, nil)

	peer, err := r.FindPeer(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, peer.Local)
	assert.Same(t, Handle(second), peer.Handle)

	// Still a single presence record
	assert.Len(t, r.AllAgents(), 1)
}

func TestFindPeerLocal(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), nil)
	h := &fakeHandle{}
	r.Register("alice", h, nil)

	peer, err := r.FindPeer(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, peer.Local)
	require.NotNil(t, peer.Handle)

	require.NoError(t, peer.Handle.Send(models.Frame{Type: models.FramePing}))
	assert.Len(t, h.frames, 1)
}

func TestFindPeerRemoteRoute(t *testing.T) {
	remote := &stubLookup{routes: map[string]string{"bob": "node-7"}}
	r := NewRegistry(zerolog.Nop(), remote)

	peer, err := r.FindPeer(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, peer.Local)
	assert.Equal(t, "node-7", peer.Route)
}

func TestFindPeerLocalWinsOverRemote(t *testing.T) {
	remote := &stubLookup{routes: map[string]string{"alice": "node-7"}}
	r := NewRegistry(zerolog.Nop(), remote)
	r.Register("alice", &fakeHandle{}, nil)

	peer, err := r.FindPeer(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, peer.Local)
}

func TestFindPeerAbsent(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), nil)

	peer, err := r.FindPeer(context.Background(), "nobody")
	assert.Nil(t, peer)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStopIsSafeToCallTwice(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), nil)
	r.StartMaintenance(0)
	r.Stop()
	r.Stop()
}
