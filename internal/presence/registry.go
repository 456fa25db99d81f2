// Package presence tracks which peers are currently reachable and the
// last-known metadata of every peer ever seen.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackboard-protocol/blackboard/internal/models"
)

// ErrNotFound is returned by FindPeer when a peer has no live handle and
// no remote route.
var ErrNotFound = errors.New("peer not found")

// Handle is a transport send capability bound to one live session. It
// must be safe for concurrent use; Send on a closed session returns an
// error.
type Handle interface {
	Send(frame models.Frame) error
	Close() error
}

// RemoteLookup resolves peers living on other nodes. Given a peer id it
// returns an opaque route descriptor, or ErrNotFound when unknown, with
// no guarantee of freshness. The default implementation never finds
// anything; a cross-node routing table can be plugged in instead.
type RemoteLookup interface {
	Lookup(ctx context.Context, peerID string) (string, error)
}

// Maintainer is implemented by RemoteLookup backends that want periodic
// upkeep from the registry's maintenance loop.
type Maintainer interface {
	Maintain(ctx context.Context)
}

// NoopLookup is the default RemoteLookup: every peer is unknown.
type NoopLookup struct{}

func (NoopLookup) Lookup(ctx context.Context, peerID string) (string, error) {
	return "", ErrNotFound
}

// Peer is the result of a lookup: either a local live handle or an
// opaque route to another node.
type Peer struct {
	Local  bool
	Handle Handle
	Route  string
}

// Registry owns the live handle map and the presence records. At most
// one live handle exists per peer id; a re-registration replaces the
// previous handle atomically.
type Registry struct {
	logger zerolog.Logger
	remote RemoteLookup

	mu      sync.RWMutex
	handles map[string]Handle
	agents  map[string]*models.Agent

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRegistry creates a registry. A nil remote falls back to NoopLookup.
func NewRegistry(logger zerolog.Logger, remote RemoteLookup) *Registry {
	if remote == nil {
		remote = NoopLookup{}
	}
	return &Registry{
		logger:  logger,
		remote:  remote,
		handles: make(map[string]Handle),
		agents:  make(map[string]*models.Agent),
		stop:    make(chan struct{}),
	}
}

// Register binds a live handle to peerID and marks the agent online.
// Any existing handle for the same peer is replaced, last writer wins.
func (r *Registry) Register(peerID string, handle Handle, metadata map[string]any) {
	name := peerID
	if n, ok := metadata["name"].(string); ok && n != "" {
		name = n
	}

	r.mu.Lock()
	r.handles[peerID] = handle
	r.agents[peerID] = &models.Agent{
		ID:       peerID,
		Name:     name,
		Status:   models.StatusOnline,
		LastSeen: time.Now().UnixMilli(),
		Metadata: metadata,
	}
	r.mu.Unlock()

	r.logger.Info().Str("peerId", peerID).Str("name", name).Msg("peer registered and online")
	r.announce("PEER_ONLINE", peerID)
}

// Unregister clears the live handle and marks the agent offline. A peer
// that is already offline is a no-op. The presence record is never
// deleted.
func (r *Registry) Unregister(peerID string) {
	r.mu.Lock()
	_, live := r.handles[peerID]
	if live {
		delete(r.handles, peerID)
		if agent, ok := r.agents[peerID]; ok {
			agent.Status = models.StatusOffline
			agent.LastSeen = time.Now().UnixMilli()
		}
	}
	r.mu.Unlock()

	if live {
		r.logger.Info().Str("peerId", peerID).Msg("peer unregistered and offline")
		r.announce("PEER_OFFLINE", peerID)
	}
}

// AllAgents returns a snapshot of every known presence record.
func (r *Registry) AllAgents() []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, *agent)
	}
	return out
}

// FindPeer locates a peer: a local live handle wins, then the remote
// lookup is consulted. Returns ErrNotFound when neither knows the peer.
func (r *Registry) FindPeer(ctx context.Context, peerID string) (*Peer, error) {
	r.mu.RLock()
	handle, ok := r.handles[peerID]
	r.mu.RUnlock()
	if ok {
		return &Peer{Local: true, Handle: handle}, nil
	}

	route, err := r.remote.Lookup(ctx, peerID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn().Err(err).Str("peerId", peerID).Msg("remote lookup failed")
		}
		return nil, ErrNotFound
	}
	return &Peer{Local: false, Route: route}, nil
}

// announce would broadcast presence changes to other server nodes in a
// clustered deployment. Single-node: the event is only logged.
func (r *Registry) announce(event, peerID string) {
	r.logger.Debug().Str("event", event).Str("peerId", peerID).Msg("announcing network state change")
}

// StartMaintenance runs a periodic upkeep loop until Stop is called.
// Local handles are cleaned up synchronously on disconnect; the tick
// only services the remote lookup, if it wants servicing.
func (r *Registry) StartMaintenance(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.logger.Debug().Msg("running presence maintenance")
				if m, ok := r.remote.(Maintainer); ok {
					m.Maintain(context.Background())
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop terminates the maintenance loop. Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
