// Package bus provides publish/subscribe group messaging with durable,
// append-only message history.
package bus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/blackboard-protocol/blackboard/internal/models"
)

// DefaultHistoryLimit is used when a caller asks for history without a
// positive limit.
const DefaultHistoryLimit = 50

// Bus tracks channel membership in memory and appends published
// messages to a shared JSONL log. Membership is lost on restart and
// must be rejoined; the log survives restarts.
type Bus struct {
	logger  zerolog.Logger
	logPath string

	mu       sync.RWMutex
	channels map[string]map[string]struct{}

	// serializes appends so concurrent publishes never interleave lines
	appendMu sync.Mutex
}

// New creates a Bus persisting messages under dataDir.
func New(logger zerolog.Logger, dataDir string) *Bus {
	return &Bus{
		logger:   logger,
		logPath:  filepath.Join(dataDir, "channel-messages.jsonl"),
		channels: make(map[string]map[string]struct{}),
	}
}

// Join adds a peer to a channel's membership. Idempotent.
func (b *Bus) Join(channelID, peerID string) {
	b.mu.Lock()
	subs, ok := b.channels[channelID]
	if !ok {
		subs = make(map[string]struct{})
		b.channels[channelID] = subs
	}
	subs[peerID] = struct{}{}
	b.mu.Unlock()

	b.logger.Info().Str("peerId", peerID).Str("channelId", channelID).Msg("peer joined channel")
}

// Leave removes a peer from a channel's membership. Idempotent. The
// channel entry is dropped once its membership is empty; history is
// unaffected.
func (b *Bus) Leave(channelID, peerID string) {
	b.mu.Lock()
	subs, ok := b.channels[channelID]
	if ok {
		delete(subs, peerID)
		if len(subs) == 0 {
			delete(b.channels, channelID)
		}
	}
	b.mu.Unlock()

	if ok {
		b.logger.Info().Str("peerId", peerID).Str("channelId", channelID).Msg("peer left channel")
	}
}

// Subscribers returns a snapshot of the channel's membership. An unknown
// channel yields an empty slice, not an error.
func (b *Bus) Subscribers(channelID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.channels[channelID]
	out := make([]string, 0, len(subs))
	for peerID := range subs {
		out = append(out, peerID)
	}
	return out
}

// Publish constructs a message and hands it back immediately for
// fan-out. Persistence is fire and forget: an append failure is logged,
// never surfaced, so delivery latency is decoupled from disk latency.
func (b *Bus) Publish(channelID, senderID string, payload json.RawMessage) *models.ChannelMessage {
	msg := &models.ChannelMessage{
		ID:        ulid.Make().String(),
		ChannelID: channelID,
		SenderID:  senderID,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}

	go b.persist(msg)

	return msg
}

func (b *Bus) persist(msg *models.ChannelMessage) {
	line, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("messageId", msg.ID).Msg("failed to encode channel message")
		return
	}
	line = append(line, '\n')

	b.appendMu.Lock()
	defer b.appendMu.Unlock()

	f, err := os.OpenFile(b.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to open channel message log")
		return
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		b.logger.Error().Err(err).Str("messageId", msg.ID).Msg("failed to persist channel message")
	}
}

// History returns up to limit of the most recent messages for a
// channel, oldest first. Malformed log lines are skipped. The log is
// eventually consistent with Publish within the same process.
func (b *Bus) History(channelID string, limit int) ([]models.ChannelMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	b.appendMu.Lock()
	content, err := os.ReadFile(b.logPath)
	b.appendMu.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		return []models.ChannelMessage{}, nil
	}
	if err != nil {
		return nil, err
	}

	// Collect all matching messages in log order, then keep the suffix.
	var matches []models.ChannelMessage
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var msg models.ChannelMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.ChannelID == channelID {
			matches = append(matches, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}
	if matches == nil {
		matches = []models.ChannelMessage{}
	}
	return matches, nil
}
