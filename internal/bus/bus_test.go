package bus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	return New(zerolog.Nop(), t.TempDir())
}

// publishAndWait publishes and blocks until the message is readable
// from the log, since persistence is fire and forget.
func publishAndWait(t *testing.T, b *Bus, channelID, senderID, payload string) string {
	t.Helper()
	msg := b.Publish(channelID, senderID, json.RawMessage(payload))
	require.Eventually(t, func() bool {
		history, err := b.History(channelID, 0)
		if err != nil {
			return false
		}
		for _, m := range history {
			if m.ID == msg.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return msg.ID
}

func TestJoinLeaveMembership(t *testing.T) {
	b := newTestBus(t)

	b.Join("c1", "alice")
	b.Join("c1", "bob")
	assert.ElementsMatch(t, []string{"alice", "bob"}, b.Subscribers("c1"))

	// Double join is idempotent
	b.Join("c1", "alice")
	assert.Len(t, b.Subscribers("c1"), 2)

	b.Leave("c1", "alice")
	assert.Equal(t, []string{"bob"}, b.Subscribers("c1"))

	// Leaving an unknown channel or peer is a no-op
	b.Leave("c1", "ghost")
	b.Leave("nope", "alice")
	assert.Equal(t, []string{"bob"}, b.Subscribers("c1"))
}

func TestEmptyChannelEvicted(t *testing.T) {
	b := newTestBus(t)

	b.Join("c1", "alice")
	b.Leave("c1", "alice")

	b.mu.RLock()
	_, exists := b.channels["c1"]
	b.mu.RUnlock()
	assert.False(t, exists, "empty channel should be dropped from the membership index")
	assert.Empty(t, b.Subscribers("c1"))
}

func TestSubscribersUnknownChannel(t *testing.T) {
	b := newTestBus(t)
	assert.Empty(t, b.Subscribers("unknown"))
}

func TestPublishReturnsMessageImmediately(t *testing.T) {
	b := newTestBus(t)

	msg := b.Publish("c1", "alice", json.RawMessage(`{"text":"hi"}`))
	require.NotNil(t, msg)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "c1", msg.ChannelID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.JSONEq(t, `{"text":"hi"}`, string(msg.Payload))
	assert.NotZero(t, msg.Timestamp)
}

func TestPublishSurvivesUnwritableLog(t *testing.T) {
	// Point the log at a directory so the append fails
	dir := t.TempDir()
	b := New(zerolog.Nop(), dir)
	require.NoError(t, os.Mkdir(b.logPath, 0o755))

	msg := b.Publish("c1", "alice", json.RawMessage(`"hi"`))
	require.NotNil(t, msg, "publish must not fail on persistence errors")
	assert.NotEmpty(t, msg.ID)
}

func TestHistoryOrderAndLimit(t *testing.T) {
	b := newTestBus(t)

	var ids []string
	for _, text := range []string{`"one"`, `"two"`, `"three"`, `"four"`} {
		ids = append(ids, publishAndWait(t, b, "c1", "alice", text))
	}

	history, err := b.History("c1", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Most recent three, oldest first
	assert.Equal(t, ids[1], history[0].ID)
	assert.Equal(t, ids[2], history[1].ID)
	assert.Equal(t, ids[3], history[2].ID)
}

func TestHistoryFiltersByChannel(t *testing.T) {
	b := newTestBus(t)

	want := publishAndWait(t, b, "c1", "alice", `"keep"`)
	publishAndWait(t, b, "c2", "bob", `"other"`)
	publishAndWait(t, b, "c3", "carol", `"noise"`)

	history, err := b.History("c1", 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, want, history[0].ID)
	assert.Equal(t, "c1", history[0].ChannelID)
}

func TestHistoryEmptyForUnknownChannel(t *testing.T) {
	b := newTestBus(t)

	history, err := b.History("unknown", 50)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistorySkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	b := New(zerolog.Nop(), dir)

	good := publishAndWait(t, b, "c1", "alice", `"first"`)

	// Corrupt the log with a partial line, then keep publishing
	f, err := os.OpenFile(filepath.Join(dir, "channel-messages.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json}\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	second := publishAndWait(t, b, "c1", "alice", `"second"`)

	history, err := b.History("c1", 50)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, good, history[0].ID)
	assert.Equal(t, second, history[1].ID)
}

func TestHistorySurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	b := New(zerolog.Nop(), dir)
	id := publishAndWait(t, b, "c1", "alice", `"durable"`)

	// Membership is memory-only; history is not
	reopened := New(zerolog.Nop(), dir)
	assert.Empty(t, reopened.Subscribers("c1"))

	history, err := reopened.History("c1", 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].ID)
}
