package mediagroups

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQuiet = 50 * time.Millisecond

func groupMessage(groupID string, messageID int) telego.Message {
	return telego.Message{
		MessageID:    messageID,
		MediaGroupID: groupID,
		From:         &telego.User{ID: 1},
		Chat:         telego.Chat{ID: 1},
	}
}

// finalizeRecorder collects finalized groups for assertions.
type finalizeRecorder struct {
	mu     sync.Mutex
	groups [][]telego.Message
	done   chan struct{}
}

func newFinalizeRecorder() *finalizeRecorder {
	return &finalizeRecorder{done: make(chan struct{}, 10)}
}

func (r *finalizeRecorder) finalize(_ context.Context, _ string, messages []telego.Message) error {
	r.mu.Lock()
	r.groups = append(r.groups, messages)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *finalizeRecorder) wait(t *testing.T) []telego.Message {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for finalization")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[len(r.groups)-1]
}

func (r *finalizeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func TestAggregatorCollectsGroup(t *testing.T) {
	a := NewAggregator(testQuiet, DefaultMaxGroupSize)
	rec := newFinalizeRecorder()

	// Out of order arrival, finalized messages must come back sorted.
	assert.Equal(t, 1, a.Add(groupMessage("g1", 12), rec.finalize))
	assert.Equal(t, 2, a.Add(groupMessage("g1", 10), rec.finalize))
	assert.Equal(t, 3, a.Add(groupMessage("g1", 11), rec.finalize))

	messages := rec.wait(t)
	require.Len(t, messages, 3)
	assert.Equal(t, 10, messages[0].MessageID)
	assert.Equal(t, 11, messages[1].MessageID)
	assert.Equal(t, 12, messages[2].MessageID)
	assert.Equal(t, 1, rec.count())
}

func TestAggregatorDeduplicates(t *testing.T) {
	a := NewAggregator(testQuiet, DefaultMaxGroupSize)
	rec := newFinalizeRecorder()

	assert.Equal(t, 1, a.Add(groupMessage("g2", 1), rec.finalize))
	assert.Equal(t, 1, a.Add(groupMessage("g2", 1), rec.finalize))
	assert.Equal(t, 2, a.Add(groupMessage("g2", 2), rec.finalize))

	messages := rec.wait(t)
	assert.Len(t, messages, 2)
}

func TestAggregatorQuietPeriodResets(t *testing.T) {
	a := NewAggregator(100*time.Millisecond, DefaultMaxGroupSize)
	rec := newFinalizeRecorder()

	a.Add(groupMessage("g3", 1), rec.finalize)
	// Keep adding inside the quiet period; the group must not finalize
	// until the parts stop.
	for i := 2; i <= 4; i++ {
		time.Sleep(50 * time.Millisecond)
		a.Add(groupMessage("g3", i), rec.finalize)
		assert.Equal(t, 0, rec.count(), "group finalized while parts were still arriving")
	}

	messages := rec.wait(t)
	assert.Len(t, messages, 4)
}

func TestAggregatorMaxSize(t *testing.T) {
	a := NewAggregator(testQuiet, 3)
	rec := newFinalizeRecorder()

	for i := 1; i <= 5; i++ {
		a.Add(groupMessage("g4", i), rec.finalize)
	}

	messages := rec.wait(t)
	assert.Len(t, messages, 3)
}

func TestAggregatorSeparateGroups(t *testing.T) {
	a := NewAggregator(testQuiet, DefaultMaxGroupSize)
	rec := newFinalizeRecorder()

	a.Add(groupMessage("g5", 1), rec.finalize)
	a.Add(groupMessage("g6", 2), rec.finalize)

	rec.wait(t)
	rec.wait(t)
	assert.Equal(t, 2, rec.count())
}

func TestAggregatorFlushIsIdempotent(t *testing.T) {
	a := NewAggregator(time.Minute, DefaultMaxGroupSize)
	rec := newFinalizeRecorder()

	a.Add(groupMessage("g7", 1), rec.finalize)
	a.Add(groupMessage("g7", 2), rec.finalize)

	a.Flush("g7", rec.finalize)
	a.Flush("g7", rec.finalize)

	messages := rec.wait(t)
	assert.Len(t, messages, 2)
	assert.Equal(t, 1, rec.count())
}

func TestAggregatorNewGroupAfterFinalize(t *testing.T) {
	a := NewAggregator(time.Minute, DefaultMaxGroupSize)
	rec := newFinalizeRecorder()

	a.Add(groupMessage("g8", 1), rec.finalize)
	a.Flush("g8", rec.finalize)
	rec.wait(t)

	// Same group id again starts a fresh buffer.
	assert.Equal(t, 1, a.Add(groupMessage("g8", 2), rec.finalize))
	a.Flush("g8", rec.finalize)
	messages := rec.wait(t)
	require.Len(t, messages, 1)
	assert.Equal(t, 2, messages[0].MessageID)
}

func TestAggregatorIgnoresNonGroupMessages(t *testing.T) {
	a := NewAggregator(testQuiet, DefaultMaxGroupSize)
	rec := newFinalizeRecorder()

	assert.Equal(t, 0, a.Add(telego.Message{MessageID: 1}, rec.finalize))
	time.Sleep(2 * testQuiet)
	assert.Equal(t, 0, rec.count())
}
