package mediagroups

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mymmrac/telego"
)

const (
	// DefaultQuietPeriod is the inactivity duration after which an
	// in-progress media group is considered complete. There is no explicit
	// end-of-group signal from Telegram, so completion is inferred by
	// silence. A burst with an internal gap longer than the quiet period
	// splits into two groups; that is an accepted limitation.
	DefaultQuietPeriod = 2 * time.Second
	// DefaultMaxGroupSize limits the number of messages stored per group.
	DefaultMaxGroupSize = 10
)

// FinalizeFunc processes a completed media group: the group id and the
// collected messages in arrival order.
type FinalizeFunc func(ctx context.Context, groupID string, messages []telego.Message) error

type groupState struct {
	mu        sync.Mutex
	messages  []telego.Message
	timer     *time.Timer
	finalized bool
}

// Aggregator collects the parts of Telegram media groups and hands each
// group to its finalize function once the quiet period elapses with no new
// part. The timer is re-armed on every part, so the group completes exactly
// quietPeriod after its last message.
type Aggregator struct {
	groups      sync.Map // map[string]*groupState
	quietPeriod time.Duration
	maxSize     int
}

// NewAggregator creates an aggregator with the given quiet period and group
// size limit. Zero values fall back to the defaults.
func NewAggregator(quietPeriod time.Duration, maxSize int) *Aggregator {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxGroupSize
	}
	return &Aggregator{quietPeriod: quietPeriod, maxSize: maxSize}
}

// Add appends a message to its group's buffer and (re)schedules
// finalization. Duplicate message ids are ignored, so the add is idempotent.
// It returns the number of parts buffered for the group so far.
func (a *Aggregator) Add(message telego.Message, finalize FinalizeFunc) int {
	if message.MediaGroupID == "" {
		return 0
	}
	groupID := message.MediaGroupID

	for {
		val, _ := a.groups.LoadOrStore(groupID, &groupState{
			messages: make([]telego.Message, 0, a.maxSize),
		})
		state := val.(*groupState)

		state.mu.Lock()
		if state.finalized {
			// Lost a race with finalization: this part belongs to a fresh
			// group under the same key.
			state.mu.Unlock()
			a.groups.CompareAndDelete(groupID, val)
			continue
		}

		found := false
		for _, msg := range state.messages {
			if msg.MessageID == message.MessageID {
				found = true
				break
			}
		}

		if !found && len(state.messages) < a.maxSize {
			state.messages = append(state.messages, message)
			sort.Slice(state.messages, func(i, j int) bool {
				return state.messages[i].MessageID < state.messages[j].MessageID
			})
			log.Printf("[MediaGroup %s] Added message %d. Total: %d", groupID, message.MessageID, len(state.messages))
		} else if !found {
			log.Printf("[MediaGroup %s] Group limit (%d) reached, message %d dropped", groupID, a.maxSize, message.MessageID)
		}

		// Re-arm the quiet period timer on every part.
		if state.timer == nil {
			state.timer = time.AfterFunc(a.quietPeriod, func() {
				a.finalizeGroup(groupID, finalize)
			})
		} else {
			state.timer.Reset(a.quietPeriod)
		}

		size := len(state.messages)
		state.mu.Unlock()
		return size
	}
}

// finalizeGroup marks the group finalized, removes it from the active set
// and hands the collected messages to the finalize function. The finalized
// flag makes a race between the timer and an explicit trigger a no-op for
// the loser.
func (a *Aggregator) finalizeGroup(groupID string, finalize FinalizeFunc) {
	val, ok := a.groups.Load(groupID)
	if !ok {
		return
	}
	state := val.(*groupState)

	state.mu.Lock()
	if state.finalized {
		state.mu.Unlock()
		return
	}
	state.finalized = true
	if state.timer != nil {
		state.timer.Stop()
	}
	messages := make([]telego.Message, len(state.messages))
	copy(messages, state.messages)
	state.mu.Unlock()

	a.groups.Delete(groupID)

	if len(messages) == 0 {
		log.Printf("[MediaGroup %s] Finalized empty group, dropping", groupID)
		return
	}

	log.Printf("[MediaGroup %s] Quiet period elapsed. Finalizing %d messages", groupID, len(messages))
	if err := finalize(context.Background(), groupID, messages); err != nil {
		log.Printf("[MediaGroup %s] Error finalizing group: %v", groupID, err)
	}
}

// Flush finalizes a group immediately, regardless of its timer. Used by
// tests and shutdown paths; mutually idempotent with the timer path.
func (a *Aggregator) Flush(groupID string, finalize FinalizeFunc) {
	a.finalizeGroup(groupID, finalize)
}

// Shutdown stops all active group timers. Buffered parts are dropped; an
// unfinished group at shutdown resubmits naturally when the user retries.
func (a *Aggregator) Shutdown() {
	stopped := 0
	a.groups.Range(func(key, value interface{}) bool {
		state := value.(*groupState)
		state.mu.Lock()
		if state.timer != nil && state.timer.Stop() {
			stopped++
		}
		state.finalized = true
		state.mu.Unlock()
		a.groups.Delete(key)
		return true
	})
	log.Printf("[MediaGroups] Shutdown complete. Stopped %d active timer(s)", stopped)
}
