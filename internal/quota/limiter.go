package quota

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
	"toolocal-bot/internal/database"
	"toolocal-bot/internal/database/models"
)

// windowLength is the span of the rolling submission window. The window is
// anchored at the first admitted submission after the previous reset, not at
// a calendar day.
const windowLength = 24 * time.Hour

// LimitError reports a denied submission attempt: either the daily cap or
// the cooldown between submissions.
type LimitError struct {
	Daily      bool
	Limit      int
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.Daily {
		return fmt.Sprintf("daily limit of %d submissions reached, retry in %s", e.Limit, FormatWait(e.RetryAfter))
	}
	return fmt.Sprintf("cooldown active, retry in %s", FormatWait(e.RetryAfter))
}

// FormatWait renders a duration as a short human-readable wait hint.
func FormatWait(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// UserStats is a snapshot of a user's quota standing.
type UserStats struct {
	SubmissionsToday int
	Remaining        int
	TotalSubmissions int
	ApprovedCount    int
	RejectedCount    int
}

// Limiter enforces the per-user daily cap and cooldown. State is persisted
// through a QuotaRepository so limits survive a restart.
//
// Check-then-record spans Mongo round-trips, so CanSubmit and
// RecordSubmission alone are not race-free when two submissions from the
// same user are processed concurrently. Admit holds a per-user mutex across
// the pair; the workflow admits through it.
type Limiter struct {
	repo     database.QuotaRepository
	dailyCap int
	cooldown time.Duration

	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex

	now func() time.Time
}

// NewLimiter creates a limiter with the given daily cap and cooldown.
func NewLimiter(repo database.QuotaRepository, dailyCap int, cooldown time.Duration) *Limiter {
	if repo == nil {
		log.Fatal("Quota Limiter: quota repository is nil")
	}
	return &Limiter{
		repo:      repo,
		dailyCap:  dailyCap,
		cooldown:  cooldown,
		userLocks: make(map[int64]*sync.Mutex),
		now:       time.Now,
	}
}

func (l *Limiter) userLock(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.userLocks[userID] = lock
	}
	return lock
}

// CanSubmit checks whether the user may submit now. It returns nil when
// allowed, a *LimitError when denied, or another error on store failure.
// It has no side effects.
func (l *Limiter) CanSubmit(ctx context.Context, userID int64) error {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return l.canSubmitLocked(ctx, userID)
}

func (l *Limiter) canSubmitLocked(ctx context.Context, userID int64) error {
	record, err := l.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	now := l.now()
	count := record.SubmissionsToday
	if now.Sub(record.WindowStart) > windowLength {
		count = 0
	}
	if count >= l.dailyCap {
		return &LimitError{
			Daily:      true,
			Limit:      l.dailyCap,
			RetryAfter: windowLength - now.Sub(record.WindowStart),
		}
	}
	if !record.LastSubmissionAt.IsZero() {
		if wait := l.cooldown - now.Sub(record.LastSubmissionAt); wait > 0 {
			return &LimitError{Limit: l.dailyCap, RetryAfter: wait}
		}
	}
	return nil
}

// RecordSubmission charges one admitted submission against the user's quota.
// It must be called only after a successful check.
func (l *Limiter) RecordSubmission(ctx context.Context, userID int64) error {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return l.recordSubmissionLocked(ctx, userID)
}

func (l *Limiter) recordSubmissionLocked(ctx context.Context, userID int64) error {
	record, err := l.repo.Get(ctx, userID)
	if err != nil {
		return err
	}

	now := l.now()
	if record == nil {
		record = &models.UserQuotaRecord{UserID: userID, WindowStart: now}
	} else if now.Sub(record.WindowStart) > windowLength {
		record.SubmissionsToday = 0
		record.WindowStart = now
	}

	record.SubmissionsToday++
	record.TotalSubmissions++
	record.LastSubmissionAt = now
	return l.repo.Save(ctx, record)
}

// Admit performs check and charge as one atomic step under the user's lock,
// so two concurrent submissions from one user can never both pass the check.
func (l *Limiter) Admit(ctx context.Context, userID int64) error {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.canSubmitLocked(ctx, userID); err != nil {
		return err
	}
	return l.recordSubmissionLocked(ctx, userID)
}

// RecordOutcome updates the approved/rejected counters after a moderation
// decision. A missing record is logged and skipped, never invented.
func (l *Limiter) RecordOutcome(ctx context.Context, userID int64, approved bool) error {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	record, err := l.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if record == nil {
		log.Printf("[Quota User:%d] No quota record for outcome, skipping", userID)
		return nil
	}

	if approved {
		record.ApprovedCount++
	} else {
		record.RejectedCount++
	}
	return l.repo.Save(ctx, record)
}

// Stats returns a snapshot of the user's quota standing for the /status
// command. Users without a record get a zero snapshot with full remaining.
func (l *Limiter) Stats(ctx context.Context, userID int64) (*UserStats, error) {
	record, err := l.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &UserStats{Remaining: l.dailyCap}, nil
	}

	count := record.SubmissionsToday
	if l.now().Sub(record.WindowStart) > windowLength {
		count = 0
	}
	remaining := l.dailyCap - count
	if remaining < 0 {
		remaining = 0
	}
	return &UserStats{
		SubmissionsToday: count,
		Remaining:        remaining,
		TotalSubmissions: record.TotalSubmissions,
		ApprovedCount:    record.ApprovedCount,
		RejectedCount:    record.RejectedCount,
	}, nil
}
