package models

import "time"

// UserQuotaRecord tracks a user's submission quota inside a rolling 24h
// window anchored at WindowStart, plus lifetime counters.
type UserQuotaRecord struct {
	UserID           int64     `bson:"_id"`
	SubmissionsToday int       `bson:"submissions_today"`
	WindowStart      time.Time `bson:"window_start"`
	LastSubmissionAt time.Time `bson:"last_submission_at"`
	TotalSubmissions int       `bson:"total_submissions"`
	ApprovedCount    int       `bson:"approved_count"`
	RejectedCount    int       `bson:"rejected_count"`
}
