package models

import (
	"fmt"
	"time"
)

// SubmissionStatus defines the lifecycle state of a submission.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusRejected SubmissionStatus = "rejected"
)

// ContentKind identifies the media type of a submission. Values match
// Telegram content type names.
type ContentKind string

const (
	KindPhoto     ContentKind = "photo"
	KindVideo     ContentKind = "video"
	KindAnimation ContentKind = "animation"
	KindDocument  ContentKind = "document"
	KindAudio     ContentKind = "audio"
	KindVoice     ContentKind = "voice"
	KindVideoNote ContentKind = "video_note"
)

// Submission represents one user-originated post (single item or a whole
// media group) waiting for or having received a moderation decision.
type Submission struct {
	ID          int64       `bson:"_id"`
	SubmitterID int64       `bson:"submitter_id"`
	Username    string      `bson:"username,omitempty"`
	FirstName   string      `bson:"first_name,omitempty"`
	FileIDs     []string    `bson:"file_ids"`
	Kind        ContentKind `bson:"kind"`
	Caption     string      `bson:"caption,omitempty"`
	// MediaGroupID is set only for submissions assembled from a media group.
	MediaGroupID string `bson:"media_group_id,omitempty"`
	// ChatID and MessageID reference the originating message so the decision
	// notice can be threaded as a reply.
	ChatID    int64 `bson:"chat_id"`
	MessageID int   `bson:"message_id"`

	Status      SubmissionStatus `bson:"status"`
	SubmittedAt time.Time        `bson:"submitted_at"`

	ReviewedBy       int64     `bson:"reviewed_by,omitempty"`
	ReviewerUsername string    `bson:"reviewer_username,omitempty"`
	ReviewedAt       time.Time `bson:"reviewed_at,omitempty"`
}

// SubmitterName returns a best-effort human-readable label for the submitter.
func (s *Submission) SubmitterName() string {
	if s.Username != "" {
		return s.Username
	}
	if s.FirstName != "" {
		return s.FirstName
	}
	return fmt.Sprintf("User_%d", s.SubmitterID)
}
