package models

import "time"

// Admin is a reviewer identity authorized to approve or reject submissions.
// The main admin from configuration is not stored here.
type Admin struct {
	UserID   int64     `bson:"_id"`
	Username string    `bson:"username,omitempty"`
	AddedBy  int64     `bson:"added_by,omitempty"`
	AddedAt  time.Time `bson:"added_at"`
}
