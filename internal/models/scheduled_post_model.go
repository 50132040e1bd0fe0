package models

import (
	"database/sql"
	"time"
)

type ScheduledPost struct {
	ID           int64          `db:"id" json:"id"`
	UserID       int64          `db:"user_id" json:"user_id"`
	Content      string         `db:"content" json:"content"`
	Hashtags     string         `db:"hashtags" json:"hashtags,omitempty"`
	MediaURL     string         `db:"media_url" json:"media_url,omitempty"`
	ScheduledFor time.Time      `db:"scheduled_for" json:"scheduled_for"`
	Status       string         `db:"status" json:"status"` // scheduled, publishing, published, failed
	ErrorMessage sql.NullString `db:"error_message" json:"-"`
	RetryCount   int            `db:"retry_count" json:"retry_count"`
	MaxRetries   int            `db:"max_retries" json:"max_retries"`
	ContentHash  string         `db:"content_hash" json:"content_hash"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// FullText is the text sent to the platform: content plus hashtags when present.
func (p *ScheduledPost) FullText() string {
	if p.Hashtags == "" {
		return p.Content
	}
	return p.Content + " " + p.Hashtags
}

const (
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"

	DefaultMaxRetries = 3

	// StalePublishMessage marks rows whose publish outcome is unknown.
	StalePublishMessage = "Stalled while publishing, check the platform before retrying"
)
