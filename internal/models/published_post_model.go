package models

import (
	"database/sql"
	"time"
)

type PublishedPost struct {
	ID               int64          `db:"id" json:"id"`
	UserID           int64          `db:"user_id" json:"user_id"`
	Content          string         `db:"content" json:"content"`
	Hashtags         string         `db:"hashtags" json:"hashtags,omitempty"`
	MediaURL         string         `db:"media_url" json:"media_url,omitempty"`
	ContentHash      string         `db:"content_hash" json:"content_hash"`
	ScheduledPostID  sql.NullInt64  `db:"scheduled_post_id" json:"-"`
	TweetID          sql.NullString `db:"tweet_id" json:"-"`
	TweetURL         sql.NullString `db:"tweet_url" json:"-"`
	PublishedAt      time.Time      `db:"published_at" json:"published_at"`
	LikeCount        int64          `db:"like_count" json:"like_count"`
	RetweetCount     int64          `db:"retweet_count" json:"retweet_count"`
	ReplyCount       int64          `db:"reply_count" json:"reply_count"`
	ImpressionCount  int64          `db:"impression_count" json:"impression_count"`
	MetricsUpdatedAt sql.NullTime   `db:"metrics_updated_at" json:"-"`
}

// HasExternalRef reports whether the platform id and url were both recorded.
func (p *PublishedPost) HasExternalRef() bool {
	return p.TweetID.Valid && p.TweetID.String != "" && p.TweetURL.Valid && p.TweetURL.String != ""
}
