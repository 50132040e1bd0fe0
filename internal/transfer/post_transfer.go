package transfer

import (
	"time"

	"github.com/maheshrc27/tweetflow/internal/models"
)

type PostCreation struct {
	Content      string `json:"content"`
	Hashtags     string `json:"hashtags"`
	MediaURL     string `json:"media_url"`
	ScheduledFor string `json:"scheduled_for"`
	MaxRetries   int    `json:"max_retries"`
}

type PostUpdate struct {
	Content      *string `json:"content"`
	Hashtags     *string `json:"hashtags"`
	MediaURL     *string `json:"media_url"`
	ScheduledFor *string `json:"scheduled_for"`
}

type PostView struct {
	ID           int64     `json:"id"`
	Content      string    `json:"content"`
	Hashtags     string    `json:"hashtags,omitempty"`
	MediaURL     string    `json:"media_url,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
}

type PublishedView struct {
	ID              int64     `json:"id"`
	Content         string    `json:"content"`
	Hashtags        string    `json:"hashtags,omitempty"`
	MediaURL        string    `json:"media_url,omitempty"`
	TweetID         string    `json:"tweet_id,omitempty"`
	TweetURL        string    `json:"tweet_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	LikeCount       int64     `json:"like_count"`
	RetweetCount    int64     `json:"retweet_count"`
	ReplyCount      int64     `json:"reply_count"`
	ImpressionCount int64     `json:"impression_count"`
}

func NewPostView(p *models.ScheduledPost) PostView {
	return PostView{
		ID:           p.ID,
		Content:      p.Content,
		Hashtags:     p.Hashtags,
		MediaURL:     p.MediaURL,
		ScheduledFor: p.ScheduledFor,
		Status:       p.Status,
		ErrorMessage: p.ErrorMessage.String,
		RetryCount:   p.RetryCount,
		MaxRetries:   p.MaxRetries,
	}
}

func NewPublishedView(p *models.PublishedPost) PublishedView {
	return PublishedView{
		ID:              p.ID,
		Content:         p.Content,
		Hashtags:        p.Hashtags,
		MediaURL:        p.MediaURL,
		TweetID:         p.TweetID.String,
		TweetURL:        p.TweetURL.String,
		PublishedAt:     p.PublishedAt,
		LikeCount:       p.LikeCount,
		RetweetCount:    p.RetweetCount,
		ReplyCount:      p.ReplyCount,
		ImpressionCount: p.ImpressionCount,
	}
}
