package config

import (
	"errors"
	"log"
	"time"

	"github.com/maheshrc27/tweetflow/pkg/oauth1"
	"github.com/spf13/viper"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Twitter struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
	APIBaseURL        string
	UploadBaseURL     string
	PostURLBase       string
	RatePerMinute     int
}

type Scheduler struct {
	ReconcileInterval    string
	MetricsInterval      string
	DuplicateWindowHours int
	DefaultMaxRetries    int
	PublishConcurrency   int
	StalePublishingAfter time.Duration
	MetricsLookback      time.Duration
}

type Config struct {
	PostgresURI string
	RedisURI    string
	FrontendURL string
	ListenAddr  string
	HTTPTimeout time.Duration
	R2          R2
	Twitter     Twitter
	Scheduler   Scheduler
	SecretKey   string
	CookieName  string
}

func LoadConfig() *Config {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("Warning: failed to read config.yaml: %v", err)
		}
	}

	// Environment wins over config.yaml.
	v.AutomaticEnv()

	return &Config{
		PostgresURI: v.GetString("POSTGRES_URI"),
		RedisURI:    v.GetString("REDIS_URI"),
		FrontendURL: v.GetString("FRONTEND_URL"),
		ListenAddr:  v.GetString("LISTEN_ADDR"),
		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),
		R2: R2{
			AccountID:  v.GetString("R2_ACCOUNT_ID"),
			AccessKey:  v.GetString("R2_ACCESS_KEY"),
			SecretKey:  v.GetString("R2_SECRET_KEY"),
			BucketName: v.GetString("R2_BUCKET_NAME"),
			PublicURL:  v.GetString("R2_PUBLIC_URL"),
		},
		Twitter: Twitter{
			ConsumerKey:       v.GetString("TWITTER_API_KEY"),
			ConsumerSecret:    v.GetString("TWITTER_API_SECRET"),
			AccessToken:       v.GetString("TWITTER_ACCESS_TOKEN"),
			AccessTokenSecret: v.GetString("TWITTER_ACCESS_TOKEN_SECRET"),
			APIBaseURL:        v.GetString("TWITTER_API_BASE_URL"),
			UploadBaseURL:     v.GetString("TWITTER_UPLOAD_BASE_URL"),
			PostURLBase:       v.GetString("TWITTER_POST_URL_BASE"),
			RatePerMinute:     v.GetInt("PUBLISH_RATE_PER_MINUTE"),
		},
		Scheduler: Scheduler{
			ReconcileInterval:    v.GetString("RECONCILE_INTERVAL"),
			MetricsInterval:      v.GetString("METRICS_INTERVAL"),
			DuplicateWindowHours: v.GetInt("DUPLICATE_WINDOW_HOURS"),
			DefaultMaxRetries:    v.GetInt("DEFAULT_MAX_RETRIES"),
			PublishConcurrency:   v.GetInt("PUBLISH_CONCURRENCY"),
			StalePublishingAfter: v.GetDuration("STALE_PUBLISHING_AFTER"),
			MetricsLookback:      v.GetDuration("METRICS_LOOKBACK"),
		},
		SecretKey:  v.GetString("SECRET_KEY"),
		CookieName: v.GetString("COOKIE_NAME"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("LISTEN_ADDR", ":3000")
	v.SetDefault("HTTP_TIMEOUT", 30*time.Second)
	v.SetDefault("TWITTER_API_BASE_URL", "https://api.twitter.com")
	v.SetDefault("TWITTER_UPLOAD_BASE_URL", "https://upload.twitter.com")
	v.SetDefault("TWITTER_POST_URL_BASE", "https://twitter.com/i/web/status")
	v.SetDefault("PUBLISH_RATE_PER_MINUTE", 50)
	v.SetDefault("RECONCILE_INTERVAL", "@every 00h01m00s")
	v.SetDefault("METRICS_INTERVAL", "@every 01h00m00s")
	v.SetDefault("DUPLICATE_WINDOW_HOURS", 24)
	v.SetDefault("DEFAULT_MAX_RETRIES", 3)
	v.SetDefault("PUBLISH_CONCURRENCY", 1)
	v.SetDefault("STALE_PUBLISHING_AFTER", 15*time.Minute)
	v.SetDefault("METRICS_LOOKBACK", 7*24*time.Hour)
	v.SetDefault("COOKIE_NAME", "tweetflow_session")
}

// OAuthCredentials returns the immutable credential set used by the signer.
func (c *Config) OAuthCredentials() oauth1.Credentials {
	return oauth1.Credentials{
		ConsumerKey:       c.Twitter.ConsumerKey,
		ConsumerSecret:    c.Twitter.ConsumerSecret,
		AccessToken:       c.Twitter.AccessToken,
		AccessTokenSecret: c.Twitter.AccessTokenSecret,
	}
}

// ReconcileEvery parses the "@every" cron spec into a duration, used as the tick lease TTL.
func (c *Config) ReconcileEvery() time.Duration {
	const prefix = "@every "
	spec := c.Scheduler.ReconcileInterval
	if len(spec) > len(prefix) && spec[:len(prefix)] == prefix {
		if d, err := time.ParseDuration(spec[len(prefix):]); err == nil {
			return d
		}
	}
	return time.Minute
}
