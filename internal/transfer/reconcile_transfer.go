package transfer

type ReconcileResult struct {
	Success    bool   `json:"success"`
	Processed  int    `json:"processed"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Timestamp  string `json:"timestamp"`
	Summary    string `json:"summary"`
	Error      string `json:"error,omitempty"`
}

type ReconcileTrigger struct {
	Manual bool `json:"manual"`
}

type PublishRequest struct {
	PostID   string `json:"postId"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type PublishResponse struct {
	Success    bool   `json:"success"`
	TweetID    string `json:"tweetId,omitempty"`
	TweetURL   string `json:"tweetUrl,omitempty"`
	MediaCount int    `json:"mediaCount,omitempty"`
	Error      string `json:"error,omitempty"`
}

type DedupResult struct {
	Groups  int `json:"groups"`
	Deleted int `json:"deleted"`
}
