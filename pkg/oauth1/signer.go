// Package oauth1 signs outbound platform requests with OAuth 1.0a HMAC-SHA1.
package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	SignatureMethod = "HMAC-SHA1"
	Version         = "1.0"

	nonceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	nonceLength   = 32
)

var ErrMissingCredentials = errors.New("oauth1: missing credentials")

// Credentials is the consumer and access token pair for a single account.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

func (c Credentials) Validate() error {
	var missing []string
	if c.ConsumerKey == "" {
		missing = append(missing, "consumer key")
	}
	if c.ConsumerSecret == "" {
		missing = append(missing, "consumer secret")
	}
	if c.AccessToken == "" {
		missing = append(missing, "access token")
	}
	if c.AccessTokenSecret == "" {
		missing = append(missing, "access token secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// Signer builds Authorization header values. It is safe for concurrent use.
type Signer struct {
	creds Credentials
	nonce func() (string, error)
	now   func() time.Time
}

type Option func(*Signer)

// WithNonce replaces the random nonce source.
func WithNonce(fn func() (string, error)) Option {
	return func(s *Signer) { s.nonce = fn }
}

// WithClock replaces the timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(s *Signer) { s.now = fn }
}

func NewSigner(creds Credentials, opts ...Option) (*Signer, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	s := &Signer{
		creds: creds,
		nonce: func() (string, error) { return gonanoid.Generate(nonceAlphabet, nonceLength) },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign returns the Authorization header value for a request. Query parameters
// present in rawURL are folded into the signed parameter set; params carries
// any form-encoded body parameters (JSON and multipart bodies are not signed).
func (s *Signer) Sign(method, rawURL string, params map[string]string) (string, error) {
	nonce, err := s.nonce()
	if err != nil {
		return "", fmt.Errorf("oauth1: generating nonce: %w", err)
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     s.creds.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": SignatureMethod,
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_token":            s.creds.AccessToken,
		"oauth_version":          Version,
	}

	baseURL, query, err := splitURL(rawURL)
	if err != nil {
		return "", err
	}

	all := make(map[string]string, len(oauthParams)+len(params)+len(query))
	for k, v := range query {
		all[k] = v
	}
	for k, v := range params {
		all[k] = v
	}
	for k, v := range oauthParams {
		all[k] = v
	}

	base := BaseString(method, baseURL, all)
	oauthParams["oauth_signature"] = signature(base, s.creds.ConsumerSecret, s.creds.AccessTokenSecret)

	return header(oauthParams), nil
}

// BaseString is METHOD&enc(url)&enc(enc(k)=enc(v) pairs sorted by encoded key, joined by "&").
func BaseString(method, baseURL string, params map[string]string) string {
	encoded := make(map[string]string, len(params))
	keys := make([]string, 0, len(params))
	for k, v := range params {
		ek := PercentEncode(k)
		encoded[ek] = PercentEncode(v)
		keys = append(keys, ek)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+encoded[k])
	}

	return strings.ToUpper(method) + "&" + PercentEncode(baseURL) + "&" + PercentEncode(strings.Join(pairs, "&"))
}

func signature(base, consumerSecret, tokenSecret string) string {
	key := PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func header(oauthParams map[string]string) string {
	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, PercentEncode(k), PercentEncode(oauthParams[k])))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

func splitURL(rawURL string) (string, map[string]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("oauth1: parsing url: %w", err)
	}

	query := make(map[string]string)
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	u.RawQuery = ""
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String(), query, nil
}

// PercentEncode escapes per RFC 3986: only ALPHA, DIGIT and "-._~" stay literal.
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
