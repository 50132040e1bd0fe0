package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeContent trims and collapses whitespace runs to a single space. Case is kept.
func NormalizeContent(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fingerprint is the duplicate-detection key for a post's text.
func Fingerprint(content, hashtags string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeContent(content)))
	h.Write([]byte{0x00})
	h.Write([]byte(NormalizeContent(hashtags)))
	return hex.EncodeToString(h.Sum(nil))
}

// SplitHashtags splits trailing #tags off a post's full text.
func SplitHashtags(text string) (content, hashtags string) {
	fields := strings.Fields(text)
	i := len(fields)
	for i > 0 && len(fields[i-1]) > 1 && strings.HasPrefix(fields[i-1], "#") {
		i--
	}
	if i == 0 {
		return strings.Join(fields, " "), ""
	}
	return strings.Join(fields[:i], " "), strings.Join(fields[i:], " ")
}

// PostFingerprint fingerprints the text a post publishes as. Scheduled posts
// and immediate publishes of the same words get the same key.
func PostFingerprint(content, hashtags string) string {
	return Fingerprint(SplitHashtags(content + " " + hashtags))
}
