package cache

import (
	"fmt"
	"time"
)

const (
	SummaryTTL      = 7 * 24 * time.Hour
	RateLimitWindow = time.Minute
)

// SummaryKey generates Redis key for a generated summary.
// digest already covers the document text and every summarization parameter.
func SummaryKey(digest string) string {
	return fmt.Sprintf("docproc:summary:v1:%s", digest)
}

// RateLimitKey generates Redis key for rate limiting
func RateLimitKey(clientIP string) string {
	return fmt.Sprintf("docproc:ratelimit:ip:%s", clientIP)
}
