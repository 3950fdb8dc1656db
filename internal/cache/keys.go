package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("threatlens:job:%s:status", jobID)
}

// RateLimitKey buckets requests per client and per window start (unix minute).
func RateLimitKey(client string, window int64) string {
	return fmt.Sprintf("threatlens:ratelimit:%s:%d", client, window)
}
