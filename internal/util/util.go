package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewWebhookLogID returns a sortable id for webhook_logs rows.
func NewWebhookLogID() string {
	t := time.Now().UTC()
	return "wl_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// NewReplyJobID returns a sortable id for outbound reply jobs.
func NewReplyJobID() string {
	t := time.Now().UTC()
	return "rj_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
