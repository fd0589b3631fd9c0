package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a ULID used as the MESSAGE_ID of outbound messages.
// Ids from one process sort in creation order.
func NewMessageID() string {
	return newAt(time.Now())
}

func newAt(ts time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), entropy).String()
}
