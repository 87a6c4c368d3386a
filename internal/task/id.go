package task

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var idMu struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewID returns a globally unique identifier that sorts lexicographically
// by creation time. IDs generated within the same millisecond stay ordered
// thanks to the monotonic entropy source.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()
	if idMu.entropy == nil {
		idMu.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	return ulid.MustNew(ulid.Timestamp(time.Now()), idMu.entropy).String()
}
