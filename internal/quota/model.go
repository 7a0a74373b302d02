package quota

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Mode selects how the counter is checked and incremented.
type Mode string

const (
	// ModeOptimistic reads the counter and writes count+1 in two steps.
	// Concurrent calls for one identity may overshoot the limit.
	ModeOptimistic Mode = "optimistic"
	// ModeAtomic increments with a ceiling in a single store operation.
	ModeAtomic Mode = "atomic"
)

// DefaultWeeklyLimit is the number of accepted generations per identity per week.
const DefaultWeeklyLimit = 50

// DefaultRetention keeps counters around for two periods.
const DefaultRetention = 2 * PeriodLength

// ErrExceeded matches any *ExceededError.
var ErrExceeded = errors.New("weekly quota exceeded")

// Usage is the counter state for one identity in one period.
type Usage struct {
	Identity string    `json:"-"`
	Period   string    `json:"weekKey"`
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resetsAt"`
}

// Remaining is the number of calls left in the period.
func (u Usage) Remaining() int {
	return max(u.Limit-u.Used, 0)
}

// ExceededError is returned when the identity has no calls left.
type ExceededError struct {
	Usage Usage
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("weekly limit reached: %d/%d generations used in %s", e.Usage.Used, e.Usage.Limit, e.Usage.Period)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrExceeded
}

// NormalizeIdentity lowercases and trims an identity for use as a key.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Key returns the counter key for an identity in a period.
func Key(period, identity string) string {
	return keyPrefix + period + ":" + NormalizeIdentity(identity)
}

// Digest is a stable hex blake2b-256 of the normalized identity, used where
// the raw email must not be stored.
func Digest(identity string) string {
	sum := blake2b.Sum256([]byte(NormalizeIdentity(identity)))
	return hex.EncodeToString(sum[:])
}
