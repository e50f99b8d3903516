package ids

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PlatformEpoch is the first millisecond of 2015, the epoch of platform
// snowflakes.
const PlatformEpoch int64 = 1420070400000

// TokenGenerator produces ephemeral tokens.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Tokens generates time-sortable ephemeral tokens: a UUIDv7 rendered as
// 32 lowercase hex characters without hyphens, which keeps t_ identifiers
// well inside MaxLength.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Tokens struct{}

// Generate returns a new token. Panics if the system random source fails.
func (UUIDv7Tokens) Generate() string {
	return strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}

const maxSequence = 1<<12 - 1

// Snowflakes generates time-ordered 64-bit component ids in the platform's
// snowflake layout:
//
//	| 42 bits ms since PlatformEpoch | 5 bits worker | 5 bits process | 12 bits increment |
//
// Ids from one generator are strictly increasing. When more than 4096 ids are
// requested within one millisecond the timestamp is advanced logically rather
// than sleeping; a clock that steps backwards is treated the same way. The
// worker and process bits never change.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Snowflakes struct {
	mu      sync.Mutex
	worker  uint64
	process uint64
	lastMs  uint64
	seq     uint64
	now     func() time.Time
}

// NewSnowflakes creates a generator. worker and process are masked to 5 bits.
func NewSnowflakes(worker, process uint8) *Snowflakes {
	return &Snowflakes{
		worker:  uint64(worker & 0x1f),
		process: uint64(process & 0x1f),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (g *Snowflakes) WithClock(now func() time.Time) *Snowflakes {
	g.now = now
	return g
}

// Next returns the next component id.
func (g *Snowflakes) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := uint64(g.now().UnixMilli() - PlatformEpoch)
	switch {
	case ms > g.lastMs:
		g.seq = 0
	case g.seq < maxSequence:
		ms = g.lastMs
		g.seq++
	default:
		ms = g.lastMs + 1
		g.seq = 0
	}
	g.lastMs = ms
	return ms<<22 | g.worker<<17 | g.process<<12 | g.seq
}

// SnowflakeTime extracts the creation time embedded in a snowflake.
func SnowflakeTime(id uint64) time.Time {
	return time.UnixMilli(int64(id>>22) + PlatformEpoch).UTC()
}
