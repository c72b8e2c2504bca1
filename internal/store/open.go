package store

import (
	"fmt"

	"github.com/xizzxy/quotagate/internal/config"
)

const (
	// ModeStrong shares counters across instances through Redis.
	ModeStrong = "strong"
	// ModeFast keeps counters in process.
	ModeFast = "fast"
)

// Open returns the counter store for the consistency mode.
func Open(mode string, redisCfg config.RedisConfig) (CounterStore, error) {
	switch mode {
	case ModeStrong:
		return NewRedisStore(NewRedisClient(redisCfg)), nil
	case ModeFast:
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown consistency mode %q", mode)
	}
}
