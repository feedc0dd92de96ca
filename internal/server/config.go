package server

import (
	"time"

	"github.com/exchangesets/fsstransfer/internal/options"
)

// Config holds the settings of the mock File Share Service.
type Config struct {
	DigestCacheSize int           `option:"digest-cache" help:"number of committed file digests kept for Content-MD5 (default: 1024)"`
	SweepInterval   time.Duration `option:"sweep-interval" help:"sweep stale block sets at this interval, 0 disables (default: 0)"`
	MaxBlockSize    int           `option:"max-block-size" help:"reject blocks larger than this (default: 4194304)"`
}

func init() {
	options.Register("server", Config{})
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		DigestCacheSize: 1024,
		MaxBlockSize:    4 * 1024 * 1024,
	}
}
