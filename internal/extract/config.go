package extract

import "github.com/exchangesets/fsstransfer/internal/options"

// Config holds the limits applied to every archive.
type Config struct {
	MaxEntries   int   `option:"max-entries" help:"fail archives with more entries (default: 100000)"`
	MaxTotalSize int64 `option:"max-total-size" help:"fail archives expanding to more bytes (default: 10 GiB)"`
}

func init() {
	options.Register("extract", Config{})
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		MaxEntries:   100000,
		MaxTotalSize: 10 << 30,
	}
}
