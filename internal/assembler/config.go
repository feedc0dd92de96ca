package assembler

import (
	"time"

	"github.com/exchangesets/fsstransfer/internal/options"
)

// Config holds the settings of the Assembler.
type Config struct {
	BlockTTL time.Duration `option:"block-ttl" help:"remove uncommitted blocks after this duration (default: 24h)"`
}

func init() {
	options.Register("assembler", Config{})
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		BlockTTL: 24 * time.Hour,
	}
}
