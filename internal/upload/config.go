package upload

import (
	"github.com/exchangesets/fsstransfer/internal/chunker"
	"github.com/exchangesets/fsstransfer/internal/options"
)

// Config holds the settings of the Uploader.
type Config struct {
	BlockSize   int  `option:"block-size" help:"size of uploaded blocks in bytes (default: 4194304)"`
	RejectEmpty bool `option:"reject-empty" help:"fail empty files before contacting the service (default: false)"`
}

func init() {
	options.Register("upload", Config{})
}

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		BlockSize: chunker.DefaultBlockSize,
	}
}
