package retriever

import (
	"github.com/exchangesets/fsstransfer/internal/options"
)

// DefaultConcurrency is used if the concurrency option is absent or not a
// positive number.
const DefaultConcurrency = 4

// Config documents the options of the retriever. The concurrency limit is
// read with ConcurrencyFromOptions so that a bad value falls back to the
// default instead of failing.
type Config struct {
	Concurrency int `option:"concurrency" help:"number of concurrent downloads (default: 4)"`
}

func init() {
	options.Register("retriever", Config{})
}

// ConcurrencyFromOptions returns the value of retriever.concurrency in opts.
// defaulted is true if the value is absent, not a number or not positive.
func ConcurrencyFromOptions(opts options.Options) (n int, defaulted bool) {
	n, defaulted = opts.Extract("retriever").Int("concurrency", DefaultConcurrency)
	if n <= 0 {
		return DefaultConcurrency, true
	}
	return n, defaulted
}
