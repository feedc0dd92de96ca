package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/fss"
	"github.com/exchangesets/fsstransfer/internal/limiter"
	"github.com/exchangesets/fsstransfer/internal/options"
	"github.com/spf13/pflag"
)

var version = "0.3.0-dev (compiled manually)"

// TimeFormat is the format used for all timestamps printed by fsstransfer.
const TimeFormat = "2006-01-02 15:04:05"

// GlobalOptions hold all global options for fsstransfer.
type GlobalOptions struct {
	URL       string
	Token     string
	Workspace string
	Quiet     bool
	Verbose   int

	fss.TransportOptions
	limiter.Limits

	stdout io.Writer
	stderr io.Writer

	// verbosity is set as follows:
	//  0 means: don't print any messages except errors, this is used when --quiet is specified
	//  1 is the default: print essential messages
	//  2 means: print more messages, report minor things, this is used when --verbose is specified
	verbosity uint

	Options []string

	extended options.Options
}

func (opts *GlobalOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.URL, "url", "u", "", "base `url` of the File Share Service (default: $FSS_URL)")
	f.StringVar(&opts.Token, "token", "", "static bearer `token` (default: $FSS_TOKEN)")
	f.StringVarP(&opts.Workspace, "workspace", "w", "", "local `directory` for retrieved files (default: $FSS_WORKSPACE)")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "do not output comprehensive progress report")
	f.CountVarP(&opts.Verbose, "verbose", "v", "be verbose (specify multiple times or a level using --verbose=n``)")
	f.StringSliceVar(&opts.RootCertFilenames, "cacert", nil, "`file` to load root certificates from (default: use system certificates or $FSS_CACERT)")
	f.BoolVar(&opts.InsecureTLS, "insecure-tls", false, "skip TLS certificate verification when connecting to the service (insecure)")
	f.IntVar(&opts.Limits.UploadKb, "limit-upload", 0, "limits uploads to a maximum `rate` in KiB/s. (default: unlimited)")
	f.IntVar(&opts.Limits.DownloadKb, "limit-download", 0, "limits downloads to a maximum `rate` in KiB/s. (default: unlimited)")
	f.StringSliceVarP(&opts.Options, "option", "o", []string{}, "set extended option (`key=value`, can be specified multiple times)")

	opts.URL = os.Getenv("FSS_URL")
	opts.Token = os.Getenv("FSS_TOKEN")
	opts.Workspace = os.Getenv("FSS_WORKSPACE")
	if os.Getenv("FSS_CACERT") != "" {
		opts.RootCertFilenames = strings.Split(os.Getenv("FSS_CACERT"), ",")
	}
}

func (opts *GlobalOptions) PreRun() error {
	// set verbosity, default is one
	opts.verbosity = 1
	if opts.Quiet && opts.Verbose > 0 {
		return errors.Fatal("--quiet and --verbose cannot be specified at the same time")
	}

	switch {
	case opts.Verbose > 0:
		opts.verbosity = 2
	case opts.Quiet:
		opts.verbosity = 0
	}

	// parse extended options
	extendedOpts, err := options.Parse(opts.Options)
	if err != nil {
		return err
	}
	opts.extended = extendedOpts
	return nil
}

var globalOptions = GlobalOptions{
	stdout: os.Stdout,
	stderr: os.Stderr,
}

// Printf writes the message to the configured stdout stream.
func Printf(format string, args ...interface{}) {
	_, err := fmt.Fprintf(globalOptions.stdout, format, args...)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unable to write to stdout: %v\n", err)
	}
}

// Verbosef calls Printf to write the message when the verbose flag is set.
func Verbosef(format string, args ...interface{}) {
	if globalOptions.verbosity >= 2 {
		Printf(format, args...)
	}
}

// Warnf writes the message to the configured stderr stream.
func Warnf(format string, args ...interface{}) {
	_, err := fmt.Fprintf(globalOptions.stderr, format, args...)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unable to write to stderr: %v\n", err)
	}
	debug.Log(format, args...)
}

// transport returns the round tripper for all outgoing requests, with the
// bandwidth limits and the connection limit of cfg applied.
func transport(gopts GlobalOptions, connections uint) (http.RoundTripper, error) {
	topts := gopts.TransportOptions
	topts.MaxConnsPerHost = int(connections)

	rt, err := fss.Transport(topts)
	if err != nil {
		return nil, errors.Fatal(err.Error())
	}

	if gopts.Limits.UploadKb > 0 || gopts.Limits.DownloadKb > 0 {
		rt = limiter.NewStaticLimiter(gopts.Limits).Transport(rt)
	}
	return rt, nil
}

// OpenClient returns a client for the service configured in gopts.
func OpenClient(ctx context.Context, gopts GlobalOptions) (*fss.Client, error) {
	cfg, err := fss.ParseConfig(gopts.URL)
	if err != nil {
		return nil, err
	}
	if err := gopts.extended.Extract("fss").Apply("fss", &cfg); err != nil {
		return nil, err
	}

	auth := fss.AuthConfig{}
	if err := gopts.extended.Extract("auth").Apply("auth", &auth); err != nil {
		return nil, err
	}
	if gopts.Token != "" && auth.Token.Unwrap() == "" {
		auth.Token = options.NewSecretString(gopts.Token)
	}

	rt, err := transport(gopts, cfg.Connections)
	if err != nil {
		return nil, err
	}

	debug.Log("connecting to %v", cfg.URL)
	return fss.New(cfg, rt, auth.TokenSource(ctx, rt))
}

// parseKeyValues parses a list of key=value strings into attributes,
// keeping the order of the list.
func parseKeyValues(list []string) (fss.Attributes, error) {
	var attrs fss.Attributes
	for _, s := range list {
		k, v, ok := strings.Cut(s, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.Fatalf("invalid attribute %q, expected key=value", s)
		}
		attrs = append(attrs, fss.Attribute{Key: k, Value: strings.TrimSpace(v)})
	}
	return attrs, nil
}
