package main

import (
	"context"
	"strings"

	"github.com/exchangesets/fsstransfer/internal/assembler"
	"github.com/exchangesets/fsstransfer/internal/assembler/azure"
	"github.com/exchangesets/fsstransfer/internal/assembler/gs"
	"github.com/exchangesets/fsstransfer/internal/assembler/local"
	"github.com/exchangesets/fsstransfer/internal/assembler/s3"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
)

// openArtifactStore opens the store for committed files described by
// location: "s3:...", "azure:...", "gs:...", "local:/path" or a plain path.
// An empty location selects the local default root.
func openArtifactStore(ctx context.Context, location string, gopts GlobalOptions) (assembler.ArtifactStore, error) {
	scheme, _, _ := strings.Cut(location, ":")
	debug.Log("opening artifact store %q (scheme %q)", location, scheme)

	switch scheme {
	case "s3":
		cfg, err := s3.ParseConfig(location)
		if err != nil {
			return nil, errors.Fatalf("invalid store location %q: %v", location, err)
		}
		if err := gopts.extended.Extract("s3").Apply("s3", &cfg); err != nil {
			return nil, err
		}
		rt, err := transport(gopts, 0)
		if err != nil {
			return nil, err
		}
		st, err := s3.Open(ctx, cfg, rt)
		if err != nil {
			return nil, err
		}
		return st, nil

	case "azure":
		cfg, err := azure.ParseConfig(location)
		if err != nil {
			return nil, errors.Fatalf("invalid store location %q: %v", location, err)
		}
		if err := gopts.extended.Extract("azure").Apply("azure", &cfg); err != nil {
			return nil, err
		}
		cfg.ApplyEnvironment()
		rt, err := transport(gopts, 0)
		if err != nil {
			return nil, err
		}
		st, err := azure.Open(ctx, cfg, rt)
		if err != nil {
			return nil, err
		}
		return st, nil

	case "gs":
		cfg, err := gs.ParseConfig(location)
		if err != nil {
			return nil, errors.Fatalf("invalid store location %q: %v", location, err)
		}
		if err := gopts.extended.Extract("gs").Apply("gs", &cfg); err != nil {
			return nil, err
		}
		rt, err := transport(gopts, 0)
		if err != nil {
			return nil, err
		}
		st, err := gs.Open(ctx, cfg, rt)
		if err != nil {
			return nil, err
		}
		AddCleanupHandler(st.Close)
		return st, nil

	case "local":
		return local.Open(strings.TrimPrefix(location, "local:")), nil
	}

	return local.Open(location), nil
}
