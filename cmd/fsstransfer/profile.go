package main

import (
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

type profileOptions struct {
	memPath string
	cpuPath string
}

var profiler profileOptions

func registerProfiling(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&profiler.memPath, "mem-profile", "", "write memory profile to `dir`")
	f.StringVar(&profiler.cpuPath, "cpu-profile", "", "write cpu profile to `dir`")
	_ = f.MarkHidden("mem-profile")
	_ = f.MarkHidden("cpu-profile")

	origPreRun := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := origPreRun(c, args); err != nil {
			return err
		}
		return profiler.start()
	}
}

func (p profileOptions) start() error {
	if p.memPath != "" && p.cpuPath != "" {
		return errors.Fatal("only one profile (memory or CPU) may be activated at the same time")
	}

	var prof interface {
		Stop()
	}

	switch {
	case p.memPath != "":
		prof = profile.Start(profile.Quiet, profile.NoShutdownHook, profile.MemProfile, profile.ProfilePath(p.memPath))
	case p.cpuPath != "":
		prof = profile.Start(profile.Quiet, profile.NoShutdownHook, profile.CPUProfile, profile.ProfilePath(p.cpuPath))
	}

	if prof != nil {
		AddCleanupHandler(func() error {
			prof.Stop()
			return nil
		})
	}
	return nil
}
