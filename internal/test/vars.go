package test

import (
	"fmt"
	"os"
	"strconv"
)

// TestCleanupTempDirs removes temporary directories after a test unless
// FSS_TEST_CLEANUP is false.
var TestCleanupTempDirs = envBool("FSS_TEST_CLEANUP", true)

// TestTempDir is the parent of temporary test directories, the system
// default when empty.
var TestTempDir = os.Getenv("FSS_TEST_TMPDIR")

func envBool(name string, def bool) bool {
	s, ok := os.LookupEnv(name)
	if !ok || s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring %s=%q: %v\n", name, s, err)
		return def
	}
	return v
}
