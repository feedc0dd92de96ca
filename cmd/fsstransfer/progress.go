package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/exchangesets/fsstransfer/internal/upload"
	"golang.org/x/term"
)

// stdoutTerminalWidth returns the width of the terminal stdout is connected
// to, or zero if stdout is not a terminal.
func stdoutTerminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

func formatPercent(numerator, denominator int) string {
	if denominator == 0 {
		return ""
	}

	percent := 100.0 * float64(numerator) / float64(denominator)
	if percent > 100 {
		percent = 100
	}

	return fmt.Sprintf("%3.2f%%", percent)
}

func formatSeconds(sec uint64) string {
	hours := sec / 3600
	sec -= hours * 3600
	mins := sec / 60
	sec -= mins * 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, mins, sec)
	}

	return fmt.Sprintf("%d:%02d", mins, sec)
}

func formatDuration(d time.Duration) string {
	return formatSeconds(uint64(d / time.Second))
}

func formatBytes(c uint64) string {
	b := float64(c)
	switch {
	case c > 1<<40:
		return fmt.Sprintf("%.3f TiB", b/(1<<40))
	case c > 1<<30:
		return fmt.Sprintf("%.3f GiB", b/(1<<30))
	case c > 1<<20:
		return fmt.Sprintf("%.3f MiB", b/(1<<20))
	case c > 1<<10:
		return fmt.Sprintf("%.3f KiB", b/(1<<10))
	default:
		return fmt.Sprintf("%d B", c)
	}
}

// shortenStatus shortens the status line so that it fits into maxLineLen
// characters.
func shortenStatus(maxLineLen int, s string) string {
	if len(s) <= maxLineLen {
		return s
	}
	if maxLineLen < 4 {
		return s[:maxLineLen]
	}
	return s[:maxLineLen-3] + "..."
}

// newUploadProgress returns a progress callback printing the number of
// uploaded blocks of name. On a terminal the status line is rewritten in
// place, otherwise only the final state is printed.
func newUploadProgress(show bool, name string) upload.ProgressFunc {
	if !show {
		return nil
	}

	var m sync.Mutex
	start := time.Now()
	width := stdoutTerminalWidth()

	return func(done, expected int) {
		m.Lock()
		defer m.Unlock()

		status := fmt.Sprintf("[%s] %s  %d / %d blocks  %s",
			formatDuration(time.Since(start)),
			formatPercent(done, expected),
			done, expected, name)

		switch {
		case width > 0:
			status = shortenStatus(width-1, status)
			Printf("\r%s%s", status, strings.Repeat(" ", width-1-len(status)))
			if done == expected {
				Printf("\n")
			}
		case done == expected:
			Printf("%s\n", status)
		}
	}
}

func formatFingerprint(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}
