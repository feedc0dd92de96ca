// Package debug writes the debug log of the transfer tools. It is off
// unless one of these environment variables is set:
//
//	FSS_DEBUG_LOG    file to append all messages to, "-" for stderr
//	FSS_DEBUG_FUNCS  comma separated function patterns printed to stderr
//	FSS_DEBUG_FILES  comma separated "dir/file.go:line" patterns printed to stderr
//
// Patterns use path.Match syntax. A leading "-" excludes matches and "all"
// selects everything. When several patterns match, the last one given wins.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// filter selects log positions by pattern. The last matching rule decides.
type filter []rule

type rule struct {
	pattern string
	include bool
}

func (f filter) match(key string) bool {
	for i := len(f) - 1; i >= 0; i-- {
		r := f[i]
		if r.pattern == "all" || r.pattern == key {
			return r.include
		}
		if ok, _ := path.Match(r.pattern, key); ok {
			return r.include
		}
	}
	return false
}

func parseFilter(env string, normalize func(string) string) (filter, error) {
	var f filter
	for _, s := range strings.Split(env, ",") {
		pattern := strings.TrimSpace(s)
		if pattern == "" {
			continue
		}

		include := true
		if pattern[0] == '-' || pattern[0] == '+' {
			include = pattern[0] == '+'
			pattern = pattern[1:]
		}
		pattern = normalize(pattern)

		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		f = append(f, rule{pattern: pattern, include: include})
	}
	return f, nil
}

// filePattern completes "file.go" to "*/file.go:*".
func filePattern(s string) string {
	if s == "all" {
		return s
	}
	if !strings.Contains(s, "/") {
		s = "*/" + s
	}
	if !strings.Contains(s, ":") {
		s += ":*"
	}
	return s
}

var state struct {
	enabled bool
	out     *log.Logger
	funcs   filter
	files   filter
}

// run before the init functions of other packages, which may log
var _ = setup()

func setup() bool {
	var err error
	state.funcs, err = parseFilter(os.Getenv("FSS_DEBUG_FUNCS"), func(s string) string { return s })
	if err == nil {
		state.files, err = parseFilter(os.Getenv("FSS_DEBUG_FILES"), filePattern)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "debug: %v\n", err)
		os.Exit(5)
	}

	if name := os.Getenv("FSS_DEBUG_LOG"); name != "" {
		var w io.Writer = os.Stderr
		if name != "-" {
			f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err != nil {
				fmt.Fprintf(os.Stderr, "debug: unable to open log file: %v\n", err)
				os.Exit(2)
			}
			w = f
		}
		state.out = log.New(w, "", log.LstdFlags|log.Lmicroseconds)
	}

	state.enabled = state.out != nil || len(state.funcs) > 0 || len(state.files) > 0
	if state.enabled {
		fmt.Fprintf(os.Stderr, "debug log enabled\n")
	}
	return state.enabled
}

// Enabled reports whether debug logging is active.
func Enabled() bool {
	return state.enabled
}

// goroutineID parses the id from the header line of the current stack.
func goroutineID() int {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)

	var id int
	_, _ = fmt.Sscanf(string(buf[:n]), "goroutine %d ", &id)
	return id
}

// Log writes a message to the debug log. The position of the caller is
// prepended.
func Log(format string, args ...interface{}) {
	if !state.enabled {
		return
	}

	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		return
	}
	pos := fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
	fn := path.Base(runtime.FuncForPC(pc).Name())

	msg := fmt.Sprintf("%s\t%s\t%d\t%s", pos, fn, goroutineID(), fmt.Sprintf(format, args...))
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}

	if state.out != nil {
		state.out.Print(msg)
	}
	if state.files.match(pos) || state.funcs.match(fn) {
		_, _ = io.WriteString(os.Stderr, msg)
	}
}
