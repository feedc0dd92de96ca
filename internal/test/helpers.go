package test

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"testing"

	mrand "math/rand"

	"github.com/klauspost/compress/zip"
)

// fail prints a colored message with the position of the failing call
// and stops the test.
func fail(tb testing.TB, format string, args ...interface{}) {
	tb.Helper()
	pos := "???"
	if _, file, line, ok := runtime.Caller(2); ok {
		pos = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	fmt.Printf("\033[31m%s: %s\033[39m\n\n", pos, fmt.Sprintf(format, args...))
	tb.FailNow()
}

// Assert fails the test if the condition is false.
func Assert(tb testing.TB, condition bool, msg string, v ...interface{}) {
	tb.Helper()
	if !condition {
		fail(tb, msg, v...)
	}
}

// OK fails the test if err is not nil.
func OK(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		fail(tb, "unexpected error: %+v", err)
	}
}

// Equals fails the test unless exp and act are deeply equal.
func Equals(tb testing.TB, exp, act interface{}) {
	tb.Helper()
	if !reflect.DeepEqual(exp, act) {
		fail(tb, "\n\n\texp: %#v\n\n\tgot: %#v", exp, act)
	}
}

// Random returns count bytes of pseudo-random data derived from the seed.
func Random(seed, count int) []byte {
	buf := make([]byte, count)
	_, _ = mrand.New(mrand.NewSource(int64(seed))).Read(buf)
	return buf
}

// TempDir returns a temporary directory that is removed by t.Cleanup,
// except if TestCleanupTempDirs is set to false.
func TempDir(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp(TestTempDir, "fsstransfer-test-")
	OK(t, err)

	t.Cleanup(func() {
		if TestCleanupTempDirs {
			OK(t, os.RemoveAll(dir))
			return
		}
		t.Logf("kept test directory %v", dir)
	})
	return dir
}

// ZipEntry describes one entry of an archive built by WriteZip.
type ZipEntry struct {
	Name string
	Data []byte
}

// WriteZip writes a zip archive with the given raw entry names to path.
// Entry names are not sanitized, so hostile names can be produced.
func WriteZip(t testing.TB, path string, entries []ZipEntry) {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate})
		OK(t, err)
		_, err = w.Write(e.Data)
		OK(t, err)
	}
	OK(t, zw.Close())
	OK(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// ListFiles returns the slash separated paths of all regular files below
// dir, sorted.
func ListFiles(t testing.TB, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	OK(t, err)
	sort.Strings(files)
	return files
}
