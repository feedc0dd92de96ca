package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/exchangesets/fsstransfer/internal/errors"
	rtest "github.com/exchangesets/fsstransfer/internal/test"
)

func TestZipSlip(t *testing.T) {
	dir := rtest.TempDir(t)
	archive := filepath.Join(dir, "charts.zip")
	rtest.WriteZip(t, archive, []rtest.ZipEntry{
		{Name: "../../../invalid.txt", Data: []byte("escape")},
		{Name: `..\..\..\invalid.txt`, Data: []byte("escape")},
		{Name: "/etc/passwd", Data: []byte("root")},
		{Name: "normal.txt", Data: []byte("fine")},
	})

	report, err := New(NewConfig()).Extract(archive)
	rtest.OK(t, err)

	rtest.Equals(t, 1, report.Files)
	rtest.Equals(t, 3, len(report.Skipped))
	rtest.Equals(t, filepath.Join(dir, "charts"), report.Destination)

	// only normal.txt exists anywhere below the workspace, the archive is gone
	rtest.Equals(t, []string{"charts/normal.txt"}, rtest.ListFiles(t, dir))

	buf, err := os.ReadFile(filepath.Join(dir, "charts", "normal.txt"))
	rtest.OK(t, err)
	rtest.Equals(t, "fine", string(buf))
}

func TestDirectoriesAndNesting(t *testing.T) {
	dir := rtest.TempDir(t)
	archive := filepath.Join(dir, "S100_ROOT.ZIP")
	rtest.WriteZip(t, archive, []rtest.ZipEntry{
		{Name: "CATALOG/"},
		{Name: `EMPTY\`},
		{Name: "DATA/101GB004DEVQK/101GB004DEVQK.000", Data: []byte("cell")},
		{Name: `DATA\README.TXT`, Data: []byte("readme")},
		{Name: "DATA/sub/../inside.txt", Data: []byte("inside")},
		{Name: ""},
	})

	report, err := New(NewConfig()).Extract(archive)
	rtest.OK(t, err)
	rtest.Equals(t, 3, report.Files)
	rtest.Equals(t, 2, report.Dirs)
	rtest.Equals(t, []Skipped{{Name: "", Reason: "empty name"}}, report.Skipped)

	rtest.Equals(t, []string{
		"S100_ROOT/DATA/101GB004DEVQK/101GB004DEVQK.000",
		"S100_ROOT/DATA/README.TXT",
		"S100_ROOT/DATA/inside.txt",
	}, rtest.ListFiles(t, dir))

	for _, d := range []string{"CATALOG", "EMPTY"} {
		fi, err := os.Stat(filepath.Join(dir, "S100_ROOT", d))
		rtest.OK(t, err)
		rtest.Assert(t, fi.IsDir(), "%v is not a directory", d)
	}
}

func TestCorruptArchive(t *testing.T) {
	dir := rtest.TempDir(t)
	archive := filepath.Join(dir, "broken.zip")
	rtest.OK(t, os.WriteFile(archive, []byte("this is not a zip file"), 0600))

	_, err := New(NewConfig()).Extract(archive)
	rtest.Assert(t, errors.IsKind(err, errors.ExtractionFailed), "want ExtractionFailed, got %v", err)

	// the archive is kept
	_, err = os.Stat(archive)
	rtest.OK(t, err)
}

func TestMaxEntries(t *testing.T) {
	dir := rtest.TempDir(t)
	archive := filepath.Join(dir, "many.zip")
	rtest.WriteZip(t, archive, []rtest.ZipEntry{
		{Name: "a", Data: []byte("a")},
		{Name: "b", Data: []byte("b")},
		{Name: "c", Data: []byte("c")},
	})

	_, err := New(Config{MaxEntries: 2}).Extract(archive)
	rtest.Assert(t, errors.IsKind(err, errors.ExtractionFailed), "want ExtractionFailed, got %v", err)
	rtest.Assert(t, strings.Contains(err.Error(), "3 entries"), "unexpected error %v", err)
	rtest.Equals(t, []string{"many.zip"}, rtest.ListFiles(t, dir))
}

func TestMaxTotalSize(t *testing.T) {
	dir := rtest.TempDir(t)
	archive := filepath.Join(dir, "big.zip")
	rtest.WriteZip(t, archive, []rtest.ZipEntry{
		{Name: "a", Data: make([]byte, 600)},
		{Name: "b", Data: make([]byte, 600)},
	})

	_, err := New(Config{MaxTotalSize: 1000}).Extract(archive)
	rtest.Assert(t, errors.IsKind(err, errors.ExtractionFailed), "want ExtractionFailed, got %v", err)
}

func TestEntryPath(t *testing.T) {
	for _, test := range []struct {
		name   string
		rel    string
		isDir  bool
		reason string
	}{
		{"normal.txt", "normal.txt", false, ""},
		{"dir/", "dir", true, ""},
		{`dir\sub\`, "dir/sub", true, ""},
		{"./a/./b", "a/b", false, ""},
		{"", "", false, "empty name"},
		{"./", "", true, "empty name"},
		{"../x", "", false, "path escapes destination"},
		{"a/../../x", "", false, "path escapes destination"},
		{`..\x`, "", false, "path escapes destination"},
		{"/etc/passwd", "", false, "absolute path"},
		{`C:\Windows\win.ini`, "", false, "absolute path"},
		{`\\server\share\x`, "", false, "absolute path"},
		// decomposed umlaut is normalized to its composed form
		{"a\u0308.txt", "\u00e4.txt", false, ""},
	} {
		rel, isDir, reason := entryPath(test.name)
		rtest.Equals(t, test.reason, reason)
		rtest.Equals(t, test.isDir, isDir)
		if reason == "" {
			rtest.Equals(t, test.rel, rel)
		}
	}
}

func TestIsArchive(t *testing.T) {
	rtest.Assert(t, IsArchive("a.zip"), "a.zip")
	rtest.Assert(t, IsArchive("A.ZIP"), "A.ZIP")
	rtest.Assert(t, !IsArchive("a.000"), "a.000")
	rtest.Assert(t, !IsArchive("zip"), "zip")
}
