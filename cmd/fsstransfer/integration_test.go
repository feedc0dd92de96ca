package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/exchangesets/fsstransfer/internal/assembler"
	"github.com/exchangesets/fsstransfer/internal/assembler/local"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/server"
	rtest "github.com/exchangesets/fsstransfer/internal/test"
)

type testEnvironment struct {
	base      string
	url       string
	workspace string
	store     *local.Store
	gopts     GlobalOptions
}

func setupTestEnvironment(t testing.TB, extraOptions ...string) *testEnvironment {
	env := &testEnvironment{base: rtest.TempDir(t)}
	env.workspace = filepath.Join(env.base, "workspace")
	env.store = local.Open(filepath.Join(env.base, "store"))

	asm := assembler.New(assembler.NewMemoryBlockStore(), env.store, assembler.NewConfig())
	srv, err := server.New(asm, server.NewConfig())
	rtest.OK(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	env.url = ts.URL

	withTestOutput(t)

	env.gopts = GlobalOptions{
		URL:       env.url,
		Workspace: env.workspace,
		Options:   append([]string{"upload.block-size=1000"}, extraOptions...),
	}
	rtest.OK(t, env.gopts.PreRun())
	return env
}

func (env *testEnvironment) writeFile(t testing.TB, name string, data []byte) string {
	path := filepath.Join(env.base, "src", name)
	rtest.OK(t, os.MkdirAll(filepath.Dir(path), 0700))
	rtest.OK(t, os.WriteFile(path, data, 0600))
	return path
}

var productAttributes = []string{
	"ProductName=101GB004DEVQK",
	"EditionNumber=1",
	"UpdateNumber=0",
}

func testUploadOptions() UploadOptions {
	return UploadOptions{
		BusinessUnit: "ADDS",
		Attributes:   productAttributes,
		Wait:         5 * time.Second,
	}
}

func TestUploadRetrieve(t *testing.T) {
	env := setupTestEnvironment(t)
	ctx := context.Background()

	cell := rtest.Random(23, 4500)
	archive := filepath.Join(env.base, "set.zip")
	rtest.WriteZip(t, archive, []rtest.ZipEntry{
		{Name: "S100_ROOT/CATALOG.XML", Data: []byte("<catalog/>")},
		{Name: "../escape.txt", Data: []byte("nope")},
	})

	files := []string{
		env.writeFile(t, "101GB004DEVQK.000", cell),
		archive,
	}
	rtest.OK(t, runUpload(ctx, testUploadOptions(), env.gopts, files))

	// the service stores the reassembled files
	stored, err := os.ReadFile(filepath.Join(env.store.Root(), listOne(t, env.store.Root()), "101GB004DEVQK.000"))
	rtest.OK(t, err)
	rtest.Equals(t, cell, stored)

	rtest.OK(t, runRetrieve(ctx, RetrieveOptions{Filter: []string{"ProductName=101GB004DEVQK"}}, env.gopts))

	rtest.Equals(t, []string{
		"101GB004DEVQK.000",
		"set/S100_ROOT/CATALOG.XML",
	}, rtest.ListFiles(t, env.workspace))

	retrieved, err := os.ReadFile(filepath.Join(env.workspace, "101GB004DEVQK.000"))
	rtest.OK(t, err)
	rtest.Equals(t, cell, retrieved)

	_, err = os.Stat(filepath.Join(env.workspace, "escape.txt"))
	rtest.Assert(t, os.IsNotExist(err), "archive entry escaped the destination")
}

func TestRetrieveLatestBatch(t *testing.T) {
	env := setupTestEnvironment(t)
	ctx := context.Background()

	old := env.writeFile(t, "old/cell.000", []byte("old content"))
	rtest.OK(t, runUpload(ctx, testUploadOptions(), env.gopts, []string{old}))

	// publication dates have a resolution of the server clock
	time.Sleep(10 * time.Millisecond)

	cur := env.writeFile(t, "new/cell.000", []byte("new content"))
	rtest.OK(t, runUpload(ctx, testUploadOptions(), env.gopts, []string{cur}))

	manifest := filepath.Join(env.base, "manifest.yaml")
	rtest.OK(t, runRetrieve(ctx, RetrieveOptions{
		Filter:   []string{"ProductName=101GB004DEVQK"},
		Manifest: manifest,
	}, env.gopts))

	data, err := os.ReadFile(filepath.Join(env.workspace, "cell.000"))
	rtest.OK(t, err)
	rtest.Equals(t, "new content", string(data))

	buf, err := os.ReadFile(manifest)
	rtest.OK(t, err)
	rtest.Assert(t, strings.Contains(string(buf), "name: cell"), "manifest does not list cell: %s", buf)
}

func TestRetrieveNothingToDo(t *testing.T) {
	env := setupTestEnvironment(t)

	rtest.OK(t, runRetrieve(context.Background(), RetrieveOptions{Filter: []string{"ProductName=unknown"}}, env.gopts))

	_, err := os.Stat(env.workspace)
	rtest.Assert(t, os.IsNotExist(err), "workspace was created")
}

func TestRetrieveCorruptArchive(t *testing.T) {
	env := setupTestEnvironment(t)
	ctx := context.Background()

	broken := env.writeFile(t, "broken.zip", []byte("this is not a zip archive"))
	rtest.OK(t, runUpload(ctx, testUploadOptions(), env.gopts, []string{broken}))

	err := runRetrieve(ctx, RetrieveOptions{Filter: []string{"ProductName=101GB004DEVQK"}}, env.gopts)
	rtest.Assert(t, err == ErrDiagnostics, "want ErrDiagnostics, got %v", err)

	// the archive is kept for inspection
	rtest.Equals(t, []string{"broken.zip"}, rtest.ListFiles(t, env.workspace))
}

func TestUploadEmptyFile(t *testing.T) {
	env := setupTestEnvironment(t)
	empty := env.writeFile(t, "empty.txt", nil)

	err := runUpload(context.Background(), testUploadOptions(), env.gopts, []string{empty})
	rtest.Assert(t, errors.IsKind(err, errors.CommitFailed), "want CommitFailed, got %v", err)

	env = setupTestEnvironment(t, "upload.reject-empty=true")
	err = runUpload(context.Background(), testUploadOptions(), env.gopts, []string{empty})
	rtest.Assert(t, errors.IsKind(err, errors.InvalidInput), "want InvalidInput, got %v", err)
}

func TestUploadMissingFile(t *testing.T) {
	env := setupTestEnvironment(t)

	err := runUpload(context.Background(), testUploadOptions(), env.gopts, []string{filepath.Join(env.base, "missing")})
	rtest.Assert(t, errors.IsKind(err, errors.InvalidInput), "want InvalidInput, got %v", err)
}

func TestUploadRequiresBusinessUnit(t *testing.T) {
	env := setupTestEnvironment(t)
	f := env.writeFile(t, "cell.000", []byte("x"))

	opts := testUploadOptions()
	opts.BusinessUnit = ""
	err := runUpload(context.Background(), opts, env.gopts, []string{f})
	rtest.Assert(t, errors.IsFatal(err), "want fatal error, got %v", err)
}

// listOne returns the name of the single entry of dir.
func listOne(t testing.TB, dir string) string {
	entries, err := os.ReadDir(dir)
	rtest.OK(t, err)
	rtest.Equals(t, 1, len(entries))
	return entries[0].Name()
}
