// Package storetest contains a test suite for artifact stores.
package storetest

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/exchangesets/fsstransfer/internal/assembler"
	"github.com/exchangesets/fsstransfer/internal/errors"
	rtest "github.com/exchangesets/fsstransfer/internal/test"
)

// Run exercises st. Every run writes below a fresh batch id, so the suite
// can be pointed at a shared bucket.
func Run(t *testing.T, st assembler.ArtifactStore) {
	batchID := "test-" + hex.EncodeToString(rtest.Random(int(time.Now().UnixNano()), 8))

	t.Run("PutOpen", func(t *testing.T) {
		data := rtest.Random(23, 5*1024*1024+17)
		rtest.OK(t, st.Put(context.TODO(), batchID, "cell.zip", bytes.NewReader(data), int64(len(data))))
		rtest.Equals(t, data, read(t, st, batchID, "cell.zip"))
	})

	t.Run("Overwrite", func(t *testing.T) {
		for _, s := range []string{"first version", "second"} {
			rtest.OK(t, st.Put(context.TODO(), batchID, "catalog.xml", bytes.NewReader([]byte(s)), int64(len(s))))
		}
		rtest.Equals(t, []byte("second"), read(t, st, batchID, "catalog.xml"))
	})

	t.Run("Empty", func(t *testing.T) {
		rtest.OK(t, st.Put(context.TODO(), batchID, "empty", bytes.NewReader(nil), 0))
		rtest.Equals(t, 0, len(read(t, st, batchID, "empty")))
	})

	t.Run("Missing", func(t *testing.T) {
		_, _, err := st.Open(context.TODO(), batchID, "does-not-exist")
		if err == nil {
			t.Fatal("opening a missing file succeeded")
		}
		rtest.Assert(t, st.IsNotExist(err), "IsNotExist(%v) returned false", err)
	})

	t.Run("InvalidNames", func(t *testing.T) {
		RejectsInvalidNames(t, st)
	})
}

// RejectsInvalidNames checks that st refuses names which would leave the
// store's root. The names are rejected before the store is contacted.
func RejectsInvalidNames(t *testing.T, st assembler.ArtifactStore) {
	for _, name := range [][2]string{
		{"b1", "../../other-tenant/secret"},
		{"..", "x"},
		{"b1", ".."},
		{"b1", "a/b"},
		{"b1", `..\x`},
		{"", "x"},
	} {
		err := st.Put(context.TODO(), name[0], name[1], bytes.NewReader([]byte("x")), 1)
		rtest.Assert(t, errors.IsKind(err, errors.ValidationFailed), "Put(%q, %q): want ValidationFailed, got %v", name[0], name[1], err)

		_, _, err = st.Open(context.TODO(), name[0], name[1])
		rtest.Assert(t, errors.IsKind(err, errors.ValidationFailed), "Open(%q, %q): want ValidationFailed, got %v", name[0], name[1], err)
	}
}

func read(t testing.TB, st assembler.ArtifactStore, batchID, fileName string) []byte {
	t.Helper()
	rd, size, err := st.Open(context.TODO(), batchID, fileName)
	rtest.OK(t, err)
	defer func() { rtest.OK(t, rd.Close()) }()

	buf, err := io.ReadAll(rd)
	rtest.OK(t, err)
	rtest.Equals(t, int64(len(buf)), size)
	return buf
}
