package gs

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/exchangesets/fsstransfer/internal/assembler/storetest"
	rtest "github.com/exchangesets/fsstransfer/internal/test"
)

func TestObjectNameStaysBelowPrefix(t *testing.T) {
	s := &Store{cfg: Config{Bucket: "bucket", Prefix: "S100-ExchangeSets"}}

	name, err := s.objectName("b1", "cell.zip")
	rtest.OK(t, err)
	rtest.Equals(t, "S100-ExchangeSets/b1/cell.zip", name)

	storetest.RejectsInvalidNames(t, s)
}

// Credentials are taken from GOOGLE_APPLICATION_CREDENTIALS.
func TestStoreGS(t *testing.T) {
	for _, v := range []string{"FSS_TEST_GS_LOCATION", "GOOGLE_APPLICATION_CREDENTIALS"} {
		if os.Getenv(v) == "" {
			t.Skipf("environment variable %v not set", v)
		}
	}

	cfg, err := ParseConfig(os.Getenv("FSS_TEST_GS_LOCATION"))
	rtest.OK(t, err)

	st, err := Open(context.TODO(), cfg, http.DefaultTransport)
	rtest.OK(t, err)
	t.Cleanup(func() { rtest.OK(t, st.Close()) })
	storetest.Run(t, st)
}
