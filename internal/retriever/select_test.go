package retriever

import (
	"testing"
	"time"

	"github.com/exchangesets/fsstransfer/internal/fss"
	rtest "github.com/exchangesets/fsstransfer/internal/test"
)

func batchIDs(list []fss.BatchDescriptor) []string {
	ids := make([]string, 0, len(list))
	for _, d := range list {
		ids = append(ids, d.BatchID)
	}
	return ids
}

func TestKeyOf(t *testing.T) {
	var tests = []struct {
		attrs fss.Attributes
		key   ProductVersionKey
		ok    bool
	}{
		{nil, ProductVersionKey{}, false},
		{fss.Attributes{}, ProductVersionKey{}, false},
		{
			fss.Attributes{{Key: "productname", Value: "p"}, {Key: "EDITIONNUMBER", Value: "2"}, {Key: "UpdateNumber", Value: "1"}},
			ProductVersionKey{"p", "2", "1"},
			true,
		},
		{
			fss.Attributes{{Key: fss.AttrProductName, Value: ""}, {Key: fss.AttrEditionNumber, Value: "2"}, {Key: fss.AttrUpdateNumber, Value: "1"}},
			ProductVersionKey{"", "2", "1"},
			false,
		},
		{
			fss.Attributes{{Key: fss.AttrProductName, Value: "p"}, {Key: fss.AttrEditionNumber, Value: "2"}},
			ProductVersionKey{"p", "2", ""},
			false,
		},
	}

	for i, test := range tests {
		key, ok := KeyOf(fss.BatchDescriptor{Attributes: test.attrs})
		if ok != test.ok || key != test.key {
			t.Errorf("test %d: want (%v, %v), got (%v, %v)", i, test.key, test.ok, key, ok)
		}
	}
}

func TestSelect(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	selected, dropped := Select([]fss.BatchDescriptor{
		descriptor("c", now.Add(-2*time.Hour), "p1"),
		descriptor("a", now.Add(-time.Hour), "p1"),
		descriptor("b", now, "p2"),
		descriptor("d", now.Add(-3*time.Hour), "p1"),
	})

	rtest.Equals(t, []string{"a", "b"}, batchIDs(selected))
	rtest.Equals(t, []string{"c", "d"}, dropped)
}

func TestSelectTieFirstWins(t *testing.T) {
	now := time.Now()

	selected, dropped := Select([]fss.BatchDescriptor{
		descriptor("second", now, "p"),
		descriptor("first", now, "p"),
	})

	rtest.Equals(t, []string{"second"}, batchIDs(selected))
	rtest.Equals(t, []string{"first"}, dropped)
}

func TestSelectEditions(t *testing.T) {
	now := time.Now()
	ed2 := descriptor("ed2", now.Add(-time.Hour), "p")
	ed2.Attributes[1].Value = "2"

	selected, dropped := Select([]fss.BatchDescriptor{
		descriptor("ed1", now, "p"),
		ed2,
	})

	rtest.Equals(t, []string{"ed1", "ed2"}, batchIDs(selected))
	rtest.Equals(t, 0, len(dropped))
}
