package retriever

import (
	"sort"

	"github.com/exchangesets/fsstransfer/internal/fss"
)

// ProductVersionKey identifies one version of a product. Batches sharing a
// key are duplicates of each other.
type ProductVersionKey struct {
	ProductName   string
	EditionNumber string
	UpdateNumber  string
}

// KeyOf returns the product version key of d. ok is false if the attribute
// bag of d is missing or lacks one of the key attributes.
func KeyOf(d fss.BatchDescriptor) (key ProductVersionKey, ok bool) {
	if d.Attributes == nil {
		return key, false
	}

	var found [3]bool
	key.ProductName, found[0] = d.Attributes.Get(fss.AttrProductName)
	key.EditionNumber, found[1] = d.Attributes.Get(fss.AttrEditionNumber)
	key.UpdateNumber, found[2] = d.Attributes.Get(fss.AttrUpdateNumber)

	return key, found[0] && found[1] && found[2] && key.ProductName != ""
}

// Select drops descriptors without a usable key and keeps, for every product
// version key, the descriptor with the latest publication date. If two
// descriptors were published at the same time, the first one wins. The
// result is ordered by batch id.
func Select(descriptors []fss.BatchDescriptor) (selected []fss.BatchDescriptor, dropped []string) {
	latest := make(map[ProductVersionKey]fss.BatchDescriptor)

	for _, d := range descriptors {
		key, ok := KeyOf(d)
		if !ok {
			dropped = append(dropped, d.BatchID)
			continue
		}

		cur, ok := latest[key]
		if !ok || d.PublishedAt.After(cur.PublishedAt) {
			if ok {
				dropped = append(dropped, cur.BatchID)
			}
			latest[key] = d
			continue
		}
		dropped = append(dropped, d.BatchID)
	}

	selected = make([]fss.BatchDescriptor, 0, len(latest))
	for _, d := range latest {
		selected = append(selected, d)
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].BatchID < selected[j].BatchID
	})
	return selected, dropped
}
