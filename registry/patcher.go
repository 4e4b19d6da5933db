package registry

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Patcher constructs a new registry view by applying a diff to a previous
// view. The previous view is never mutated. An addition that would overwrite
// an existing entry with a different adapter violates the exactly-once
// invariant and fails the whole patch.
func Patcher(prevState View, diff Diff) (View, error) {
	entryMap := make(map[common.Address]Entry, len(prevState.Entries))
	for _, entry := range prevState.Entries {
		entryMap[entry.Asset] = entry
	}

	for _, added := range diff.EntryAdditions {
		if existing, exists := entryMap[added.Asset]; exists && existing != added {
			return View{}, fmt.Errorf("patcher: entry for asset %s already exists with adapter %s",
				added.Asset.Hex(), existing.Adapter.Hex())
		}
		entryMap[added.Asset] = added
	}

	finalEntries := make([]Entry, 0, len(entryMap))
	for _, entry := range entryMap {
		finalEntries = append(finalEntries, entry)
	}
	sort.Slice(finalEntries, func(i, j int) bool {
		return bytes.Compare(finalEntries[i].Asset.Bytes(), finalEntries[j].Asset.Bytes()) < 0
	})

	operators := prevState.Operators
	if diff.Operators != nil {
		operators = *diff.Operators
	}

	return View{
		Entries:   finalEntries,
		Operators: operators,
	}, nil
}
