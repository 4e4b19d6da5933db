package registry

import "github.com/ethereum/go-ethereum/common"

// Diff represents the changes required to transition from one registry view
// to another. Entries are append-only, so the diff never carries deletions.
type Diff struct {
	EntryAdditions []Entry    `json:"entryAdditions,omitempty"`
	Operators      *Operators `json:"operators,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d Diff) IsEmpty() bool {
	return len(d.EntryAdditions) == 0 && d.Operators == nil
}

// Differ calculates the difference between two registry views (old -> new).
func Differ(old, new View) Diff {
	oldEntries := make(map[common.Address]struct{}, len(old.Entries))
	for _, entry := range old.Entries {
		oldEntries[entry.Asset] = struct{}{}
	}

	var additions []Entry
	for _, entry := range new.Entries {
		if _, exists := oldEntries[entry.Asset]; !exists {
			additions = append(additions, entry)
		}
	}

	var operators *Operators
	if old.Operators != new.Operators {
		ops := new.Operators
		operators = &ops
	}

	return Diff{
		EntryAdditions: additions,
		Operators:      operators,
	}
}
