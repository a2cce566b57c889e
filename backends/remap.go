package backends

import (
	"fmt"
	"io"

	"github.com/dargueta/vblock"
	"github.com/gocarina/gocsv"
)

// RemapRule redirects reads of every LBA in Source to the secondary store. The
// first sector of Source maps to TargetOffset, the next to TargetOffset+1, and
// so on.
type RemapRule struct {
	Source       vblock.SectorRange
	TargetOffset int64
}

// Translate returns the address in the secondary store for `lba`. The caller must
// have already checked that Source contains `lba`.
func (r RemapRule) Translate(lba uint64) (uint64, error) {
	remapped := r.TargetOffset + int64(lba-r.Source.Start)
	if remapped < 0 {
		return 0, vblock.ErrOutOfRange.WithMessage(
			fmt.Sprintf("lba %d remaps to negative address %d", lba, remapped))
	}
	return uint64(remapped), nil
}

func (r RemapRule) String() string {
	return fmt.Sprintf("%s -> %d", r.Source, r.TargetOffset)
}

// RemapTable is an ordered list of rules. The first rule whose window contains
// an LBA wins.
type RemapTable []RemapRule

// NewRemapTable creates a table with a single rule redirecting the inclusive
// window [start, end] to `target`.
func NewRemapTable(start, end uint64, target int64) RemapTable {
	return RemapTable{
		{
			Source:       vblock.SectorRange{Start: start, End: end},
			TargetOffset: target,
		},
	}
}

// Lookup returns the rule covering `lba`, if any.
func (t RemapTable) Lookup(lba uint64) (RemapRule, bool) {
	for _, rule := range t {
		if rule.Source.Contains(lba) {
			return rule, true
		}
	}
	return RemapRule{}, false
}

// Validate checks every window is well-formed, lies below `limit` (ignored if
// zero), and doesn't overlap any other window in the table.
func (t RemapTable) Validate(limit uint64) error {
	for i, rule := range t {
		err := rule.Source.Validate(limit)
		if err != nil {
			return err
		}
		for _, other := range t[:i] {
			if rule.Source.Overlaps(other.Source) {
				return vblock.ErrInvalidArgument.WithMessage(
					fmt.Sprintf(
						"remap window %s overlaps %s", rule.Source, other.Source))
			}
		}
	}
	return nil
}

type remapRow struct {
	Start  uint64 `csv:"start"`
	End    uint64 `csv:"end"`
	Target int64  `csv:"target"`
}

// LoadRemapTable reads a table from CSV with the columns `start`, `end`, and
// `target`. The table is validated for overlaps but not against any store size.
func LoadRemapTable(reader io.Reader) (RemapTable, error) {
	var rows []remapRow
	err := gocsv.Unmarshal(reader, &rows)
	if err != nil {
		return nil, vblock.ErrInvalidArgument.Wrap(err)
	}
	if len(rows) == 0 {
		return nil, vblock.ErrInvalidArgument.WithMessage("remap table is empty")
	}

	table := make(RemapTable, 0, len(rows))
	for _, row := range rows {
		table = append(table, NewRemapTable(row.Start, row.End, row.Target)...)
	}
	err = table.Validate(0)
	if err != nil {
		return nil, err
	}
	return table, nil
}
