package backends

import (
	"github.com/dargueta/vblock"
	"github.com/dargueta/vblock/store"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// SplicedImageBackend presents one volume built from two images. Reads from the
// windows in its remap table come from the secondary image; everything else,
// including all writes, goes to the primary.
//
// Windows are inclusive on both ends: a window of [100, 103] redirects four
// sectors, 100 and 103 included.
type SplicedImageBackend struct {
	imageBackend
	secondary *store.Store
	table     RemapTable
}

var _ vblock.BlockBackend = (*SplicedImageBackend)(nil)

// NewSplicedImage creates a backend that takes ownership of both stores. The
// table must have at least one rule, and every window must lie within the
// primary store.
func NewSplicedImage(
	primary, secondary *store.Store, table RemapTable, log *logrus.Entry,
) (*SplicedImageBackend, error) {
	if len(table) == 0 {
		return nil, vblock.ErrInvalidArgument.WithMessage("remap table is empty")
	}
	err := table.Validate(primary.Sectors())
	if err != nil {
		return nil, err
	}
	if primary.SectorSize() != secondary.SectorSize() {
		return nil, vblock.ErrInvalidArgument.WithMessage(
			"primary and secondary stores have different sector sizes")
	}

	backend := &SplicedImageBackend{
		imageBackend: newImageBackend(primary, log, "spliced"),
		secondary:    secondary,
		table:        table,
	}
	for _, rule := range table {
		backend.log.WithField("rule", rule.String()).Info("redirecting reads")
	}
	return backend, nil
}

// OpenSplicedImage opens both images and wraps them in a new backend. The
// secondary image is only ever read, so it's always opened read-only.
func OpenSplicedImage(
	primaryPath, secondaryPath string, table RemapTable, options Options,
) (*SplicedImageBackend, error) {
	primary, err := store.Open(primaryPath, options.sectorSize(), options.ReadOnly)
	if err != nil {
		return nil, err
	}

	secondary, err := store.Open(secondaryPath, options.sectorSize(), true)
	if err != nil {
		primary.Close()
		return nil, err
	}

	backend, err := NewSplicedImage(primary, secondary, table, options.logger())
	if err != nil {
		primary.Close()
		secondary.Close()
		return nil, err
	}
	return backend, nil
}

// Secondary returns the secondary store. It remains owned by the backend.
func (b *SplicedImageBackend) Secondary() *store.Store {
	return b.secondary
}

// Table returns the backend's remap table.
func (b *SplicedImageBackend) Table() RemapTable {
	return b.table
}

// ReadSector returns one sector of data for `lba`, from the secondary image if a
// remap window covers it and from the primary otherwise.
func (b *SplicedImageBackend) ReadSector(lba uint64) ([]byte, error) {
	rule, redirected := b.table.Lookup(lba)
	if !redirected {
		return b.readSector(lba)
	}

	remapped, err := rule.Translate(lba)
	if err != nil {
		return nil, err
	}

	log := b.log.WithFields(logrus.Fields{"lba": lba, "remapped": remapped})
	log.Debugf("<-- reading sector %d from secondary sector %d", lba, remapped)

	data, err := readFrom(b.secondary, remapped)
	if err != nil {
		return nil, err
	}

	traceContent(log, "<-- reading sector", lba, data)
	return data, nil
}

// WriteSectors writes at most one sector of data to `lba` in the primary image.
// Remap windows don't apply to writes.
func (b *SplicedImageBackend) WriteSectors(lba uint64, data []byte) error {
	return b.writeSector(lba, data)
}

// Write is the multi-block write path. See [vblock.WriteBlocks].
func (b *SplicedImageBackend) Write(lba uint64, data []byte) error {
	return vblock.WriteBlocks(b, b.log, lba, data)
}

// Close flushes and releases both images. It's safe to call more than once.
func (b *SplicedImageBackend) Close() error {
	var result error
	if err := b.primary.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := b.secondary.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}
