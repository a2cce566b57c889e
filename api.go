package vblock

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// DefaultSectorSize is the sector size used when none is configured.
const DefaultSectorSize = 512

// BlockBackend is the contract a transport adapter uses to serve a virtual block
// device. Implementations translate LBAs into byte ranges of one or more backing
// stores.
//
// Only one operation is ever in flight at a time; implementations need not be
// safe for concurrent use.
type BlockBackend interface {
	// SectorCount returns the number of sectors reported to the initiator. By
	// convention this is one less than the number of whole sectors in the
	// primary store.
	SectorCount() uint64

	// SectorSize returns the size of one sector, in bytes.
	SectorSize() uint

	// ReadSector returns exactly one sector of data for the given address.
	ReadSector(lba uint64) ([]byte, error)

	// WriteSectors writes at most one sector of data at the given address.
	// Excess data is discarded; short data only overwrites the bytes supplied.
	WriteSectors(lba uint64, data []byte) error

	// Close flushes pending writes and releases all backing stores. Calling it
	// more than once is harmless.
	Close() error
}

// WriteBlocks is the multi-block write path shared by all backends. It splits
// `data` into whole sectors and hands each one to backend.WriteSectors. A
// trailing partial sector is dropped without warning.
func WriteBlocks(
	backend BlockBackend, log logrus.FieldLogger, lba uint64, data []byte,
) error {
	sectorSize := backend.SectorSize()
	blocks := uint64(len(data)) / uint64(sectorSize)

	log.WithFields(logrus.Fields{"lba": lba, "blocks": blocks}).
		Infof("--> writing %d blocks at lba %d", blocks, lba)

	for i := uint64(0); i < blocks; i++ {
		start := i * uint64(sectorSize)
		err := backend.WriteSectors(lba+i, data[start:start+uint64(sectorSize)])
		if err != nil {
			return err
		}
	}
	return nil
}

// SectorRange is a closed interval of LBAs: both Start and End are part of the
// range.
type SectorRange struct {
	Start uint64
	End   uint64
}

// Contains reports whether lba lies within the range, inclusive on both ends.
func (r SectorRange) Contains(lba uint64) bool {
	return r.Start <= lba && lba <= r.End
}

// Len returns the number of sectors in the range.
func (r SectorRange) Len() uint64 {
	return r.End - r.Start + 1
}

// Overlaps reports whether the two ranges share at least one sector.
func (r SectorRange) Overlaps(other SectorRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Validate checks that Start <= End, and if `limit` is nonzero, that the whole
// range lies below it.
func (r SectorRange) Validate(limit uint64) error {
	if r.Start > r.End {
		return ErrInvalidArgument.WithMessage(
			fmt.Sprintf("sector range [%d, %d] is reversed", r.Start, r.End))
	}
	if limit != 0 && r.End >= limit {
		return ErrOutOfRange.WithMessage(
			fmt.Sprintf("sector range [%d, %d] not within [0, %d)", r.Start, r.End, limit))
	}
	return nil
}

func (r SectorRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}
