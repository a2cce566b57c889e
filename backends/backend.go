package backends

import (
	"fmt"
	"math"

	"github.com/dargueta/vblock"
	"github.com/dargueta/vblock/store"
	"github.com/dargueta/vblock/utilities/hexdump"
	"github.com/sirupsen/logrus"
)

// Options holds the settings common to all backends.
type Options struct {
	// SectorSize is the size of one sector, in bytes. Zero means
	// [vblock.DefaultSectorSize].
	SectorSize uint
	// ReadOnly opens the primary image without write access. Writes then fail
	// with [vblock.ErrReadOnly]. Poisoned backends ignore this.
	ReadOnly bool
	// Logger receives all diagnostics. Its level decides how much is logged; see
	// [vblock.Verbosity]. Nil discards everything.
	Logger *logrus.Entry
}

func (o Options) sectorSize() uint {
	if o.SectorSize == 0 {
		return vblock.DefaultSectorSize
	}
	return o.SectorSize
}

func (o Options) logger() *logrus.Entry {
	if o.Logger == nil {
		return vblock.DiscardLogger()
	}
	return o.Logger
}

// imageBackend holds what every backend has: a primary store and the
// single-sector read and write paths against it.
type imageBackend struct {
	primary *store.Store
	log     *logrus.Entry
}

func newImageBackend(primary *store.Store, log *logrus.Entry, kind string) imageBackend {
	if log == nil {
		log = vblock.DiscardLogger()
	}
	return imageBackend{
		primary: primary,
		log:     log.WithFields(logrus.Fields{"backend": kind}),
	}
}

// SectorCount returns the number of whole sectors in the primary image, minus
// one.
func (b *imageBackend) SectorCount() uint64 {
	return reportedSectors(b.primary)
}

// SectorSize returns the size of one sector, in bytes.
func (b *imageBackend) SectorSize() uint {
	return b.primary.SectorSize()
}

// Primary returns the primary store. It remains owned by the backend.
func (b *imageBackend) Primary() *store.Store {
	return b.primary
}

func reportedSectors(s *store.Store) uint64 {
	sectors := s.Sectors()
	if sectors == 0 {
		return 0
	}
	return sectors - 1
}

// sectorOffset converts an LBA into a byte offset, failing if the result doesn't
// fit in an int64.
func sectorOffset(lba uint64, sectorSize uint) (int64, error) {
	if lba > uint64(math.MaxInt64)/uint64(sectorSize) {
		return 0, vblock.ErrOutOfRange.WithMessage(
			fmt.Sprintf("lba %d is too large to address", lba))
	}
	return int64(lba) * int64(sectorSize), nil
}

// readFrom reads exactly one sector from `s`. `lba` is the address in `s`, which
// isn't necessarily the address the initiator asked for.
func readFrom(s *store.Store, lba uint64) ([]byte, error) {
	offset, err := sectorOffset(lba, s.SectorSize())
	if err != nil {
		return nil, err
	}
	return s.ReadAt(offset, int(s.SectorSize()))
}

// traceContent logs the sector data if the logger is at trace level. Building
// the hex dump isn't free, so it's skipped entirely otherwise.
func traceContent(log *logrus.Entry, prefix string, lba uint64, data []byte) {
	if !log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		return
	}
	if hexdump.IsZero(data) {
		log.Tracef("%s %d [all zeroes]", prefix, lba)
	} else {
		log.Tracef("%s %d\n%s", prefix, lba, hexdump.Dump(data, 16))
	}
}

// readSector reads `lba` from the primary store.
func (b *imageBackend) readSector(lba uint64) ([]byte, error) {
	log := b.log.WithField("lba", lba)
	log.Debugf("<-- reading sector %d", lba)

	data, err := readFrom(b.primary, lba)
	if err != nil {
		return nil, err
	}

	traceContent(log, "<-- reading sector", lba, data)
	return data, nil
}

// writeSector writes at most one sector of data to the primary store and
// flushes it.
func (b *imageBackend) writeSector(lba uint64, data []byte) error {
	sectorSize := b.primary.SectorSize()
	log := b.log.WithField("lba", lba)
	log.Debugf("--> writing sector %d", lba)

	if uint(len(data)) > sectorSize {
		log.WithFields(logrus.Fields{"bytes": len(data), "max": sectorSize}).
			Warnf(
				"got %d bytes of sector data; expected a max of %d",
				len(data),
				sectorSize)
		data = data[:sectorSize]
	}

	traceContent(log, "--> writing sector", lba, data)

	offset, err := sectorOffset(lba, sectorSize)
	if err != nil {
		return err
	}
	err = b.primary.WriteAt(offset, data)
	if err != nil {
		return err
	}
	return b.primary.Flush()
}
