package backends

import (
	"github.com/dargueta/vblock"
	"github.com/dargueta/vblock/store"
	"github.com/sirupsen/logrus"
)

// SingleImageBackend serves a single image file with a one-to-one mapping of
// LBAs to sectors in the file.
type SingleImageBackend struct {
	imageBackend
}

var _ vblock.BlockBackend = (*SingleImageBackend)(nil)

// NewSingleImage creates a backend that takes ownership of `primary`. The store
// is closed when the backend is.
func NewSingleImage(primary *store.Store, log *logrus.Entry) *SingleImageBackend {
	return &SingleImageBackend{
		imageBackend: newImageBackend(primary, log, "single"),
	}
}

// OpenSingleImage opens the image at `path` and wraps it in a new backend.
func OpenSingleImage(path string, options Options) (*SingleImageBackend, error) {
	primary, err := store.Open(path, options.sectorSize(), options.ReadOnly)
	if err != nil {
		return nil, err
	}
	return NewSingleImage(primary, options.logger()), nil
}

// ReadSector returns one sector of data from `lba`.
func (b *SingleImageBackend) ReadSector(lba uint64) ([]byte, error) {
	return b.readSector(lba)
}

// WriteSectors writes at most one sector of data to `lba` and flushes it.
func (b *SingleImageBackend) WriteSectors(lba uint64, data []byte) error {
	return b.writeSector(lba, data)
}

// Write is the multi-block write path. See [vblock.WriteBlocks].
func (b *SingleImageBackend) Write(lba uint64, data []byte) error {
	return vblock.WriteBlocks(b, b.log, lba, data)
}

// Close flushes and releases the image. It's safe to call more than once.
func (b *SingleImageBackend) Close() error {
	return b.primary.Close()
}
