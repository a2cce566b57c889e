package backends

import (
	"fmt"

	"github.com/dargueta/vblock"
	"github.com/dargueta/vblock/store"
	"github.com/sirupsen/logrus"
)

// ExitPoisoned is the process exit status used when a poisoned backend is
// written to.
const ExitPoisoned = 3

// Terminator ends the process in response to a write against a poisoned
// backend. `lba` is the address of the offending write.
//
// Terminators are not expected to return. If one does, the write is refused
// with [vblock.ErrPoisoned] and the image is left untouched.
type Terminator func(lba uint64)

// ExitTerminator returns the default terminator: it logs the write at error level
// and exits with [ExitPoisoned] through the logger's exit function. Deferred
// functions don't run, so nothing is flushed.
func ExitTerminator(log *logrus.Entry) Terminator {
	return func(lba uint64) {
		log.WithField("lba", lba).Errorf("write to lba %d on poisoned device; terminating", lba)
		log.Logger.Exit(ExitPoisoned)
	}
}

// PoisonWriteBackend serves reads from a single image but ends the process on
// the first write request of any kind.
type PoisonWriteBackend struct {
	imageBackend
	terminate Terminator
}

var _ vblock.BlockBackend = (*PoisonWriteBackend)(nil)

// NewPoisonWrite creates a backend that takes ownership of `primary`. If
// `terminate` is nil, [ExitTerminator] is used.
func NewPoisonWrite(
	primary *store.Store, log *logrus.Entry, terminate Terminator,
) *PoisonWriteBackend {
	backend := &PoisonWriteBackend{
		imageBackend: newImageBackend(primary, log, "poison"),
		terminate:    terminate,
	}
	if backend.terminate == nil {
		backend.terminate = ExitTerminator(backend.log)
	}
	return backend
}

// OpenPoisonWrite opens the image at `path` and wraps it in a new backend. The
// image is opened read-write like any other so the device doesn't look
// different to the host; it's just never written.
func OpenPoisonWrite(
	path string, options Options, terminate Terminator,
) (*PoisonWriteBackend, error) {
	primary, err := store.Open(path, options.sectorSize(), false)
	if err != nil {
		return nil, err
	}
	return NewPoisonWrite(primary, options.logger(), terminate), nil
}

// ReadSector returns one sector of data from `lba`.
func (b *PoisonWriteBackend) ReadSector(lba uint64) ([]byte, error) {
	return b.readSector(lba)
}

// WriteSectors terminates the process before touching the image, whatever the
// address or data.
func (b *PoisonWriteBackend) WriteSectors(lba uint64, data []byte) error {
	b.terminate(lba)
	return vblock.ErrPoisoned.WithMessage(
		fmt.Sprintf("refused %d bytes at lba %d", len(data), lba))
}

// Write is the multi-block write path. See [vblock.WriteBlocks].
func (b *PoisonWriteBackend) Write(lba uint64, data []byte) error {
	return vblock.WriteBlocks(b, b.log, lba, data)
}

// Close releases the image. It's safe to call more than once.
func (b *PoisonWriteBackend) Close() error {
	return b.primary.Close()
}
