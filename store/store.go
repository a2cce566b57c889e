// Package store provides memory-mapped backing stores for virtual block devices.
//
// A Store maps an entire image file into memory. Writes land in the mapping and
// are tracked per sector so that Flush only has to sync the part of the file
// that actually changed.
package store

import (
	"fmt"
	"os"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/vblock"
	"github.com/hashicorp/go-multierror"
	"github.com/noxer/bytewriter"
	"golang.org/x/sys/unix"
)

// Store is a fixed-size, memory-mapped image file. The exposed accessors are
// informational; the mapping itself is never handed out.
//
// A Store is owned by exactly one backend and is not safe for concurrent use.
type Store struct {
	path       string
	file       *os.File
	region     []byte
	sectorSize uint
	readOnly   bool
	// dirtySectors has one bit per sector, including a trailing partial one.
	dirtySectors bitmap.Bitmap
	totalDirty   uint64
	// firstDirty and lastDirty bound the dirty sectors; both are -1 when clean.
	firstDirty int
	lastDirty  int
	closed     bool
}

// Open maps the image file at `path`. The file must already exist and must not
// be empty. Read-only stores are mapped without write permission and reject
// WriteAt.
func Open(path string, sectorSize uint, readOnly bool) (*Store, error) {
	if path == "" {
		return nil, vblock.ErrInvalidArgument.WithMessage("must pass a backing file path")
	}
	if sectorSize == 0 {
		return nil, vblock.ErrInvalidArgument.WithMessage("sector size must be nonzero")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, vblock.ErrIOFailed.Wrap(err)
	}
	if info.Size() <= 0 {
		return nil, vblock.ErrIOFailed.WithMessage(
			fmt.Sprintf("backing file %q is empty", path))
	}

	openMode := os.O_RDWR
	protection := unix.PROT_READ | unix.PROT_WRITE
	if readOnly {
		openMode = os.O_RDONLY
		protection = unix.PROT_READ
	}

	file, err := os.OpenFile(path, openMode, 0)
	if err != nil {
		return nil, vblock.ErrIOFailed.Wrap(err)
	}

	region, err := unix.Mmap(
		int(file.Fd()), 0, int(info.Size()), protection, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, vblock.ErrIOFailed.Wrap(
			fmt.Errorf("can't map %q (%d bytes): %w", path, info.Size(), err))
	}

	totalSectors := (uint64(len(region)) + uint64(sectorSize) - 1) / uint64(sectorSize)
	return &Store{
		path:         path,
		file:         file,
		region:       region,
		sectorSize:   sectorSize,
		readOnly:     readOnly,
		dirtySectors: bitmap.New(int(totalSectors)),
		firstDirty:   -1,
		lastDirty:    -1,
	}, nil
}

// Path returns the path the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Len returns the size of the mapped region, in bytes. It's zero once the store
// is closed.
func (s *Store) Len() int64 {
	return int64(len(s.region))
}

// SectorSize returns the sector size the store was opened with.
func (s *Store) SectorSize() uint {
	return s.sectorSize
}

// Sectors returns the number of whole sectors in the store. A trailing partial
// sector isn't counted.
func (s *Store) Sectors() uint64 {
	return uint64(len(s.region)) / uint64(s.sectorSize)
}

func (s *Store) ReadOnly() bool {
	return s.readOnly
}

func (s *Store) Closed() bool {
	return s.closed
}

// DirtySectors returns the number of sectors written since the last flush.
func (s *Store) DirtySectors() uint64 {
	return s.totalDirty
}

func (s *Store) checkBounds(offset int64, length int) error {
	if s.closed {
		return vblock.ErrClosed.WithMessage(s.path)
	}
	size := int64(len(s.region))
	if offset < 0 || length < 0 || int64(length) > size || offset > size-int64(length) {
		return vblock.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't access %d bytes at offset %d of %q; range not in [0, %d)",
				length,
				offset,
				s.path,
				len(s.region),
			),
		)
	}
	return nil
}

// ReadAt returns a copy of `length` bytes beginning at byte `offset`.
func (s *Store) ReadAt(offset int64, length int) ([]byte, error) {
	err := s.checkBounds(offset, length)
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, length)
	copy(buffer, s.region[offset:offset+int64(length)])
	return buffer, nil
}

// WriteAt copies `data` into the mapping at byte `offset`. The change isn't
// guaranteed to reach the file until Flush or Close is called.
func (s *Store) WriteAt(offset int64, data []byte) error {
	err := s.checkBounds(offset, len(data))
	if err != nil {
		return err
	}
	if s.readOnly {
		return vblock.ErrReadOnly.WithMessage(s.path)
	}
	if len(data) == 0 {
		return nil
	}

	writer := bytewriter.New(s.region[offset : offset+int64(len(data))])
	_, err = writer.Write(data)
	if err != nil {
		return vblock.ErrIOFailed.Wrap(err)
	}

	firstSector := int(offset / int64(s.sectorSize))
	lastSector := int((offset + int64(len(data)) - 1) / int64(s.sectorSize))
	for i := firstSector; i <= lastSector; i++ {
		if !s.dirtySectors.Get(i) {
			s.dirtySectors.Set(i, true)
			s.totalDirty++
		}
	}
	if s.firstDirty < 0 || firstSector < s.firstDirty {
		s.firstDirty = firstSector
	}
	if lastSector > s.lastDirty {
		s.lastDirty = lastSector
	}
	return nil
}

// dirtySpan returns the byte range covering every dirty sector, with the start
// rounded down to a page boundary as msync requires.
func (s *Store) dirtySpan() (int, int, bool) {
	if s.firstDirty < 0 {
		return 0, 0, false
	}

	pageSize := os.Getpagesize()
	start := (s.firstDirty * int(s.sectorSize) / pageSize) * pageSize
	end := (s.lastDirty + 1) * int(s.sectorSize)
	if end > len(s.region) {
		end = len(s.region)
	}
	return start, end, true
}

// Flush synchronously writes all dirty sectors back to the file. It does nothing
// if no sectors have been written since the last flush.
func (s *Store) Flush() error {
	if s.closed {
		return vblock.ErrClosed.WithMessage(s.path)
	}

	start, end, dirty := s.dirtySpan()
	if !dirty {
		return nil
	}

	err := unix.Msync(s.region[start:end], unix.MS_SYNC)
	if err != nil {
		return vblock.ErrIOFailed.Wrap(fmt.Errorf("msync %q: %w", s.path, err))
	}

	for i := s.firstDirty; i <= s.lastDirty; i++ {
		s.dirtySectors.Set(i, false)
	}
	s.totalDirty = 0
	s.firstDirty = -1
	s.lastDirty = -1
	return nil
}

// Close flushes the store, unmaps it, and closes the file. Calling Close on a
// closed store does nothing.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}

	var result error
	if err := s.Flush(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := unix.Munmap(s.region); err != nil {
		result = multierror.Append(result, vblock.ErrIOFailed.Wrap(err))
	}
	if err := s.file.Close(); err != nil {
		result = multierror.Append(result, vblock.ErrIOFailed.Wrap(err))
	}

	s.region = nil
	s.closed = true
	return result
}
