package backends_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/dargueta/vblock"
	"github.com/dargueta/vblock/backends"
	vblocktest "github.com/dargueta/vblock/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleImage__SectorCount(t *testing.T) {
	backend, _, _ := openSingle(t, 32, nil)
	assert.EqualValues(t, 31, backend.SectorCount())
	assert.EqualValues(t, testSectorSize, backend.SectorSize())
}

// A trailing partial sector is ignored when computing the sector count, and the
// last whole sector is reserved on top of that.
func TestSingleImage__SectorCountPartial(t *testing.T) {
	data := vblocktest.CreateRandomImage(1, testSectorSize*10+17, t)
	path := vblocktest.WriteImageFile(t, "odd.img", data)

	backend, err := backends.OpenSingleImage(
		path, backends.Options{SectorSize: testSectorSize})
	require.NoError(t, err)
	defer backend.Close()

	assert.EqualValues(t, 9, backend.SectorCount())
}

func TestSingleImage__SectorCountTinyImage(t *testing.T) {
	path := vblocktest.WriteImageFile(t, "tiny.img", []byte{1, 2, 3})
	backend, err := backends.OpenSingleImage(path, backends.Options{})
	require.NoError(t, err)
	defer backend.Close()

	assert.EqualValues(t, 0, backend.SectorCount())
}

func TestSingleImage__ReadAllSectors(t *testing.T) {
	backend, _, data := openSingle(t, 16, nil)

	for lba := uint64(0); lba < backend.SectorCount(); lba++ {
		chunk, err := backend.ReadSector(lba)
		require.NoErrorf(t, err, "failed to read sector %d", lba)
		assert.Lenf(t, chunk, testSectorSize, "sector %d is the wrong size", lba)
		assert.Equalf(t, sector(data, int(lba)), chunk, "sector %d is wrong", lba)
	}

	// The reserved last sector can still be read.
	chunk, err := backend.ReadSector(15)
	require.NoError(t, err, "failed to read reserved sector")
	assert.Equal(t, sector(data, 15), chunk)
}

func TestSingleImage__ReadOutOfRange(t *testing.T) {
	backend, _, _ := openSingle(t, 16, nil)

	_, err := backend.ReadSector(16)
	assert.ErrorIs(t, err, vblock.ErrOutOfRange)

	_, err = backend.ReadSector(1 << 62)
	assert.ErrorIs(t, err, vblock.ErrOutOfRange)

	// The largest LBA whose byte offset still fits in an int64.
	_, err = backend.ReadSector(uint64(math.MaxInt64) / testSectorSize)
	assert.ErrorIs(t, err, vblock.ErrOutOfRange)

	_, err = backend.ReadSector(math.MaxUint64)
	assert.ErrorIs(t, err, vblock.ErrOutOfRange)
}

// Writing less than a full sector leaves the rest of the sector untouched.
func TestSingleImage__ShortWriteRoundTrip(t *testing.T) {
	backend, path, data := openSingle(t, 16, nil)

	payload := []byte("short payload")
	require.NoError(t, backend.WriteSectors(3, payload))

	chunk, err := backend.ReadSector(3)
	require.NoError(t, err)
	assert.Equal(t, payload, chunk[:len(payload)])
	assert.Equal(t, sector(data, 3)[len(payload):], chunk[len(payload):])

	// The write is flushed before WriteSectors returns.
	onDisk := vblocktest.ReadImageFile(t, path)
	assert.Equal(t, chunk, sector(onDisk, 3))
}

func TestSingleImage__FullWriteRoundTrip(t *testing.T) {
	backend, _, _ := openSingle(t, 16, nil)

	payload := vblocktest.CreateRandomImage(testSectorSize, 1, t)
	require.NoError(t, backend.WriteSectors(0, payload))

	chunk, err := backend.ReadSector(0)
	require.NoError(t, err)
	assert.Equal(t, payload, chunk)
}

// Oversize writes are truncated to one sector and a warning is logged, even at
// the lowest verbosity.
func TestSingleImage__OversizeWriteTruncated(t *testing.T) {
	log, output := capturingLogger(vblock.VerbositySilent)
	backend, path, data := openSingle(t, 16, log)

	payload := vblocktest.CreateRandomImage(testSectorSize+9, 1, t)
	require.NoError(t, backend.WriteSectors(4, payload))

	onDisk := vblocktest.ReadImageFile(t, path)
	assert.Equal(t, payload[:testSectorSize], sector(onDisk, 4))
	assert.Equal(t, sector(data, 5), sector(onDisk, 5), "excess bytes leaked into next sector")

	assert.Contains(t, output.String(), "got 73 bytes of sector data; expected a max of 64")
	assert.Contains(t, output.String(), "level=warning")
}

// Only the bytes that are stored show up in the content trace.
func TestSingleImage__OversizeWriteTracesStoredBytes(t *testing.T) {
	log, output := capturingLogger(vblock.VerbosityContent)
	backend, _, _ := openSingle(t, 4, log)

	payload := make([]byte, testSectorSize+16)
	for i := testSectorSize; i < len(payload); i++ {
		payload[i] = 0xEE
	}
	require.NoError(t, backend.WriteSectors(2, payload))

	logs := output.String()
	assert.Contains(t, logs, "--> writing sector 2 [all zeroes]")
	assert.NotContains(t, logs, "ee ee")
}

func TestSingleImage__WriteOutOfRange(t *testing.T) {
	backend, path, data := openSingle(t, 4, nil)

	err := backend.WriteSectors(4, []byte("past the end"))
	assert.ErrorIs(t, err, vblock.ErrOutOfRange)

	err = backend.WriteSectors(uint64(math.MaxInt64)/testSectorSize, []byte("far past the end"))
	assert.ErrorIs(t, err, vblock.ErrOutOfRange)
	assert.Equal(t, data, vblocktest.ReadImageFile(t, path))
}

func TestSingleImage__ReadOnly(t *testing.T) {
	path, data := vblocktest.CreateRandomImageFile(t, "ro.img", testSectorSize, 4)
	backend, err := backends.OpenSingleImage(
		path, backends.Options{SectorSize: testSectorSize, ReadOnly: true})
	require.NoError(t, err)
	defer backend.Close()

	err = backend.WriteSectors(0, []byte("nope"))
	assert.ErrorIs(t, err, vblock.ErrReadOnly)
	assert.Equal(t, data, vblocktest.ReadImageFile(t, path))
}

func TestSingleImage__BatchedWrite(t *testing.T) {
	log, output := capturingLogger(vblock.VerbosityWrites)
	backend, path, data := openSingle(t, 16, log)
	model := vblocktest.NewImageModel(data)

	// Two and a half sectors: the half is dropped.
	payload := vblocktest.CreateRandomImage(1, testSectorSize*5/2, t)
	require.NoError(t, backend.Write(6, payload))
	vblocktest.ApplyToModel(t, model, 6*testSectorSize, payload[:2*testSectorSize])

	assert.Equal(
		t,
		vblocktest.ModelBytes(t, model, len(data)),
		vblocktest.ReadImageFile(t, path))
	assert.Contains(t, output.String(), "writing 2 blocks at lba 6")
}

func TestSingleImage__Diagnostics(t *testing.T) {
	log, output := capturingLogger(vblock.VerbosityContent)
	backend, _, _ := openSingle(t, 8, log)

	require.NoError(t, backend.WriteSectors(1, make([]byte, testSectorSize)))
	_, err := backend.ReadSector(1)
	require.NoError(t, err)
	_, err = backend.ReadSector(2)
	require.NoError(t, err)

	logs := output.String()
	assert.Contains(t, logs, "--> writing sector 1")
	assert.Contains(t, logs, "<-- reading sector 1 [all zeroes]")
	assert.Contains(t, logs, "<-- reading sector 2\\n00000000 :")
	assert.Contains(t, logs, "backend=single")
}

func TestSingleImage__QuietDiagnostics(t *testing.T) {
	log, output := capturingLogger(vblock.VerbositySilent)
	backend, _, _ := openSingle(t, 8, log)

	_, err := backend.ReadSector(1)
	require.NoError(t, err)
	require.NoError(t, backend.WriteSectors(1, []byte("x")))
	assert.Empty(t, output.String())
}

// Closing twice must not fail, and the second close must not write anything.
func TestSingleImage__CloseIdempotent(t *testing.T) {
	path, _ := vblocktest.CreateRandomImageFile(t, "close.img", testSectorSize, 8)
	backend, err := backends.OpenSingleImage(
		path, backends.Options{SectorSize: testSectorSize})
	require.NoError(t, err)

	require.NoError(t, backend.WriteSectors(2, bytes.Repeat([]byte{0x5A}, testSectorSize)))
	require.NoError(t, backend.Close())
	checksum := vblocktest.FileChecksum(t, path)

	require.NoError(t, backend.Close())
	assert.Equal(t, checksum, vblocktest.FileChecksum(t, path))
	assert.True(t, backend.Primary().Closed())

	_, err = backend.ReadSector(0)
	assert.ErrorIs(t, err, vblock.ErrClosed)
}
