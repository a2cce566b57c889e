// Package testing contains helpers for building backing images in tests.
package testing

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// CreateRandomImage creates an image with the given number of sectors and bytes
// per sector. It is guaranteed to either return a valid slice or fail the test
// and abort.
func CreateRandomImage(bytesPerSector, totalSectors uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerSector*totalSectors)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d sectors of size %d with random bytes",
		totalSectors,
		bytesPerSector,
	)
	return backingData
}

// WriteImageFile writes `data` to a new file in the test's temporary directory
// and returns its path. The file is removed automatically when the test ends.
func WriteImageFile(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, data, 0o600)
	require.NoErrorf(t, err, "failed to write image file %q", path)
	return path
}

// CreateRandomImageFile combines [CreateRandomImage] and [WriteImageFile]. It
// returns the path to the image file and a copy of its contents.
func CreateRandomImageFile(
	t *testing.T, name string, bytesPerSector, totalSectors uint,
) (string, []byte) {
	data := CreateRandomImage(bytesPerSector, totalSectors, t)
	path := WriteImageFile(t, name, data)
	return path, append([]byte(nil), data...)
}

// ReadImageFile returns the current on-disk contents of an image file.
func ReadImageFile(t *testing.T, path string) []byte {
	data, err := os.ReadFile(path)
	require.NoErrorf(t, err, "failed to read image file %q", path)
	return data
}

// FileChecksum returns the SHA-256 digest of the file at `path`.
func FileChecksum(t *testing.T, path string) [sha256.Size]byte {
	return sha256.Sum256(ReadImageFile(t, path))
}

// NewImageModel returns an in-memory stream over a copy of `data`. Tests apply
// the same writes to the model as to a backend and then compare the results.
//
//   - Writes to the stream do not affect `data`.
//   - The stream's size is fixed to len(data). Writing past the end triggers an
//     error.
func NewImageModel(data []byte) io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(append([]byte(nil), data...))
}

// ModelBytes returns the first `size` bytes of a model created by
// [NewImageModel].
func ModelBytes(t *testing.T, model io.ReadWriteSeeker, size int) []byte {
	_, err := model.Seek(0, io.SeekStart)
	require.NoError(t, err, "failed to rewind image model")

	contents := make([]byte, size)
	_, err = io.ReadFull(model, contents)
	require.NoError(t, err, "failed to read image model")
	return contents
}

// ApplyToModel writes `data` to the model at byte offset `offset`.
func ApplyToModel(t *testing.T, model io.ReadWriteSeeker, offset int64, data []byte) {
	_, err := model.Seek(offset, io.SeekStart)
	require.NoErrorf(t, err, "failed to seek model to %d", offset)

	_, err = model.Write(data)
	require.NoErrorf(t, err, "failed to write %d bytes to model at %d", len(data), offset)
}
