package backends_test

import (
	"bytes"
	"testing"

	"github.com/dargueta/vblock"
	"github.com/dargueta/vblock/backends"
	vblocktest "github.com/dargueta/vblock/testing"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testSectorSize = 64

// capturingLogger returns a logger at the given verbosity writing into a buffer
// the test can inspect.
func capturingLogger(verbosity vblock.Verbosity) (*logrus.Entry, *bytes.Buffer) {
	output := &bytes.Buffer{}
	return vblock.NewLogger(verbosity, output), output
}

// openSingle creates a random image of `totalSectors` and opens a single-image
// backend on it. The backend is closed when the test ends.
func openSingle(
	t *testing.T, totalSectors uint, log *logrus.Entry,
) (*backends.SingleImageBackend, string, []byte) {
	path, data := vblocktest.CreateRandomImageFile(
		t, "single.img", testSectorSize, totalSectors)

	backend, err := backends.OpenSingleImage(
		path, backends.Options{SectorSize: testSectorSize, Logger: log})
	require.NoError(t, err, "failed to open single-image backend")
	t.Cleanup(func() { backend.Close() })
	return backend, path, data
}

func sector(data []byte, lba int) []byte {
	return data[lba*testSectorSize : (lba+1)*testSectorSize]
}
