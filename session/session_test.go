package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dargueta/vblock"
	"github.com/dargueta/vblock/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	closes int
	err    error
}

func (b *fakeBackend) SectorCount() uint64 { return 7 }
func (b *fakeBackend) SectorSize() uint    { return 512 }

func (b *fakeBackend) ReadSector(lba uint64) ([]byte, error) {
	return make([]byte, 512), nil
}

func (b *fakeBackend) WriteSectors(lba uint64, data []byte) error {
	return nil
}

func (b *fakeBackend) Close() error {
	b.closes++
	return b.err
}

type fakeTransport struct {
	calls      []string
	connectErr error
	runErr     error
	attached   vblock.BlockBackend
}

func (t *fakeTransport) Connect(backend vblock.BlockBackend) error {
	t.calls = append(t.calls, "connect")
	t.attached = backend
	return t.connectErr
}

func (t *fakeTransport) Run(ctx context.Context) error {
	t.calls = append(t.calls, "run")
	return t.runErr
}

func (t *fakeTransport) Disconnect() error {
	t.calls = append(t.calls, "disconnect")
	return nil
}

func TestServe__NormalLifecycle(t *testing.T) {
	backend := &fakeBackend{}
	transport := &fakeTransport{}

	err := session.Serve(context.Background(), transport, backend, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"connect", "run", "disconnect"}, transport.calls)
	assert.Same(t, backend, transport.attached)
	assert.Equal(t, 1, backend.closes)
}

func TestServe__CancellationIsNotAnError(t *testing.T) {
	backend := &fakeBackend{}
	transport := &fakeTransport{runErr: context.Canceled}

	err := session.Serve(context.Background(), transport, backend, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, backend.closes)
}

func TestServe__RunFailureStillTearsDown(t *testing.T) {
	backend := &fakeBackend{}
	runErr := errors.New("initiator went away")
	transport := &fakeTransport{runErr: runErr}

	err := session.Serve(context.Background(), transport, backend, nil)
	assert.ErrorIs(t, err, runErr)
	assert.Equal(t, []string{"connect", "run", "disconnect"}, transport.calls)
	assert.Equal(t, 1, backend.closes)
}

func TestServe__ConnectFailureSkipsRun(t *testing.T) {
	backend := &fakeBackend{}
	connectErr := errors.New("no device controller")
	transport := &fakeTransport{connectErr: connectErr}

	err := session.Serve(context.Background(), transport, backend, nil)
	assert.ErrorIs(t, err, connectErr)
	assert.Equal(t, []string{"connect"}, transport.calls)
	assert.Equal(t, 1, backend.closes)
}

func TestSession__CloseOnlyOnce(t *testing.T) {
	closeErr := errors.New("flush failed")
	backend := &fakeBackend{err: closeErr}
	s := session.New(&fakeTransport{}, backend, nil)

	err := s.Serve(context.Background())
	assert.ErrorIs(t, err, closeErr)
	assert.ErrorIs(t, s.Close(), closeErr)
	assert.ErrorIs(t, s.Close(), closeErr)
	assert.Equal(t, 1, backend.closes)
}

func TestSession__UniqueIDs(t *testing.T) {
	a := session.New(&fakeTransport{}, &fakeBackend{}, nil)
	b := session.New(&fakeTransport{}, &fakeBackend{}, nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestIdle__RunsUntilCanceled(t *testing.T) {
	backend := &fakeBackend{}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := session.Serve(ctx, session.Idle{}, backend, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, backend.closes)
}
