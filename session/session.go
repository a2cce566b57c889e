// Package session runs a transport against a backend and guarantees the backend
// is torn down exactly once, however the run ends.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/dargueta/vblock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Transport is the initiator-facing side of a virtual device, such as a USB
// mass-storage adapter. It turns protocol commands into backend calls.
type Transport interface {
	// Connect attaches the backend and makes the device visible to the host.
	Connect(backend vblock.BlockBackend) error
	// Run services commands one at a time until the context is canceled or the
	// transport has nothing left to do.
	Run(ctx context.Context) error
	// Disconnect detaches the device from the host.
	Disconnect() error
}

// Session ties one transport to one backend for the lifetime of a connection.
type Session struct {
	ID        uuid.UUID
	transport Transport
	backend   vblock.BlockBackend
	log       *logrus.Entry

	closeOnce sync.Once
	closeErr  error
}

// New creates a session. The session takes ownership of `backend`.
func New(transport Transport, backend vblock.BlockBackend, log *logrus.Entry) *Session {
	if log == nil {
		log = vblock.DiscardLogger()
	}
	id := uuid.New()
	return &Session{
		ID:        id,
		transport: transport,
		backend:   backend,
		log:       log.WithField("session", id.String()),
	}
}

// Serve connects the transport, runs it until it finishes or `ctx` is canceled,
// then disconnects it and closes the backend. Cancellation is a normal shutdown
// and isn't reported as an error.
func (s *Session) Serve(ctx context.Context) error {
	var result error

	s.log.WithField("sectors", s.backend.SectorCount()).Info("connecting")
	err := s.transport.Connect(s.backend)
	if err != nil {
		result = multierror.Append(result, err)
	} else {
		err = s.transport.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			result = multierror.Append(result, err)
		}

		s.log.Info("disconnecting")
		err = s.transport.Disconnect()
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	err = s.Close()
	if err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// Close closes the backend. Only the first call does anything; later calls
// return the same result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.log.Debug("closing backend")
		s.closeErr = s.backend.Close()
	})
	return s.closeErr
}

// Serve is shorthand for New(transport, backend, log).Serve(ctx).
func Serve(
	ctx context.Context, transport Transport, backend vblock.BlockBackend, log *logrus.Entry,
) error {
	return New(transport, backend, log).Serve(ctx)
}

// Idle is a transport that does nothing but hold the device open until its
// context is canceled.
type Idle struct{}

func (Idle) Connect(vblock.BlockBackend) error { return nil }
func (Idle) Disconnect() error                 { return nil }

func (Idle) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
