// Package replay implements a transport that plays back a recorded trace of
// initiator commands against a backend.
//
// A trace is a CSV file with the columns `op`, `lba`, `count`, `data`, and
// `expect`:
//
//   - `read` reads `count` sectors (at least one) starting at `lba`. If `expect`
//     is set, it's hex and must match the start of the data read.
//   - `write` writes the hex-encoded `data` starting at `lba` using the backend's
//     multi-block write path.
//   - `capacity` logs the sector count, like a READ CAPACITY command.
//
// Replay stops at the first failing command.
package replay

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/dargueta/vblock"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
)

// Command is one row of a trace.
type Command struct {
	Op     string `csv:"op"`
	LBA    uint64 `csv:"lba"`
	Count  uint   `csv:"count"`
	Data   string `csv:"data"`
	Expect string `csv:"expect"`
}

// BatchWriter is implemented by backends with their own multi-block write path.
type BatchWriter interface {
	Write(lba uint64, data []byte) error
}

// Transport replays a list of commands. It satisfies session.Transport.
type Transport struct {
	commands []Command
	backend  vblock.BlockBackend
	log      *logrus.Entry

	// SectorsRead and SectorsWritten count the sectors transferred so far.
	SectorsRead    uint64
	SectorsWritten uint64
}

// New creates a transport that replays `commands` in order.
func New(commands []Command, log *logrus.Entry) *Transport {
	if log == nil {
		log = vblock.DiscardLogger()
	}
	return &Transport{
		commands: commands,
		log:      log.WithField("transport", "replay"),
	}
}

// Load reads a trace from CSV.
func Load(reader io.Reader, log *logrus.Entry) (*Transport, error) {
	var commands []Command
	err := gocsv.Unmarshal(reader, &commands)
	if err != nil {
		return nil, vblock.ErrInvalidArgument.Wrap(err)
	}
	return New(commands, log), nil
}

// Commands returns the trace being replayed.
func (t *Transport) Commands() []Command {
	return t.commands
}

func (t *Transport) Connect(backend vblock.BlockBackend) error {
	if t.backend != nil {
		return vblock.ErrInvalidArgument.WithMessage("replay transport already connected")
	}
	t.backend = backend
	t.log.WithField("commands", len(t.commands)).Info("replaying trace")
	return nil
}

func (t *Transport) Disconnect() error {
	t.backend = nil
	return nil
}

// Run executes every command in order. It returns early if the context is
// canceled or a command fails.
func (t *Transport) Run(ctx context.Context) error {
	if t.backend == nil {
		return vblock.ErrInvalidArgument.WithMessage("replay transport not connected")
	}

	for i, command := range t.commands {
		err := ctx.Err()
		if err != nil {
			return err
		}

		err = t.execute(command)
		if err != nil {
			return fmt.Errorf(
				"trace row %d (%s at lba %d): %w", i+1, command.Op, command.LBA, err)
		}
	}
	return nil
}

func (t *Transport) execute(command Command) error {
	switch strings.ToLower(strings.TrimSpace(command.Op)) {
	case "read":
		return t.read(command)
	case "write":
		return t.write(command)
	case "capacity":
		t.log.WithFields(logrus.Fields{
			"sectors":     t.backend.SectorCount(),
			"sector_size": t.backend.SectorSize(),
		}).Info("capacity")
		return nil
	default:
		return vblock.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown trace operation %q", command.Op))
	}
}

func (t *Transport) read(command Command) error {
	count := uint64(command.Count)
	if count == 0 {
		count = 1
	}

	var data []byte
	for i := uint64(0); i < count; i++ {
		chunk, err := t.backend.ReadSector(command.LBA + i)
		if err != nil {
			return err
		}
		data = append(data, chunk...)
		t.SectorsRead++
	}

	if command.Expect == "" {
		return nil
	}
	expected, err := hex.DecodeString(command.Expect)
	if err != nil {
		return vblock.ErrInvalidArgument.Wrap(err)
	}
	if !bytes.HasPrefix(data, expected) {
		return fmt.Errorf("read data doesn't match expected %d bytes", len(expected))
	}
	return nil
}

func (t *Transport) write(command Command) error {
	data, err := hex.DecodeString(command.Data)
	if err != nil {
		return vblock.ErrInvalidArgument.Wrap(err)
	}

	if writer, ok := t.backend.(BatchWriter); ok {
		err = writer.Write(command.LBA, data)
	} else {
		err = vblock.WriteBlocks(t.backend, t.log, command.LBA, data)
	}
	if err != nil {
		return err
	}

	t.SectorsWritten += uint64(len(data)) / uint64(t.backend.SectorSize())
	return nil
}
