package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dargueta/vblock"
	"github.com/dargueta/vblock/backends"
	"github.com/dargueta/vblock/profiles"
	"github.com/dargueta/vblock/session"
	"github.com/dargueta/vblock/store"
	"github.com/dargueta/vblock/transport/replay"
	"github.com/dargueta/vblock/utilities/hexdump"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// The legacy splice tool always redirected the same four sectors.
const defaultProfile = "fat32-to-ntfs"

var traceFlag = &cli.PathFlag{
	Name:  "trace",
	Usage: "replay initiator commands from a CSV `FILE` instead of waiting for an interrupt",
}

var readOnlyFlag = &cli.BoolFlag{
	Name:  "read-only",
	Usage: "refuse writes instead of applying them",
}

// mustGetProfile looks up a built-in profile and panics if it doesn't exist.
func mustGetProfile(slug string) profiles.Profile {
	profile, err := profiles.Get(slug)
	if err != nil {
		panic(fmt.Errorf("default splice window: %w", err))
	}
	return profile
}

func spliceFlags() []cli.Flag {
	fallback := mustGetProfile(defaultProfile)
	return []cli.Flag{
		traceFlag,
		readOnlyFlag,
		&cli.Uint64Flag{
			Name:  "redirect-start",
			Usage: "first LBA of the redirected window",
			Value: fallback.Start,
		},
		&cli.Uint64Flag{
			Name:  "redirect-end",
			Usage: "last LBA of the redirected window (inclusive)",
			Value: fallback.End,
		},
		&cli.Int64Flag{
			Name:  "redirect-target",
			Usage: "LBA in the secondary image that the window's first sector maps to",
			Value: fallback.Target,
		},
		&cli.StringFlag{
			Name:  "profile",
			Usage: "use a predefined window (see the `profiles` command)",
		},
		&cli.PathFlag{
			Name:  "rules",
			Usage: "read remap rules from a CSV `FILE` with columns start,end,target",
		},
	}
}

func usageError(context *cli.Context, expectedArgs int) error {
	if context.NArg() == expectedArgs {
		return nil
	}
	return cli.Exit(
		fmt.Sprintf(
			"Usage: %s %s %s",
			context.App.Name,
			context.Command.Name,
			context.Command.ArgsUsage),
		1)
}

func newLogger(context *cli.Context) *logrus.Entry {
	verbosity := vblock.Verbosity(context.Int("verbose"))
	if context.Bool("quiet") {
		verbosity = vblock.VerbositySilent
	}
	return vblock.NewLogger(verbosity, os.Stderr)
}

func backendOptions(context *cli.Context, log *logrus.Entry) backends.Options {
	return backends.Options{
		SectorSize: context.Uint("sector-size"),
		ReadOnly:   context.Bool("read-only"),
		Logger:     log,
	}
}

// serve runs the backend until it's interrupted or, if a trace was given, until
// the trace has been replayed. The backend is closed either way.
func serve(context *cli.Context, backend vblock.BlockBackend, log *logrus.Entry) error {
	var transport session.Transport = session.Idle{}

	tracePath := context.Path("trace")
	if tracePath != "" {
		traceFile, err := os.Open(tracePath)
		if err != nil {
			backend.Close()
			return err
		}
		defer traceFile.Close()

		transport, err = replay.Load(traceFile, log)
		if err != nil {
			backend.Close()
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return session.Serve(ctx, transport, backend, log)
}

func serveSingle(context *cli.Context) error {
	if err := usageError(context, 1); err != nil {
		return err
	}
	log := newLogger(context)
	log.WithFields(logrus.Fields{
		"disk":      context.Args().Get(0),
		"read_only": context.Bool("read-only"),
	}).Info("using disk")

	backend, err := backends.OpenSingleImage(
		context.Args().Get(0), backendOptions(context, log))
	if err != nil {
		return err
	}
	return serve(context, backend, log)
}

func loadRemapTable(context *cli.Context) (backends.RemapTable, error) {
	rulesPath := context.Path("rules")
	if rulesPath != "" {
		rulesFile, err := os.Open(rulesPath)
		if err != nil {
			return nil, err
		}
		defer rulesFile.Close()
		return backends.LoadRemapTable(rulesFile)
	}

	slug := context.String("profile")
	if slug != "" {
		profile, err := profiles.Get(slug)
		if err != nil {
			return nil, err
		}
		return profile.Table(), nil
	}

	return backends.NewRemapTable(
		context.Uint64("redirect-start"),
		context.Uint64("redirect-end"),
		context.Int64("redirect-target"),
	), nil
}

func serveSpliced(context *cli.Context) error {
	if err := usageError(context, 2); err != nil {
		return err
	}
	log := newLogger(context)

	table, err := loadRemapTable(context)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"primary":   context.Args().Get(0),
		"secondary": context.Args().Get(1),
	}).Info("using disks")

	backend, err := backends.OpenSplicedImage(
		context.Args().Get(0),
		context.Args().Get(1),
		table,
		backendOptions(context, log),
	)
	if err != nil {
		return err
	}
	return serve(context, backend, log)
}

func servePoisoned(context *cli.Context) error {
	if err := usageError(context, 1); err != nil {
		return err
	}
	log := newLogger(context)
	log.WithField("disk", context.Args().Get(0)).Info("using disk; any write is fatal")

	backend, err := backends.OpenPoisonWrite(
		context.Args().Get(0), backendOptions(context, log), nil)
	if err != nil {
		return err
	}
	return serve(context, backend, log)
}

func showInfo(context *cli.Context) error {
	if err := usageError(context, 1); err != nil {
		return err
	}

	image, err := store.Open(context.Args().Get(0), context.Uint("sector-size"), true)
	if err != nil {
		return err
	}
	defer image.Close()

	backend := backends.NewSingleImage(image, newLogger(context))
	out := context.App.Writer
	fmt.Fprintf(out, "path:             %s\n", image.Path())
	fmt.Fprintf(out, "size:             %d bytes\n", image.Len())
	fmt.Fprintf(out, "sector size:      %d bytes\n", image.SectorSize())
	fmt.Fprintf(out, "whole sectors:    %d\n", image.Sectors())
	fmt.Fprintf(out, "reported sectors: %d\n", backend.SectorCount())
	if image.Len()%int64(image.SectorSize()) != 0 {
		fmt.Fprintf(
			out,
			"trailing bytes:   %d (ignored)\n",
			image.Len()%int64(image.SectorSize()))
	}
	return nil
}

func dumpSector(context *cli.Context) error {
	if err := usageError(context, 2); err != nil {
		return err
	}

	lba, err := strconv.ParseUint(context.Args().Get(1), 0, 64)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid LBA %q: %s", context.Args().Get(1), err), 1)
	}

	options := backendOptions(context, newLogger(context))
	options.ReadOnly = true
	backend, err := backends.OpenSingleImage(context.Args().Get(0), options)
	if err != nil {
		return err
	}
	defer backend.Close()

	data, err := backend.ReadSector(lba)
	if err != nil {
		return err
	}
	fmt.Fprint(context.App.Writer, hexdump.Dump(data, 16))
	return nil
}

func listProfiles(context *cli.Context) error {
	for _, profile := range profiles.List() {
		fmt.Fprintf(
			context.App.Writer,
			"%-16s [%d, %d] -> %d  %s\n",
			profile.Slug,
			profile.Start,
			profile.End,
			profile.Target,
			profile.Name)
	}
	return nil
}
