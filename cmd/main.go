package main

import (
	"os"

	"github.com/dargueta/vblock"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "vblock",
		Usage: "Serve disk images as virtual block devices",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:    "sector-size",
				Usage:   "size of one sector, in bytes",
				Value:   vblock.DefaultSectorSize,
				EnvVars: []string{"VBLOCK_SECTOR_SIZE"},
			},
			&cli.IntFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "0 = warnings only, 1 = write block counts, 2 = every sector, 3 = sector contents",
				Value:   int(vblock.VerbositySectors),
				EnvVars: []string{"VBLOCK_VERBOSITY"},
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "don't output anything but warnings; overrides --verbose",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "single",
				Usage:     "Serve one image with a one-to-one sector mapping",
				Action:    serveSingle,
				ArgsUsage: "IMAGE",
				Flags:     []cli.Flag{traceFlag, readOnlyFlag},
			},
			{
				Name:      "splice",
				Usage:     "Serve an image with a window of sectors read from a second image",
				Action:    serveSpliced,
				ArgsUsage: "PRIMARY_IMAGE SECONDARY_IMAGE",
				Flags:     spliceFlags(),
			},
			{
				Name:      "poison",
				Usage:     "Serve an image and die as soon as anything writes to it",
				Action:    servePoisoned,
				ArgsUsage: "IMAGE",
				Flags:     []cli.Flag{traceFlag},
			},
			{
				Name:      "info",
				Usage:     "Show the geometry an image would be served with",
				Action:    showInfo,
				ArgsUsage: "IMAGE",
			},
			{
				Name:      "read",
				Usage:     "Dump one sector of an image",
				Action:    dumpSector,
				ArgsUsage: "IMAGE LBA",
			},
			{
				Name:   "profiles",
				Usage:  "List the predefined splice windows",
				Action: listProfiles,
			},
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		logrus.Fatalf("fatal error: %s", err.Error())
	}
}
