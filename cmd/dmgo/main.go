package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/voss-labs/dmgo/dmg"
)

func main() {
	app := cli.NewApp()
	app.Name = "dmgo"
	app.Description = "A cycle-accurate DMG Game Boy emulator core"
	app.Usage = "dmgo [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "frames",
			Usage: "Run exactly N frames headlessly then exit (0 = run until interrupted)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "save-dir",
			Usage: "Directory to read/write the .sav file (default: next to the ROM)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("dmgo exiting", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		cli.ShowAppHelp(c)
		return errors.New("no ROM path provided")
	}
	romPath := c.Args().Get(0)

	console, err := dmg.LoadROM(romPath)
	if err != nil {
		return err
	}

	savePath := savePathFor(romPath, c.String("save-dir"))
	if data, err := os.ReadFile(savePath); err == nil {
		console.LoadRAM(data)
		slog.Debug("loaded save RAM", "path", savePath, "bytes", len(data))
	}

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	defer signal.Stop(interrupted)

	frames := c.Int("frames")
	count := 0
loop:
	for frames <= 0 || count < frames {
		select {
		case <-interrupted:
			break loop
		default:
		}
		console.RunFrame()
		count++
	}

	if ram := console.SaveRAM(); ram != nil {
		if err := os.WriteFile(savePath, ram, 0644); err != nil {
			return err
		}
		slog.Debug("wrote save RAM", "path", savePath, "bytes", len(ram))
	}

	return nil
}

// savePathFor derives the .sav path for a ROM, honoring --save-dir when set.
func savePathFor(romPath, saveDir string) string {
	base := filepath.Base(romPath)
	name := base[:len(base)-len(filepath.Ext(base))] + ".sav"
	if saveDir == "" {
		return filepath.Join(filepath.Dir(romPath), name)
	}
	return filepath.Join(saveDir, name)
}
