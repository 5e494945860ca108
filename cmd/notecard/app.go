package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kstaniek/go-notecard-server/internal/logging"
	"github.com/kstaniek/go-notecard-server/internal/notecard"
)

func newApp(stdout, stderr io.Writer) *cli.App {
	def := notecard.DefaultConfig()
	app := cli.NewApp()
	app.Name = "notecard"
	app.Usage = "send requests to a Notecard over its serial port"
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Writer = stdout
	app.ErrWriter = stderr
	// run reports errors and picks the exit code.
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Value:   "/dev/ttyUSB0",
			Usage:   "serial device of the Notecard",
			EnvVars: []string{"NOTECARD_PORT"},
		},
		&cli.IntFlag{
			Name:    "baud",
			Aliases: []string{"b"},
			Value:   115200,
			Usage:   "serial baud rate",
			EnvVars: []string{"NOTECARD_BAUD"},
		},
		&cli.DurationFlag{
			Name:  "read-timeout",
			Value: 50 * time.Millisecond,
			Usage: "serial read timeout, must be > 0",
		},
		&cli.DurationFlag{
			Name:  "response-timeout",
			Value: def.ResponseTimeout,
			Usage: "how long to wait for a response (0 waits forever)",
		},
		&cli.IntFlag{
			Name:  "retry",
			Value: def.TransactionRetry,
			Usage: "resynchronization attempts",
		},
		&cli.BoolFlag{
			Name:  "strict-framing",
			Usage: "complete a response only when it ends with CRLF",
		},
		&cli.BoolFlag{
			Name:  "lock",
			Value: true,
			Usage: "take an exclusive lock on the serial device",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"o"},
			Value:   formatJSON,
			Usage:   "result format: json|yaml",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "enable debug logging",
		},
	}
	app.Before = func(c *cli.Context) error {
		switch c.String("format") {
		case formatJSON, formatYAML:
		default:
			return usagef("unknown format %q (want json or yaml)", c.String("format"))
		}
		level := slog.LevelWarn
		if c.Bool("verbose") {
			level = slog.LevelDebug
		}
		logging.Set(logging.New(logging.FormatConsole, level, c.App.ErrWriter))
		return nil
	}
	app.Commands = cli.Commands{
		resetCmd,
		requestCmd,
		hubCmd,
	}
	return app
}
