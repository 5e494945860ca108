package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/kstaniek/go-notecard-server/internal/notecard"
)

var resetCmd = &cli.Command{
	Name:  "reset",
	Usage: "resynchronize the serial link",
	Action: func(c *cli.Context) error {
		return withDevice(c, func(ctx context.Context, nc *notecard.Notecard) error {
			if err := nc.Reset(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.App.Writer, "%s notecard synchronized\n", green("OK"))
			return nil
		})
	},
}

var requestCmd = &cli.Command{
	Name:      "request",
	Aliases:   []string{"req"},
	Usage:     "send one JSON request and print the response",
	ArgsUsage: "<json>",
	Action: func(c *cli.Context) error {
		if c.NArg() == 0 {
			return usagef("missing request, e.g. '{\"req\":\"card.version\"}'")
		}
		line := bytes.TrimSpace([]byte(strings.Join(c.Args().Slice(), " ")))
		if len(line) == 0 || line[0] != '{' || !json.Valid(line) {
			return usagef("request must be a JSON object")
		}
		return withDevice(c, func(ctx context.Context, nc *notecard.Notecard) error {
			res, err := notecard.Transaction[json.RawMessage](ctx, nc, notecard.Raw(line))
			if err != nil {
				return err
			}
			return printResult(c.App.Writer, c.String("format"), res)
		})
	},
}
