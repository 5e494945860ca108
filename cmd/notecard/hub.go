package main

import (
	"context"
	"math"

	"github.com/urfave/cli/v2"

	"github.com/kstaniek/go-notecard-server/internal/notecard"
	"github.com/kstaniek/go-notecard-server/internal/notecard/hub"
)

var hubCmd = &cli.Command{
	Name:  "hub",
	Usage: "Notehub connection settings",
	Subcommands: []*cli.Command{
		hubGetCmd,
		hubSetCmd,
	},
}

var hubGetCmd = &cli.Command{
	Name:  "get",
	Usage: "show the Notehub configuration",
	Action: func(c *cli.Context) error {
		return withDevice(c, func(ctx context.Context, nc *notecard.Notecard) error {
			h, err := hub.Fetch(ctx, nc)
			if err != nil {
				return err
			}
			return printResult(c.App.Writer, c.String("format"), h)
		})
	},
}

var hubSetCmd = &cli.Command{
	Name:  "set",
	Usage: "change the Notehub configuration; only given flags are sent",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "product", Usage: "product UID"},
		&cli.StringFlag{Name: "host", Usage: "Notehub host"},
		&cli.StringFlag{Name: "mode", Usage: "periodic|continuous|minimum|off|dfu"},
		&cli.StringFlag{Name: "sn", Usage: "serial number"},
		&cli.UintFlag{Name: "outbound", Usage: "max minutes between outbound syncs"},
		&cli.UintFlag{Name: "duration", Usage: "continuous session minutes"},
		&cli.StringFlag{Name: "voutbound", Usage: "voltage-variable outbound interval"},
		&cli.UintFlag{Name: "inbound", Usage: "max minutes between inbound syncs"},
		&cli.StringFlag{Name: "vinbound", Usage: "voltage-variable inbound interval"},
		&cli.BoolFlag{Name: "align", Usage: "align periodic syncs to the interval"},
		&cli.BoolFlag{Name: "sync", Usage: "sync immediately on inbound changes"},
	},
	Action: func(c *cli.Context) error {
		s, err := hubSetFromFlags(c)
		if err != nil {
			return err
		}
		return withDevice(c, func(ctx context.Context, nc *notecard.Notecard) error {
			if err := hub.Apply(ctx, nc, s); err != nil {
				return err
			}
			return printResult(c.App.Writer, c.String("format"), hub.Empty{})
		})
	},
}

func hubSetFromFlags(c *cli.Context) (hub.Set, error) {
	var s hub.Set
	str := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		v := c.String(name)
		return &v
	}
	boolean := func(name string) *bool {
		if !c.IsSet(name) {
			return nil
		}
		v := c.Bool(name)
		return &v
	}
	var firstErr error
	minutes := func(name string) *uint32 {
		if !c.IsSet(name) {
			return nil
		}
		v := c.Uint(name)
		if uint64(v) > math.MaxUint32 && firstErr == nil {
			firstErr = usagef("--%s out of range: %d", name, v)
		}
		m := uint32(v)
		return &m
	}
	s.Product = str("product")
	s.Host = str("host")
	s.SN = str("sn")
	s.VOutbound = str("voutbound")
	s.VInbound = str("vinbound")
	s.Outbound = minutes("outbound")
	s.Duration = minutes("duration")
	s.Inbound = minutes("inbound")
	s.Align = boolean("align")
	s.Sync = boolean("sync")
	if c.IsSet("mode") {
		m, err := hub.ParseMode(c.String("mode"))
		if err != nil {
			return s, usagef("%v", err)
		}
		s.Mode = &m
	}
	if firstErr != nil {
		return s, firstErr
	}
	return s, nil
}
