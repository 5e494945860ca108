// Package hub holds the hub.* requests: Notehub connection settings.
package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kstaniek/go-notecard-server/internal/notecard"
)

const (
	ReqGet = "hub.get"
	ReqSet = "hub.set"
)

// Mode is the Notehub connection mode.
type Mode string

const (
	ModePeriodic   Mode = "periodic"
	ModeContinuous Mode = "continuous"
	ModeMinimum    Mode = "minimum"
	ModeOff        Mode = "off"
	ModeDFU        Mode = "dfu"
)

// ParseMode accepts the lowercase wire names.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePeriodic, ModeContinuous, ModeMinimum, ModeOff, ModeDFU:
		return m, nil
	}
	return "", fmt.Errorf("unknown hub mode %q", s)
}

// Get requests the current Notehub configuration.
type Get struct{}

func (Get) Name() string { return ReqGet }

func (Get) MarshalJSON() ([]byte, error) { return []byte(`{"req":"hub.get"}`), nil }

func (Get) Decode(data []byte) (Hub, error) { return notecard.DecodeJSON[Hub](data) }

// Set changes Notehub configuration. Nil fields are left out of the request.
// Product is always sent, as null when unset.
type Set struct {
	Product   *string `json:"product"`
	Host      *string `json:"host,omitempty"`
	Mode      *Mode   `json:"mode,omitempty"`
	SN        *string `json:"sn,omitempty"`
	Outbound  *uint32 `json:"outbound,omitempty"`
	Duration  *uint32 `json:"duration,omitempty"`
	VOutbound *string `json:"voutbound,omitempty"`
	Inbound   *uint32 `json:"inbound,omitempty"`
	VInbound  *string `json:"vinbound,omitempty"`
	Align     *bool   `json:"align,omitempty"`
	Sync      *bool   `json:"sync,omitempty"`
}

func (Set) Name() string { return ReqSet }

func (s Set) MarshalJSON() ([]byte, error) {
	type fields Set
	return json.Marshal(struct {
		Req string `json:"req"`
		fields
	}{ReqSet, fields(s)})
}

func (Set) Decode(data []byte) (Empty, error) { return notecard.DecodeJSON[Empty](data) }

// Empty is the result of requests that only acknowledge.
type Empty struct{}

// Hub is the hub.get result. Absent fields stay nil.
type Hub struct {
	Device    *string  `json:"device,omitempty" yaml:"device,omitempty"`
	Product   *string  `json:"product,omitempty" yaml:"product,omitempty"`
	Mode      *Mode    `json:"mode,omitempty" yaml:"mode,omitempty"`
	Outbound  *uint32  `json:"outbound,omitempty" yaml:"outbound,omitempty"`
	VOutbound *float32 `json:"voutbound,omitempty" yaml:"voutbound,omitempty"`
	Inbound   *uint32  `json:"inbound,omitempty" yaml:"inbound,omitempty"`
	VInbound  *float32 `json:"vinbound,omitempty" yaml:"vinbound,omitempty"`
	Host      *string  `json:"host,omitempty" yaml:"host,omitempty"`
	SN        *string  `json:"sn,omitempty" yaml:"sn,omitempty"`
	Sync      *bool    `json:"sync,omitempty" yaml:"sync,omitempty"`
}

// Fetch runs hub.get.
func Fetch(ctx context.Context, n *notecard.Notecard) (Hub, error) {
	return notecard.Transaction[Hub](ctx, n, Get{})
}

// Apply runs hub.set.
func Apply(ctx context.Context, n *notecard.Notecard, s Set) error {
	_, err := notecard.Transaction[Empty](ctx, n, s)
	return err
}
