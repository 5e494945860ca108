package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kstaniek/go-notecard-server/internal/notecard"
	"github.com/kstaniek/go-notecard-server/internal/notecard/notecardtest"
)

func TestFetchPartialResult(t *testing.T) {
	card := notecardtest.NewCard(func(line []byte) []byte {
		assert.Equal(t, "{\"req\":\"hub.get\"}\n", string(line))
		return []byte("{\"device\":\"dev:1\"}\r\n")
	})
	n := notecard.New(card, &notecardtest.Delay{})

	h, err := Fetch(context.Background(), n)
	require.NoError(t, err)
	require.NotNil(t, h.Device)
	assert.Equal(t, "dev:1", *h.Device)
	assert.Nil(t, h.Product)
	assert.Nil(t, h.Mode)
	assert.Nil(t, h.Outbound)
	assert.Nil(t, h.VOutbound)
	assert.Nil(t, h.Inbound)
	assert.Nil(t, h.VInbound)
	assert.Nil(t, h.Host)
	assert.Nil(t, h.SN)
	assert.Nil(t, h.Sync)
}

func TestFetchFullResult(t *testing.T) {
	resp := `{"device":"dev:864475044203262","product":"com.example:sensor","mode":"periodic",` +
		`"outbound":60,"voutbound":2.3,"inbound":120,"host":"a.notefile.net","sn":"lab-1","sync":true}` + "\r\n"
	n := notecard.New(notecardtest.NewCard(func([]byte) []byte { return []byte(resp) }), &notecardtest.Delay{})

	h, err := Fetch(context.Background(), n)
	require.NoError(t, err)
	require.NotNil(t, h.Mode)
	assert.Equal(t, ModePeriodic, *h.Mode)
	assert.Equal(t, uint32(60), *h.Outbound)
	assert.InDelta(t, 2.3, *h.VOutbound, 1e-6)
	assert.True(t, *h.Sync)
	assert.Nil(t, h.VInbound)
}

func TestSetEncoding(t *testing.T) {
	b, err := json.Marshal(Set{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"req":"hub.set","product":null}`, string(b))

	product := "com.example:sensor"
	mode := ModeContinuous
	out := uint32(30)
	sync := true
	b, err = json.Marshal(Set{Product: &product, Mode: &mode, Outbound: &out, Sync: &sync})
	require.NoError(t, err)
	assert.JSONEq(t, `{"req":"hub.set","product":"com.example:sensor","mode":"continuous","outbound":30,"sync":true}`, string(b))
}

func TestApply(t *testing.T) {
	var got []byte
	card := notecardtest.NewCard(func(line []byte) []byte {
		got = append([]byte(nil), line...)
		return []byte("{}\r\n")
	})
	n := notecard.New(card, &notecardtest.Delay{})
	host := "a.notefile.net"

	require.NoError(t, Apply(context.Background(), n, Set{Host: &host}))
	assert.JSONEq(t, `{"req":"hub.set","product":null,"host":"a.notefile.net"}`, string(got))
}

func TestApplyDeviceError(t *testing.T) {
	n := notecard.New(notecardtest.NewCard(func([]byte) []byte {
		return []byte(`{"err":"hub.set: product not found"}` + "\r\n")
	}), &notecardtest.Delay{})

	err := Apply(context.Background(), n, Set{})
	assert.ErrorIs(t, err, notecard.ErrNotecard)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("minimum")
	require.NoError(t, err)
	assert.Equal(t, ModeMinimum, m)
	_, err = ParseMode("Periodic")
	assert.Error(t, err)
}
