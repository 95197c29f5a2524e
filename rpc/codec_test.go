package rpc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecSmallPayloadStaysRaw(t *testing.T) {
	codec, err := NewCodec(1, 1024)
	require.NoError(t, err)
	defer codec.Close()

	req := Request{Command: "get_wallets", Service: "llc_wallet", Origin: "wallet_ui"}
	data, err := codec.Encode(req)
	require.NoError(t, err)
	assert.Equal(t, frameRaw, data[0])

	var decoded Request
	require.NoError(t, codec.Decode(data, &decoded))
	assert.Equal(t, req, decoded)
}

func TestCodecLargePayloadCompresses(t *testing.T) {
	codec, err := NewCodec(2, 64)
	require.NoError(t, err)
	defer codec.Close()

	resp := Response{Data: map[string]any{
		"transactions": bytes.Repeat([]byte("abcdefgh"), 512),
	}}
	data, err := codec.Encode(resp)
	require.NoError(t, err)
	assert.Equal(t, frameZstd, data[0])
	assert.Less(t, len(data), 4096, "repetitive payload should shrink")

	var decoded Response
	require.NoError(t, codec.Decode(data, &decoded))
	assert.Equal(t, resp.Data["transactions"], decoded.Data["transactions"])
}

func TestCodecLevelZeroDisablesCompression(t *testing.T) {
	codec, err := NewCodec(0, 0)
	require.NoError(t, err)
	defer codec.Close()

	data, err := codec.Encode(Response{Data: map[string]any{
		"blob": bytes.Repeat([]byte("x"), 8192),
	}})
	require.NoError(t, err)
	assert.Equal(t, frameRaw, data[0])

	// A disabled codec must refuse compressed frames rather than guess
	err = codec.Decode([]byte{frameZstd, 0x00}, &Response{})
	assert.Error(t, err)
}

func TestCodecRejectsMalformedFrames(t *testing.T) {
	codec, err := NewCodec(1, 0)
	require.NoError(t, err)
	defer codec.Close()

	assert.Error(t, codec.Decode(nil, &Response{}))
	assert.Error(t, codec.Decode([]byte{0x7f, 0x01, 0x02}, &Response{}))
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "llc_wallet.rpc.get_wallet_balance", CallSubject("llc_wallet", "get_wallet_balance"))
	assert.Equal(t, "llc_wallet.push.state_changed", PushSubject("llc_wallet", "state_changed"))
}

func TestDaemonError(t *testing.T) {
	err := &DaemonError{Command: "get_wallet_balance", Service: "llc_wallet", Message: "no such wallet"}
	assert.Equal(t, "daemon error on llc_wallet.get_wallet_balance: no such wallet", err.Error())
}
