package mhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripSHA256(t *testing.T) {
	h, err := New(mustCode(t, "sha256"))
	require.NoError(t, err)
	h.Update([]byte("hello "))
	h.Update([]byte("world"))
	mh, err := h.Finalize()
	require.NoError(t, err)

	ok, checkable, err := Verify(mh, []byte("hello world"))
	require.NoError(t, err)
	require.True(t, checkable)
	require.True(t, ok)
}

func TestVerifyDetectsMismatch(t *testing.T) {
	h, err := New(mustCode(t, "sha256"))
	require.NoError(t, err)
	h.Update([]byte("original"))
	mh, err := h.Finalize()
	require.NoError(t, err)

	ok, checkable, err := Verify(mh, []byte("tampered"))
	require.NoError(t, err)
	require.True(t, checkable)
	require.False(t, ok)
}

func TestUnknownFunctionCodeNotCheckable(t *testing.T) {
	h, err := New(mustCode(t, "sha256"))
	require.NoError(t, err)
	h.Update([]byte("x"))
	recorded, err := h.Finalize()
	require.NoError(t, err)

	// Forge an unrecognized function code (0x01, which is not a hash
	// function blkar wires up) onto the same digest bytes
	// to exercise the "not checkable" path without a malformed varint.
	forged := append([]byte{0x01}, recorded[1:]...)
	info, err := Decode(forged)
	require.NoError(t, err)
	require.False(t, info.Checkable)

	_, checkable, err := Verify(forged, []byte("x"))
	require.NoError(t, err)
	require.False(t, checkable)
}

func TestXXH64RoundTrip(t *testing.T) {
	h, err := New(CodeXXH64)
	require.NoError(t, err)
	h.Update([]byte("stream"))
	mh, err := h.Finalize()
	require.NoError(t, err)
	ok, checkable, err := Verify(mh, []byte("stream"))
	require.NoError(t, err)
	require.True(t, checkable)
	require.True(t, ok)
}

func mustCode(t *testing.T, name string) uint64 {
	t.Helper()
	code, err := CodeForName(name)
	require.NoError(t, err)
	return code
}
