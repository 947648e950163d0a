package service

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVAPIDKey(t *testing.T) {
	raw := []byte{0x04, 0xfb, 0xff, 0x10, 0x20, 0xfe}
	key := base64.RawURLEncoding.EncodeToString(raw)

	got, err := DecodeVAPIDKey(key)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeVAPIDKey(" \"" + key[:4] + "\n" + key[4:] + "\" ")
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeVAPIDKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestDecodeVAPIDKey_Invalid(t *testing.T) {
	_, err := DecodeVAPIDKey("")
	assert.Error(t, err)

	_, err = DecodeVAPIDKey(`""`)
	assert.Error(t, err)

	_, err = DecodeVAPIDKey("not*base64")
	assert.Error(t, err)
}
