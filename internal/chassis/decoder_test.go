package chassis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	f, ok := Decode("9BWZZZ377VT004251")
	require.True(t, ok)

	assert.Equal(t, "9BW", f.WMI)
	assert.Equal(t, "ZZ", f.Digits4To5)
	assert.Equal(t, "Z", f.Digit6)
	assert.Equal(t, "37", f.Digits7To8)
	assert.Equal(t, "7", f.CheckDigit)
	assert.Equal(t, "V", f.ModelYear)
	assert.Equal(t, "T", f.Plant)
	assert.Equal(t, "004251", f.Serial)
	assert.Equal(t, "ZZ|Z|37", f.Key())
}

func TestDecodeNormalizes(t *testing.T) {
	f, ok := Decode("  9bwzzz377vt004251 ")
	require.True(t, ok)
	assert.Equal(t, "37", f.Digits7To8)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"too short":  "9BWZZZ377VT00425",
		"too long":   "9BWZZZ377VT0042511",
		"letter I":   "9BWZZZ377IT004251",
		"letter O":   "9BWOZZ377VT004251",
		"letter Q":   "9BWZZZ377VT00425Q",
		"punctuated": "9BW-ZZ377VT004251",
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := Decode(in)
			assert.False(t, ok)
			assert.False(t, Valid(in))
		})
	}
}
