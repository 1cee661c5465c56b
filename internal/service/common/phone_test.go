package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "national number", in: "666532143", want: "+34666532143"},
		{name: "already e164", in: "+34666532143", want: "+34666532143"},
		{name: "country prefix without plus", in: "34666532143", want: "+34666532143"},
		{name: "formatted", in: "(666) 53-21-43", want: "+34666532143"},
		{name: "numeric placeholder", in: "0", want: ""},
		{name: "text placeholder", in: "N/A", want: ""},
		{name: "empty", in: "", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizePhone(tc.in, ""))
		})
	}
}

func TestNormalizePhoneIsIdempotent(t *testing.T) {
	for _, in := range []string{"666532143", "34666532143", "+34 666 53 21 43", "912345678"} {
		once := NormalizePhone(in, "34")
		assert.Equal(t, once, NormalizePhone(once, "34"), in)
	}
}

func TestOffsetTokenRoundTrip(t *testing.T) {
	token := EncodeOffset(400)
	offset, err := DecodeOffset(token)
	assert.NoError(t, err)
	assert.Equal(t, 400, offset)

	offset, err = DecodeOffset("")
	assert.NoError(t, err)
	assert.Zero(t, offset)

	_, err = DecodeOffset("!!")
	assert.Error(t, err)
}
