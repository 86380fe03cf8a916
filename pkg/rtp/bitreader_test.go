package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitReader_GetBits(t *testing.T) {
	r := newBitReader([]byte{0b10110100, 0b11000000})

	v, err := r.getBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0b1011), v)

	v, err = r.getBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0b0100), v)

	v, err = r.getBits(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0b11), v)
}

func TestBitReader_PastEndOfBuffer(t *testing.T) {
	r := newBitReader([]byte{0xFF})
	_, err := r.getBits(8)
	require.NoError(t, err)

	_, err = r.getBit()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBitReader_SetBit(t *testing.T) {
	data := []byte{0x00}
	r := newBitReader(data)
	_, err := r.getBits(3)
	require.NoError(t, err)
	require.NoError(t, r.setBit(1))
	assert.Equal(t, byte(0b00010000), data[0])
}

func TestBitReader_UnsignedExpGolomb(t *testing.T) {
	tests := []struct {
		bits     []byte
		expected uint32
	}{
		{[]byte{0b10000000}, 0},
		{[]byte{0b01000000}, 1},
		{[]byte{0b01100000}, 2},
		{[]byte{0b00100000}, 3},
		{[]byte{0b00101000}, 4},
	}
	for _, tt := range tests {
		r := newBitReader(tt.bits)
		v, err := r.ue()
		require.NoError(t, err)
		assert.Equal(t, tt.expected, v)
	}
}

func TestBitReader_SignedExpGolomb(t *testing.T) {
	tests := []struct {
		bits     []byte
		expected int32
	}{
		{[]byte{0b10000000}, 0},
		{[]byte{0b01000000}, -1},
		{[]byte{0b01100000}, 1},
		{[]byte{0b00100000}, -2},
	}
	for _, tt := range tests {
		r := newBitReader(tt.bits)
		v, err := r.se()
		require.NoError(t, err)
		assert.Equal(t, tt.expected, v)
	}
}
