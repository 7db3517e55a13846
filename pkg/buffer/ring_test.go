package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteRing_WriteAndCopy(t *testing.T) {
	r := NewByteRing(8)
	assert.Equal(t, 0, r.Write([]byte("abc")))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 8, r.Cap())
	assert.Equal(t, byte('b'), r.At(1))
	assert.Equal(t, []byte("bc"), r.Copy(1, 3))
	assert.Nil(t, r.Copy(2, 2))
}

func TestByteRing_WrapAround(t *testing.T) {
	r := NewByteRing(5)
	r.Write([]byte("abcd"))
	r.Discard(3)
	assert.Equal(t, 0, r.Write([]byte("efgh")))
	assert.Equal(t, []byte("defgh"), r.Copy(0, r.Len()))
}

func TestByteRing_OverwriteOldest(t *testing.T) {
	r := NewByteRing(4)
	r.Write([]byte("abc"))
	assert.Equal(t, 2, r.Write([]byte("def")))
	assert.Equal(t, []byte("cdef"), r.Copy(0, r.Len()))
}

func TestByteRing_ChunkLargerThanCapacity(t *testing.T) {
	r := NewByteRing(4)
	r.Write([]byte("xy"))
	assert.Equal(t, 2+6-4, r.Write([]byte("abcdef")))
	assert.Equal(t, []byte("cdef"), r.Copy(0, r.Len()))
}

func TestByteRing_DiscardAndReset(t *testing.T) {
	r := NewByteRing(4)
	r.Write([]byte("abcd"))
	r.Discard(0)
	assert.Equal(t, 4, r.Len())
	r.Discard(10)
	assert.Equal(t, 0, r.Len())

	r.Write([]byte("zz"))
	r.Reset()
	assert.Equal(t, 0, r.Len())
}
