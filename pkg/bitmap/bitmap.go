package bitmap

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

// wordSize is the size of the word used for atomic operations.
const wordSize = 4

// Size returns the number of bytes required to store the bitmap of nBits bits.
func Size(nBits uint32) uint32 {
	return (nBits + 7) / 8
}

// Bitmap is a concurrent bitmap stored inside externally owned memory.
// Bit pos lives in byte pos/8 under mask 1<<(pos%8). Zero means null or free.
//
// Bits are flipped by compare-and-swap on the aligned 32-bit word holding them. When the bitmap does not
// start or end on a word boundary, that word also covers up to 3 bytes lying outside the bitmap.
// The swap writes those bytes back unchanged, so no update is lost, but a plain write to them running
// in parallel with Flip is reported by the race detector.
//
// Copying the bitmap copies the reference, not the bits.
type Bitmap struct {
	region []byte
	offset uint32
	nBits  uint32
}

// View returns the bitmap of nBits bits starting at byte offset of region.
// Region must start at an address aligned to 4 bytes and its length must be a multiple of 4,
// because bits are flipped by compare-and-swap operations on the words containing them.
func View(region []byte, offset, nBits uint32) (Bitmap, error) {
	if len(region) == 0 {
		return Bitmap{}, errors.New("bitmap region is empty")
	}
	if uintptr(unsafe.Pointer(&region[0]))%wordSize != 0 {
		return Bitmap{}, errors.New("bitmap region is not aligned to the word size")
	}
	if len(region)%wordSize != 0 {
		return Bitmap{}, errors.Errorf("bitmap region length %d is not a multiple of the word size", len(region))
	}
	if uint64(offset)+uint64(Size(nBits)) > uint64(len(region)) {
		return Bitmap{}, errors.Errorf("bitmap of %d bits at offset %d exceeds region of %d bytes",
			nBits, offset, len(region))
	}
	return Bitmap{
		region: region,
		offset: offset,
		nBits:  nBits,
	}, nil
}

// Len returns the number of bits in the bitmap.
func (b Bitmap) Len() uint32 {
	return b.nBits
}

// Test returns the value of the bit at pos.
func (b Bitmap) Test(pos uint32) bool {
	return atomic.LoadUint32(b.word(pos))&b.mask(pos) != 0
}

// Flip atomically sets the bit at pos to !expected if its current value equals expected.
// It returns true if the bit has been flipped.
func (b Bitmap) Flip(pos uint32, expected bool) bool {
	word, mask := b.word(pos), b.mask(pos)
	for {
		old := atomic.LoadUint32(word)
		if (old&mask != 0) != expected {
			return false
		}
		if atomic.CompareAndSwapUint32(word, old, old^mask) {
			return true
		}
		// Other bit in the same word changed, try again.
	}
}

// NextUnset returns the lowest position not lower than from, of the bit which is not set.
// Words with all the bits set are skipped without testing bits one by one.
func (b Bitmap) NextUnset(from uint32) (uint32, bool) {
	for pos := from; pos < b.nBits; {
		next := b.nextWord(pos)
		w := atomic.LoadUint32(b.word(pos))
		if w == math.MaxUint32 {
			pos = next
			continue
		}
		for end := min(next, b.nBits); pos < end; pos++ {
			if w&b.mask(pos) == 0 {
				return pos, true
			}
		}
	}
	return 0, false
}

// Count returns the number of set bits.
func (b Bitmap) Count() uint32 {
	var count uint32
	for i := uint32(0); i < b.nBits; i++ {
		if b.Test(i) {
			count++
		}
	}
	return count
}

func (b Bitmap) word(pos uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&b.region[(b.offset+pos/8)&^(wordSize-1)]))
}

func (b Bitmap) mask(pos uint32) uint32 {
	byteInWord := (b.offset + pos/8) % wordSize
	if cpu.IsBigEndian {
		byteInWord = wordSize - 1 - byteInWord
	}
	return 1 << (byteInWord*8 + pos%8)
}

// nextWord returns the first position stored in the word following the one holding pos.
func (b Bitmap) nextWord(pos uint32) uint32 {
	return ((b.offset+pos/8)&^(wordSize-1) + wordSize - b.offset) * 8
}
