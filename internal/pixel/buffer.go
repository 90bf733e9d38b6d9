package pixel

import (
	"fmt"
	"image"
	"image/color"

	"github.com/coreman2200/stripline/internal/ledcolor"
)

// Channels is the number of bytes stored per pixel.
const Channels = 3

// Buffer is a flat run of RGB triples, one per pixel. Its length is fixed at
// construction and it is mutated in place.
type Buffer struct {
	count int
	rgb   []byte
}

func New(count int) (*Buffer, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid pixel count: %d", count)
	}
	return &Buffer{count: count, rgb: make([]byte, count*Channels)}, nil
}

// Count returns the number of pixels.
func (b *Buffer) Count() int { return b.count }

// Len returns the number of bytes, always Count()*3.
func (b *Buffer) Len() int { return len(b.rgb) }

// Get returns the pixel at index i. It panics if i is out of range.
func (b *Buffer) Get(i int) (r, g, bl uint8) {
	p := b.rgb[i*Channels : i*Channels+Channels]
	return p[0], p[1], p[2]
}

func (b *Buffer) SetRGB(i int, r, g, bl uint8) {
	p := b.rgb[i*Channels : i*Channels+Channels]
	p[0], p[1], p[2] = r, g, bl
}

// SetHSV converts h, s, v on the 0..255 scale and stores the result.
func (b *Buffer) SetHSV(i int, h, s, v uint8) {
	r, g, bl := ledcolor.HSV8(h, s, v)
	b.SetRGB(i, r, g, bl)
}

// Bytes exposes the backing storage. It reflects later writes; callers must
// not retain it across goroutines without their own synchronization.
func (b *Buffer) Bytes() []byte { return b.rgb }

// Snapshot copies the buffer into dst, growing it if needed, and returns it.
func (b *Buffer) Snapshot(dst []byte) []byte {
	if cap(dst) < len(b.rgb) {
		dst = make([]byte, len(b.rgb))
	}
	dst = dst[:len(b.rgb)]
	copy(dst, b.rgb)
	return dst
}

// At returns a view of pixel i. The view must not outlive the buffer.
func (b *Buffer) At(i int) Pixel {
	if i < 0 || i >= b.count {
		panic(fmt.Sprintf("pixel: index %d out of range [0,%d)", i, b.count))
	}
	return Pixel{buf: b, index: i}
}

// Image renders the buffer as a 1xN image.
func (b *Buffer) Image() *image.NRGBA { return Image(b.rgb) }

// Image renders a flat RGB slice as a 1xN image, one column per pixel.
func Image(rgb []byte) *image.NRGBA {
	n := len(rgb) / Channels
	im := image.NewNRGBA(image.Rect(0, 0, n, 1))
	for x := 0; x < n; x++ {
		im.SetNRGBA(x, 0, color.NRGBA{R: rgb[x*3], G: rgb[x*3+1], B: rgb[x*3+2], A: 255})
	}
	return im
}

// EstimateCurrent returns the estimated draw in amps, given the current of
// one channel at full scale (WS2812 is about 0.020).
func EstimateCurrent(rgb []byte, chanAmps float64) float64 {
	var sum float64
	for i := 0; i+2 < len(rgb); i += 3 {
		sum += float64(rgb[i]) + float64(rgb[i+1]) + float64(rgb[i+2])
	}
	return sum / 255.0 * chanAmps
}
