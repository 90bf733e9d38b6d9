package post

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/coreman2200/stripline/internal/pixel"
)

func white(n int) []byte { return bytes.Repeat([]byte{255}, n*3) }

func TestDefaultIsOff(t *testing.T) {
	assert.False(t, DefaultOptions().Enabled())
	assert.Nil(t, New(DefaultOptions()))
	assert.Nil(t, New(Options{Gamma: 1, WhiteCap: 1}))
}

func TestApplyLeavesInputAlone(t *testing.T) {
	f := New(Options{Gamma: 2.2, WhiteCap: 0.5, BudgetAmps: 0.1})
	require.NotNil(t, f)

	in := white(4)
	orig := append([]byte(nil), in...)
	out := f.Apply(nil, in)

	assert.Equal(t, orig, in)
	assert.Len(t, out, len(in))
	assert.NotEqual(t, in, out)
}

func TestApplyReusesDst(t *testing.T) {
	f := New(Options{Gamma: 2.2})
	dst := make([]byte, 0, 64)
	out := f.Apply(dst, []byte{0, 128, 255})
	assert.Same(t, &dst[:1][0], &out[0])
}

func TestGammaTable(t *testing.T) {
	f := New(Options{Gamma: 2.2})
	out := f.Apply(nil, []byte{0, 128, 255})

	assert.Equal(t, byte(0), out[0])
	assert.Equal(t, uint8(math.Pow(128.0/255, 2.2)*255), out[1])
	assert.Equal(t, byte(55), out[1])
	assert.Equal(t, byte(255), out[2])
}

func TestWhiteCap(t *testing.T) {
	f := New(Options{WhiteCap: 0.5})
	out := f.Apply(nil, []byte{255, 255, 255, 255, 0, 0})

	assert.Equal(t, []byte{128, 128, 128}, out[:3])
	assert.Equal(t, []byte{255, 0, 0}, out[3:], "under the cap")
}

func TestBudgetBelowKneeUnchanged(t *testing.T) {
	// 10 white pixels draw 0.6 A.
	f := New(Options{BudgetAmps: 1})
	assert.Equal(t, white(10), f.Apply(nil, white(10)))
}

func TestBudgetScalesToLimit(t *testing.T) {
	f := New(Options{BudgetAmps: 0.3})
	out := f.Apply(nil, white(10))

	assert.Equal(t, bytes.Repeat([]byte{127}, 30), out)
	assert.LessOrEqual(t, pixel.EstimateCurrent(out, 0.020), 0.3)
}

func TestBudgetKneeIsSoft(t *testing.T) {
	// 0.6 A against 0.64 A sits between the knee and the budget.
	out := New(Options{BudgetAmps: 0.64}).Apply(nil, white(10))
	assert.Less(t, out[0], byte(255))
	assert.Greater(t, out[0], byte(240))
}

func TestBudgetNeverExceeded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rgb := rapid.SliceOfN(rapid.Byte(), 3, 300).Draw(t, "rgb")
		rgb = rgb[:len(rgb)/3*3]
		amps := rapid.Float64Range(0.01, 5).Draw(t, "amps")

		out := New(Options{BudgetAmps: amps}).Apply(nil, rgb)
		if got := pixel.EstimateCurrent(out, 0.020); got > amps+1e-9 {
			t.Fatalf("draw %.4f over budget %.4f", got, amps)
		}
	})
}
