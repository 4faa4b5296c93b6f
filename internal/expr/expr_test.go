package expr

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAcceptsWhitelist(t *testing.T) {
	exprs := []string{
		"t",
		"t*(t>>8|t>>9)&46&t>>8",
		"(t*5&t>>7)|(t*3&t>>10)",
		"t/2 + t//3 - t%7",
		"t<<1 ^ ~t",
		"-t + +t",
		"not t",
		"t**2",
		"t*1.5",
		"0x1F & t | 0b101 ^ 0o17",
		"1_000 + t",
		"True + t",
		"t # trailing comment",
		"  t  \n",
	}
	for _, src := range exprs {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			assert.NoError(t, err)
		})
	}
}

func TestCompileRejectsConstructs(t *testing.T) {
	tests := []struct {
		src       string
		construct string
		node      string
	}{
		{"foo(t)", "unsupported operation", "Call"},
		{"math.sin(t)", "unsupported operation", "Call"},
		{"math.pi * t", "unsupported operation", "Attribute"},
		{"t < 5", "unsupported operation", "Compare"},
		{"t == 1 == 1", "unsupported operation", "Compare"},
		{"t and 1", "unsupported operation", "BoolOp"},
		{"t or 1", "unsupported operation", "BoolOp"},
		{"t if t else 1", "unsupported operation", "IfExp"},
		{"x + 1", `only variable "t" is allowed`, "Name"},
		{"t + __import__", `only variable "t" is allowed`, "Name"},
		{"t @ t", "unsupported binary operator", "BinOp"},
		{"'abc'", "unsupported constant type", "Constant"},
		{"t + None", "unsupported constant type", "Constant"},
		{"t * 2j", "unsupported constant type", "Constant"},
		{"t[0]", "unsupported node type", "Subscript"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p, err := Compile(tt.src)
			require.Error(t, err)
			assert.Nil(t, p)

			var gerr *GrammarError
			require.True(t, errors.As(err, &gerr), "want GrammarError, got %T: %v", err, err)
			assert.Equal(t, tt.construct, gerr.Construct)
			assert.Equal(t, tt.node, gerr.Node)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestGrammarErrorNamesConstruct(t *testing.T) {
	_, err := Compile("foo(t)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Call")

	_, err = Compile("t + y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "y")
}

func TestCompileSyntaxErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"   ",
		"t +",
		"(t",
		"t)",
		"t $ 2",
		"1 2",
		"t if t",
		"012",
		"0b12",
		"'unterminated",
		"lambda: t",
		"t////2",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			require.Error(t, err)
			var serr *SyntaxError
			assert.True(t, errors.As(err, &serr), "want SyntaxError, got %T: %v", err, err)
		})
	}
}

func TestIdentity(t *testing.T) {
	p := MustCompile("t")
	for _, v := range []int64{0, 1, 255, 256, -1, -129, 1 << 40, math.MaxInt64, math.MinInt64} {
		got, ok := p.Eval(v)
		assert.True(t, ok)
		assert.Equal(t, v, got)
	}
}

func TestEvalSemantics(t *testing.T) {
	tests := []struct {
		src  string
		t    int64
		want int64
	}{
		{"t/2", 7, 3},
		{"t/2", -7, -4},
		{"t//2", -7, -4},
		{"t%3", -7, 2},
		{"t%-3", 7, -2},
		{"t>>8", 1000, 3},
		{"t>>8", -1000, -4},
		{"t<<3", 5, 40},
		{"t<<64", 5, 0},
		{"t>>100", -5, -1},
		{"~t", 5, -6},
		{"-t", 5, -5},
		{"not t", 0, 1},
		{"not t", 9, 0},
		{"not t & 1", 2, 1},
		{"-2**2", 0, -4},
		{"2**3**2", 0, 512},
		{"t**2", 12, 144},
		{"2**-1 + t", 3, 3},
		{"t*1.5", 3, 4},
		{"t*-1.5", 3, -4},
		{"t/2.0", 7, 3},
		{"t%2.5", 7, 2},
		{"1 + 2 * 3", 0, 7},
		{"t & 0xFF", 0x1234, 0x34},
		{"t | 1 ^ 3 & 2", 4, 7},
		{"True * t", 9, 9},
		{"9223372036854775807 + t", 1, math.MinInt64},
		{"18446744073709551616 + t", 5, 5},
		{"t*2.0**70", 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p := MustCompile(tt.src)
			got, ok := p.Eval(tt.t)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalFaultsFallBackToZero(t *testing.T) {
	tests := []struct {
		src string
		t   int64
	}{
		{"t/0", 5},
		{"t//0", 5},
		{"t%0", 5},
		{"t/(t-t)", 3},
		{"1/0 + t", 3},
		{"t << -1", 3},
		{"t >> -1", 3},
		{"t * 1.5 & 1", 3},
		{"~(t*0.5)", 3},
		{"0**-1 + t", 3},
		{"(-t)**0.5", 4},
		{"10.0**400 + t", 1},
		{"t*1e308*10", 1},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p := MustCompile(tt.src)
			got, ok := p.Eval(tt.t)
			assert.False(t, ok)
			assert.Equal(t, int64(0), got)
			assert.Equal(t, int64(0), p.Sample(tt.t))
		})
	}
}

func TestFaultIsPerSample(t *testing.T) {
	p := MustCompile("100/(t-2)")
	assert.Equal(t, int64(-50), p.Sample(0))
	assert.Equal(t, int64(-100), p.Sample(1))
	assert.Equal(t, int64(0), p.Sample(2))
	assert.Equal(t, int64(100), p.Sample(3))
}

func TestShiftEqualsFloorDivision(t *testing.T) {
	shifted := MustCompile("t>>8")
	divided := MustCompile("t//256")
	for v := int64(-70000); v < 70000; v += 97 {
		assert.Equal(t, divided.Sample(v), shifted.Sample(v), "t=%d", v)
	}
}

func TestProgramConcurrentUse(t *testing.T) {
	p := MustCompile("t*(t>>8|t>>9)&46&t>>8")
	want := make([]int64, 4096)
	for i := range want {
		want[i] = p.Sample(int64(i))
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range want {
				if got := p.Sample(int64(i)); got != want[i] {
					t.Errorf("Sample(%d) = %d, want %d", i, got, want[i])
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDivisionRewriteOnTree(t *testing.T) {
	p := MustCompile("t/2")
	bin, ok := p.Tree().Body.(*BinOp)
	require.True(t, ok)
	assert.Equal(t, FloorDiv, bin.Op)
	assert.Equal(t, "t/2", p.String())
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("foo(t)") })
}
