package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantizeRoundsHalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"2.675", "2.68"},
		{"-1.005", "-1.01"},
		{"100", "100.00"},
		{"0.1", "0.10"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, String(Quantize(MustParse(tt.in))))
		})
	}
}

func TestDivKeepsPrecisionUntilQuantized(t *testing.T) {
	third := Div(MustParse("1"), MustParse("3"))
	assert.Equal(t, "0.3333333333333333333333333333", third.String())
	assert.Equal(t, "1.00", String(Quantize(third.Mul(MustParse("3")))))
}
