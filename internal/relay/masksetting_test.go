package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zetxtech/anonycnbot/internal/banish"
)

func TestGraphemes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"single emoji", "🦊", 1},
		{"two plain emoji", "🦊🐺", 2},
		{"zwj sequence stays one cluster", "👨‍👩‍👧‍👦", 1},
		{"skin tone modifier folds in", "👍🏽", 1},
		{"variation selector folds in", "❤️", 1},
		{"combining mark folds in", "é", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, graphemes(tc.in), tc.want)
		})
	}
}

func TestLongMaskBan(t *testing.T) {
	cases := []struct {
		n       int
		applies bool
		want    banish.Type
	}{
		{0, false, 0},
		{1, false, 0},
		{2, true, banish.TypeLongMask1},
		{3, true, banish.TypeLongMask2},
		{4, true, banish.TypeLongMask3},
		{10, true, banish.TypeLongMask3},
	}

	for _, tc := range cases {
		bt, ok := longMaskBan(tc.n)
		assert.Equal(t, tc.applies, ok, "n=%d", tc.n)
		if tc.applies {
			assert.Equal(t, tc.want, bt, "n=%d", tc.n)
		}
	}
}
