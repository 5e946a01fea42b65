package derive_test

import (
	"math"
	"testing"
	"time"

	"github.com/ezachrisen/derive"
	"github.com/matryer/is"
)

func TestEqual(t *testing.T) {

	now := time.Now()

	cases := []struct {
		a, b any
		want bool
	}{
		{nil, nil, true},
		{nil, 0, false},
		{"", nil, false},
		{6, int64(6), true},
		{int64(6), 6.0, true},
		{uint64(6), int32(6), true},
		{-1, uint(math.MaxUint64), false},
		{6, 6.5, false},
		{math.NaN(), math.NaN(), true},
		{float32(math.NaN()), math.NaN(), true},
		{math.NaN(), 0.0, false},
		{math.NaN(), 0, false},
		{"6", 6, false},
		{true, true, true},
		{true, 1, false},
		{now, now.In(time.UTC), true},
		{now, now.Add(time.Second), false},
		{now, "now", false},
		{[]any{int64(1), "a"}, []any{1, "a"}, true},
		{[]string{"a"}, []any{"a"}, true},
		{[]any{1}, []any{1, 2}, false},
		{map[string]any{"a": int64(1)}, map[string]any{"a": 1.0}, true},
		{map[string]any{"a": 1}, map[string]any{"b": 1}, false},
		{map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}, false},
		{time.Hour, time.Hour, true},
		{[]byte("x"), []byte("x"), true},
	}

	for _, tc := range cases {
		is := is.New(t)
		is.Equal(derive.Equal(tc.a, tc.b), tc.want)
		is.Equal(derive.Equal(tc.b, tc.a), tc.want) // symmetric
	}
}
