package main

import (
	"errors"
	"testing"
	"time"
)

func TestRetryDelayFromError(t *testing.T) {
	cases := []struct {
		err  error
		want time.Duration
	}{
		{nil, 0},
		{errors.New("Too Many Requests: retry after 7"), 7 * time.Second},
		{errors.New("too many requests"), 3 * time.Second},
		{errors.New("bad gateway"), time.Second},
	}
	for _, tc := range cases {
		if got := retryDelayFromError(tc.err); got != tc.want {
			t.Fatalf("retryDelayFromError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestShortHashStable(t *testing.T) {
	a, b := shortHash("123:abc"), shortHash("123:abc")
	if a != b || len(a) != 16 || a == shortHash("123:abd") {
		t.Fatalf("shortHash: %q %q", a, b)
	}
}
