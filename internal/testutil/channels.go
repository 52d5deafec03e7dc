// Package testutil holds helpers shared by SkinScan tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeouts.
const (
	DefaultTestTimeout = 5 * time.Second
	ShortTestTimeout   = 1 * time.Second
)

// WaitFor returns the next value from ch or fails the test after timeout.
func WaitFor[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}
