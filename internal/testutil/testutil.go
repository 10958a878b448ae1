// Package testutil builds tiny synthetic model and voice archives so every
// package can exercise the full synthesis path without real weights, plus
// skip helpers for tests that need the real assets.
//
// Typical usage:
//
//	func TestSynthesize(t *testing.T) {
//	    dir := t.TempDir()
//	    modelPath := testutil.WriteTinyModel(t, dir, testutil.ModelOptions{})
//	    voicesPath := testutil.WriteVoicesNPZ(t, dir, "af_test", "bf_test")
//	    ...
//	}
package testutil

import (
	"os"
	"testing"
)

// RequireFile skips the test if path does not exist. Integration tests use it
// for real model and voice archives, which are not committed.
func RequireFile(tb testing.TB, path string) {
	tb.Helper()

	// #nosec G703 -- Integration tests intentionally accept local asset paths.
	if _, err := os.Stat(path); err != nil {
		tb.Skipf("asset not available at %q: %v", path, err)
	}
}

// RequireEnvFile skips unless env names an existing file, and returns it.
func RequireEnvFile(tb testing.TB, env string) string {
	tb.Helper()

	p := os.Getenv(env)
	if p == "" {
		tb.Skipf("%s not set", env)
	}

	RequireFile(tb, p)

	return p
}
