// Package testutil provides test utilities for gpxenrich, including:
//   - Miniredis helpers for queue and redis cache tests (miniredis.go)
//   - Quiet loggers and temporary paths (testutil.go)
//   - Trajectory fixtures and a scripted provider (fixtures.go)
package testutil

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger that discards output unless the test runs verbose.
func NewLogger(t *testing.T) *logrus.Logger {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	if !testing.Verbose() {
		log.SetOutput(io.Discard)
	}

	return log
}

// TempPath returns a path named name inside a per-test temporary directory.
func TempPath(t *testing.T, name string) string {
	t.Helper()

	return filepath.Join(t.TempDir(), name)
}
