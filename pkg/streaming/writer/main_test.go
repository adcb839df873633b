package writer

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this package.
// Executor and sink goroutines must exit once a writer goes idle.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
