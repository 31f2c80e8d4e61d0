package guest

import (
	"testing"

	"go.uber.org/goleak"
)

// Polling and fallback paths spawn goroutines with deadlines; none may
// outlive its test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
