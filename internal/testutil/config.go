package testutil

import (
	"os"
	"strconv"
	"testing"
	"time"
)

const (
	// LiveTestsEnv enables tests that hit the real marketplace.
	LiveTestsEnv = "CARDPULSE_LIVE_TESTS"
)

// FixedNow is the reference clock for fixtures.
var FixedNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

// LiveTestsEnabled returns true when live network tests were requested.
func LiveTestsEnabled() bool {
	enabled, _ := strconv.ParseBool(os.Getenv(LiveTestsEnv))
	return enabled
}

// SkipUnlessLive skips t unless live tests are enabled.
func SkipUnlessLive(t testing.TB) {
	t.Helper()
	if !LiveTestsEnabled() {
		t.Skipf("set %s=1 to run live marketplace tests", LiveTestsEnv)
	}
}

// Clock returns a clock function frozen at FixedNow.
func Clock() func() time.Time {
	return func() time.Time { return FixedNow }
}
