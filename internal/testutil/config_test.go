package testutil

import (
	"testing"
)

func TestLiveTestsEnabled(t *testing.T) {
	t.Setenv(LiveTestsEnv, "")
	if LiveTestsEnabled() {
		t.Error("live tests should be off by default")
	}

	t.Setenv(LiveTestsEnv, "true")
	if !LiveTestsEnabled() {
		t.Error("live tests should be on when the variable is true")
	}

	t.Setenv(LiveTestsEnv, "garbage")
	if LiveTestsEnabled() {
		t.Error("unparseable value should disable live tests")
	}
}

func TestClock(t *testing.T) {
	now := Clock()
	if !now().Equal(FixedNow) {
		t.Errorf("Clock() = %v, want %v", now(), FixedNow)
	}
}
