package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	info := Info()
	for _, want := range []string{"flowchat " + Version, "Built: " + BuildTime, runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(info, want) {
			t.Errorf("Info() = %q, missing %q", info, want)
		}
	}
	if Short() != Version {
		t.Errorf("Short() = %q, want %q", Short(), Version)
	}
}

func TestGetKeepsInjectedCommit(t *testing.T) {
	old := CommitSHA
	t.Cleanup(func() { CommitSHA = old })

	CommitSHA = "abc1234"
	if got := Get().CommitSHA; got != "abc1234" {
		t.Errorf("Get().CommitSHA = %q, want %q", got, "abc1234")
	}
}
