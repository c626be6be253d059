package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	out := String()
	for _, want := range []string{"version: " + Version, "commit: " + Commit, "built: " + BuildDate} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	if UserAgent() != "energydesk/"+Version {
		t.Fatalf("unexpected user agent %q", UserAgent())
	}
}
