package version

import (
	"strings"
	"testing"
)

func TestVersionCarriesFlag(t *testing.T) {
	if Flag != "" && !strings.Contains(Version, "-"+Flag) {
		t.Fatalf("Version %s should carry the %s flag", Version, Flag)
	}
}

func TestInfo(t *testing.T) {
	info := Info()

	if !strings.HasPrefix(info, Version) || !strings.Contains(info, ProtocolVersion) {
		t.Fatalf("Info should start with the version and carry the protocol, got %s", info)
	}
}
