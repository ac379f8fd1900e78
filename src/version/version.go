package version

import (
	"fmt"
	"runtime"
)

// Flag contains extra info about the version. It is helpul for tracking
// versions while developing. It should be empty on release builds.
const Flag = "develop"

// ProtocolVersion is bumped whenever the wire format of the requests or of the
// Kademlia RPCs changes. Nodes only talk to nodes of the same protocol version.
const ProtocolVersion = "safe/1"

var (
	// Version is the full version string
	Version = "0.1.0"

	// GitCommit is set with --ldflags "-X github.com/safenetwork/safenode/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}

	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}

// Info returns the version followed by the protocol and Go versions, as
// printed by the version command.
func Info() string {
	return fmt.Sprintf("%s (protocol %s, %s %s/%s)",
		Version, ProtocolVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
