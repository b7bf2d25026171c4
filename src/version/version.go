package version

import "fmt"

const Maj = "0"
const Min = "1"
const Fix = "0"

var (
	//Version is the full version string
	Version = "0.1.0"

	//GitCommit is set with: -ldflags "-X github.com/Fantom-foundation/go-lachesis/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if GitCommit != "" {
		Version += fmt.Sprintf("-%s", GitCommit[:8])
	}
}
