// Command tollgated runs the scheduling daemon directly, without the client
// subcommands. Equivalent to "tollgate daemon".
package main

import (
	"fmt"
	"os"

	"github.com/tollgate/tollgate/cmd"
)

// Build-time variables, injected with -ldflags.
var (
	version   = "dev"
	buildType = "source"
	date      = "unknown"
	commit    = "unknown"
)

func main() {
	err := cmd.ExecuteDaemon(os.Args, cmd.BuildArgs{
		Version:   version,
		BuildType: buildType,
		Date:      date,
		Commit:    commit,
	})
	if err != nil {
		fmt.Println("tollgated:", err.Error())
		os.Exit(1)
	}
}
