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
	err := cmd.Execute(os.Args, cmd.BuildArgs{
		Version:   version,
		BuildType: buildType,
		Date:      date,
		Commit:    commit,
	})
	if err != nil {
		fmt.Println("tollgate:", err.Error())
		os.Exit(1)
	}
}
