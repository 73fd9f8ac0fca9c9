// Package cmd implements the tollgate command-line interface: the daemon
// entry point plus client commands that talk to a running daemon over its
// socket.
package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"

	"github.com/tollgate/tollgate/cmd/common"
)

// BuildArgs carries build-time metadata injected by the linker.
type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var currentBuildArgs BuildArgs

// Execute runs the tollgate CLI.
func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:         "tollgate",
		HelpName:     "tollgate",
		Usage:        "A traffic scheduling daemon for cost-aware transfers.",
		Version:      fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:    "tollgate <command> [arguments...]",
		OnUsageError: common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:   "daemon",
				Usage:  "run the scheduling daemon in the foreground",
				Action: daemon,
				Flags:  daemonFlags,
			},
			{
				Name:         "register",
				Aliases:      []string{"r"},
				Usage:        "register a transfer and stream its decisions until interrupted",
				UsageText:    "tollgate register [flags]",
				Action:       register,
				Flags:        registerFlags,
				OnUsageError: common.UsageErrorCallback,
			},
			{
				Name:      "unregister",
				Usage:     "remove an entry",
				UsageText: "tollgate unregister <entry-id>",
				Action:    unregister,
			},
			{
				Name:      "hold",
				Usage:     "manually pause an entry",
				UsageText: "tollgate hold <entry-id>",
				Action:    hold,
			},
			{
				Name:      "release",
				Usage:     "lift a manual hold",
				UsageText: "tollgate release <entry-id>",
				Action:    release,
			},
			{
				Name:      "state",
				Aliases:   []string{"s", "status"},
				Usage:     "show an entry's current decision",
				UsageText: "tollgate state <entry-id>",
				Action:    state,
			},
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "list all registered entries",
				Action:  list,
			},
			{
				Name:         "watch",
				Aliases:      []string{"w"},
				Usage:        "stream decision updates for all entries",
				Action:       watch,
				Flags:        watchFlags,
				OnUsageError: common.UsageErrorCallback,
			},
			{
				Name:         "history",
				Usage:        "query the decision-history log",
				Action:       history,
				Flags:        historyFlags,
				OnUsageError: common.UsageErrorCallback,
			},
			{
				Name:  "tariff",
				Usage: "inspect or reload the daemon's tariff",
				Subcommands: []cli.Command{
					{
						Name:   "show",
						Usage:  "show the currently loaded tariff",
						Action: tariffShow,
					},
					{
						Name:   "reload",
						Usage:  "re-read the daemon's tariff file",
						Action: tariffReload,
					},
				},
			},
			{
				Name:  "token",
				Usage: "manage the monitoring-bridge auth token",
				Subcommands: []cli.Command{
					{
						Name:   "generate",
						Usage:  "generate and store a fresh token",
						Action: tokenGenerate,
					},
					{
						Name:      "set",
						Usage:     "store the given token",
						UsageText: "tollgate token set <token>",
						Action:    tokenSet,
					},
					{
						Name:   "show",
						Usage:  "print the stored token",
						Action: tokenShow,
					},
					{
						Name:   "delete",
						Usage:  "delete the stored token",
						Action: tokenDelete,
					},
				},
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "prints the installed version of tollgate",
				Action:  common.GetVersion,
			},
		},
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}

// ExecuteDaemon runs the daemon-only binary: the whole app is the daemon
// command.
func ExecuteDaemon(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:         "tollgated",
		HelpName:     "tollgated",
		Usage:        "The tollgate traffic scheduling daemon.",
		Version:      fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:    "tollgated [flags]",
		OnUsageError: common.UsageErrorCallback,
		Action:       daemon,
		Flags:        daemonFlags,
	}
	return app.Run(args)
}
