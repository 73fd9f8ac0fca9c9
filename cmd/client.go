package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	cmdcommon "github.com/tollgate/tollgate/cmd/common"
	"github.com/tollgate/tollgate/common"
	"github.com/tollgate/tollgate/pkg/schedcli"
)

var (
	regPriority  uint
	regResumable bool
	regUnmetered bool
	regCostly    bool

	registerFlags = []cli.Flag{
		cli.UintFlag{
			Name:        "priority, P",
			Usage:       "priority when an active-entry cap applies (higher runs first)",
			Destination: &regPriority,
		},
		cli.BoolFlag{
			Name:        "resumable, r",
			Usage:       "mark the transfer as resumable after interruption",
			Destination: &regResumable,
		},
		cli.BoolFlag{
			Name:        "require-unmetered, u",
			Usage:       "only allow the transfer on unmetered connections",
			Destination: &regUnmetered,
		},
		cli.BoolFlag{
			Name:        "allow-costly, c",
			Usage:       "exempt the transfer from tariff capping",
			Destination: &regCostly,
		},
	}

	watchDecision string

	watchFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "decision, d",
			Usage:       "only show updates with this decision (e.g. allowed)",
			Destination: &watchDecision,
		},
	}

	histID    string
	histLimit int

	historyFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "id, i",
			Usage:       "only show events for this entry",
			Destination: &histID,
		},
		cli.IntFlag{
			Name:        "limit, n",
			Usage:       "maximum number of events to return",
			Destination: &histLimit,
		},
	}
)

// entryIDArg extracts the entry id argument shared by several commands.
func entryIDArg(ctx *cli.Context) (string, bool) {
	id := ctx.Args().First()
	if id == "" || id == "help" {
		_ = cli.ShowCommandHelp(ctx, ctx.Command.Name)
		return "", false
	}
	return id, true
}

// closeOnInterrupt closes the client when the process is interrupted, which
// unblocks Listen. Returns a cleanup func for the signal registration.
func closeOnInterrupt(client *schedcli.Client) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			client.Close()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

// register keeps the session open after registering: the entry lives exactly
// as long as this process, and every decision change is printed as it
// arrives.
func register(ctx *cli.Context) error {
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "register", "new_client", err)
		return nil
	}
	defer client.Close()

	reg, err := client.Register(&common.EntrySpec{
		Priority:         uint32(regPriority),
		Resumable:        regResumable,
		RequireUnmetered: regUnmetered,
		AllowCostly:      regCostly,
	})
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "register", "register", err)
		return nil
	}
	state, err := client.State(reg.ID)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "register", "get_state", err)
		return nil
	}
	fmt.Printf("registered %s: %s\n", reg.ID, state.Decision)
	fmt.Println("entry lives until this process exits; press Ctrl-C to unregister")

	handler := schedcli.NewDecisionHandler("", func(u *common.EntryUpdate) error {
		if u.ID != reg.ID {
			return nil
		}
		if u.Removed {
			fmt.Printf("%s removed\n", u.ID)
			return schedcli.ErrDisconnect
		}
		fmt.Printf("%s: %s\n", u.ID, u.Decision)
		return nil
	})
	if err := client.Watch(handler); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "register", "watch", err)
		return nil
	}

	defer closeOnInterrupt(client)()
	_ = client.Listen()
	return nil
}

func unregister(ctx *cli.Context) error {
	id, ok := entryIDArg(ctx)
	if !ok {
		return nil
	}
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "unregister", "new_client", err)
		return nil
	}
	defer client.Close()
	if err := client.Unregister(id); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "unregister", "unregister", err)
		return nil
	}
	fmt.Printf("unregistered %s\n", id)
	return nil
}

func hold(ctx *cli.Context) error {
	id, ok := entryIDArg(ctx)
	if !ok {
		return nil
	}
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "hold", "new_client", err)
		return nil
	}
	defer client.Close()
	if err := client.Hold(id); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "hold", "hold", err)
		return nil
	}
	fmt.Printf("held %s\n", id)
	return nil
}

func release(ctx *cli.Context) error {
	id, ok := entryIDArg(ctx)
	if !ok {
		return nil
	}
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "release", "new_client", err)
		return nil
	}
	defer client.Close()
	if err := client.Release(id); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "release", "release", err)
		return nil
	}
	fmt.Printf("released %s\n", id)
	return nil
}

func state(ctx *cli.Context) error {
	id, ok := entryIDArg(ctx)
	if !ok {
		return nil
	}
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "state", "new_client", err)
		return nil
	}
	defer client.Close()
	st, err := client.State(id)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "state", "get_state", err)
		return nil
	}
	fmt.Printf("%s: %s\n", st.ID, st.Decision)
	return nil
}

func list(ctx *cli.Context) error {
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "list", "new_client", err)
		return nil
	}
	defer client.Close()
	l, err := client.List()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "list", "get_list", err)
		return nil
	}
	if len(l.Entries) == 0 {
		fmt.Println("tollgate: no entries registered")
		return nil
	}
	fmt.Printf("%-16s %-20s %8s  %s\n", "ID", "DECISION", "PRIORITY", "FLAGS")
	for _, e := range l.Entries {
		fmt.Printf("%-16s %-20s %8d  %s\n", e.ID, e.Decision, e.Priority, entryFlags(e))
	}
	return nil
}

func entryFlags(e common.EntryInfo) string {
	var flags []byte
	if e.Held {
		flags = append(flags, 'h')
	}
	if e.Resumable {
		flags = append(flags, 'r')
	}
	if e.RequireUnmetered {
		flags = append(flags, 'u')
	}
	if e.AllowCostly {
		flags = append(flags, 'c')
	}
	if len(flags) == 0 {
		return "-"
	}
	return string(flags)
}

func watch(ctx *cli.Context) error {
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "watch", "new_client", err)
		return nil
	}
	defer client.Close()

	handler := schedcli.NewDecisionHandler(common.Decision(watchDecision), func(u *common.EntryUpdate) error {
		if u.Removed {
			fmt.Printf("%s  %-16s removed (was %s)\n", time.Now().Format(time.TimeOnly), u.ID, u.Decision)
			return nil
		}
		fmt.Printf("%s  %-16s %s\n", time.Now().Format(time.TimeOnly), u.ID, u.Decision)
		return nil
	})
	if err := client.Watch(handler); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "watch", "watch", err)
		return nil
	}

	defer closeOnInterrupt(client)()
	_ = client.Listen()
	return nil
}

func history(ctx *cli.Context) error {
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "history", "new_client", err)
		return nil
	}
	defer client.Close()
	resp, err := client.History(&common.HistoryRequest{ID: histID, Limit: histLimit})
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "history", "get_history", err)
		return nil
	}
	if len(resp.Events) == 0 {
		fmt.Println("tollgate: no history recorded")
		return nil
	}
	for _, ev := range resp.Events {
		line := fmt.Sprintf("%s  %-16s %-12s", ev.At.Format(time.RFC3339), ev.EntryID, ev.Event)
		if ev.Decision != "" {
			line += " " + string(ev.Decision)
		}
		if ev.Owner != "" {
			line += "  owner=" + ev.Owner
		}
		fmt.Println(line)
	}
	return nil
}

func tariffShow(ctx *cli.Context) error {
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "tariff", "new_client", err)
		return nil
	}
	defer client.Close()
	st, err := client.TariffStatus()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "tariff", "get_tariff", err)
		return nil
	}
	printTariffStatus(st)
	return nil
}

func tariffReload(ctx *cli.Context) error {
	client, err := schedcli.NewClient()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "tariff", "new_client", err)
		return nil
	}
	defer client.Close()
	st, err := client.TariffReload()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "tariff", "reload", err)
		return nil
	}
	fmt.Println("tariff reloaded")
	printTariffStatus(st)
	return nil
}

func printTariffStatus(st *common.TariffStatus) {
	if !st.Loaded {
		fmt.Println("no tariff loaded (all periods unrestricted)")
		return
	}
	fmt.Printf("tariff: %s\n", st.Name)
	fmt.Printf("current classification: %s\n", st.Classification)
	if st.NextBoundary != nil {
		fmt.Printf("next boundary: %s\n", st.NextBoundary.Format(time.RFC3339))
	}
}

var errMissingToken = errors.New("missing token argument")
