// Command cachectl inspects and edits a SQLite backed cache of notes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "cachectl",
		Short:        "Inspect and edit a SQLite backed note cache",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.String("db", "", "path to the SQLite database (default \""+defaultDB+"\")")
	flags.String("table", "", "cache table name (default \"cache\")")
	flags.String("expire-after", "", "idle time before a note expires, e.g. 90s, 12h or 7d")
	flags.Int("limit", 0, "maximum number of notes, 0 for unlimited")
	flags.String("config", "", "path to a YAML config file")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")

	root.AddCommand(
		newPutCommand(),
		newGetCommand(),
		newHasCommand(),
		newRemoveCommand(),
		newListCommand(),
		newSweepCommand(),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
