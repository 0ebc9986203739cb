package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentuity/go-cacheable/cache"
	"github.com/agentuity/go-cacheable/env"
	"github.com/agentuity/go-cacheable/logger"
	"github.com/agentuity/go-cacheable/tui"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// withCache opens the configured cache, runs fn and closes it.
func withCache(cmd *cobra.Command, fn func(ctx context.Context, c cache.Cache[*Note]) error) (err error) {
	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	log := logger.WithKV(env.NewLogger(cmd), "db", s.db)
	log.Debug("opening %s (table %s)", s.db, s.table)

	ctx := cmd.Context()
	c, err := cache.OpenSQLite(ctx, s.db, newNoteRegistry(), s.options(log)...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, c)
}

func newPutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put [--id id] <text>",
		Short: "Store a note and print its id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				id = uuid.NewString()
			}
			note := &Note{NoteID: id, Text: strings.Join(args, " "), Created: time.Now().UTC()}
			return withCache(cmd, func(ctx context.Context, c cache.Cache[*Note]) error {
				if err := c.Submit(ctx, note); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().String("id", "", "id of the note, generated when omitted")
	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a note as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache[*Note]) error {
				note, found, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return errors.Newf("note %s not found", args[0])
				}
				buf, err := yaml.Marshal(note)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(buf)
				return err
			})
		},
	}
}

func newHasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "has <id>",
		Short: "Print whether a note is cached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache[*Note]) error {
				ok, err := c.Has(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove"},
		Short:   "Remove notes",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache[*Note]) error {
				for _, id := range args {
					if err := c.Remove(ctx, id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List cached notes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache[*Note]) error {
				it, err := c.Enumerate(ctx)
				if err != nil {
					return err
				}
				var rows [][]string
				if err := cache.ForEach(it, func(n *Note) error {
					rows = append(rows, []string{n.NoteID, n.Created.Format(time.RFC3339), n.Text})
					return nil
				}); err != nil {
					return err
				}
				return tui.Table(cmd.OutOrStdout(), []string{"ID", "CREATED", "TEXT"}, rows)
			})
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c cache.Cache[*Note]) error {
				return c.EvictExpiredItems(ctx)
			})
		},
	}
}
