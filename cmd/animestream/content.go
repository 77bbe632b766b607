package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"anime-streamer/internal/torrentx"
	"anime-streamer/pkg/types"
)

func newContentCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Manage downloaded content",
	}
	cmd.AddCommand(newContentAddCommand(flags), newContentListCommand(flags), newContentRemoveCommand())
	return cmd
}

func newContentAddCommand(flags *rootFlags) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "add <locator>",
		Short: "Add a magnet, info hash or .torrent file",
		Long:  "Add content and print its files. The item is remembered and resumed by serve.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, repo, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			content, closeContent, err := newContentStore(repo, nil, nil)
			if err != nil {
				return err
			}
			defer closeContent()

			res, err := content.Add(ctx, args[0])
			if err != nil {
				return err
			}
			item := res.Item
			if wait {
				done, ok := content.OnCompletion(item.ID)
				if ok {
					fmt.Fprintf(cmd.ErrOrStderr(), "waiting for %s to complete...\n", item.ID)
					select {
					case got, ok := <-done:
						if ok {
							item = got
						}
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}

			if wantJSON(cmd, flags) {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s", item.ID, item.Name)
			if res.AlreadyAdded {
				fmt.Fprint(cmd.OutOrStdout(), "  (already added)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			printTable(cmd, []string{"#", "FILE", "SIZE"}, fileRows(item.Files), 0, 2)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the transfer completes")
	return cmd
}

func fileRows(files []types.FileEntry) [][]string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{strconv.Itoa(f.Index), f.Name, humanize.IBytes(uint64(f.Length))})
	}
	return rows
}

func newContentListCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List remembered content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, repo, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			rows, err := repo.Content(ctx)
			if err != nil {
				return err
			}
			if wantJSON(cmd, flags) {
				return writeJSON(cmd, rows)
			}
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				out = append(out, []string{r.ID, r.Name, humanize.Time(r.AddedAt)})
			}
			printTable(cmd, []string{"ID", "NAME", "ADDED"}, out)
			return nil
		},
	}
}

func newContentRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Forget content so serve no longer resumes it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, repo, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			for _, id := range args {
				if _, _, err := torrentx.ParseLocator(id); err != nil {
					return fmt.Errorf("%q: %w", id, err)
				}
				if err := repo.DeleteContent(ctx, id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
