package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/store"
	"github.com/zendegi/directgtd/internal/tombstone"
)

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		kind   string
		parent string
		notes  string
	)

	cmd := &cobra.Command{
		Use:          "add <title>",
		Short:        "Add an item",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			item := model.Item{Title: &args[0], Kind: kind}
			if notes != "" {
				item.Notes = &notes
			}
			if parent != "" {
				item.ParentID = &parent
			}

			id, err := s.CreateItem(cmd.Context(), item)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", model.KindTask, "item kind (Task, Project, Note, ...)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent item id")
	cmd.Flags().StringVar(&notes, "notes", "", "item notes")

	return cmd
}

// NewListCommand creates the ls command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:          "ls",
		Short:        "List items",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			filter := store.ItemFilter{SortBy: "sort_order"}
			if kind != "" {
				filter.Kind = &kind
			}
			items, err := s.GetItems(cmd.Context(), filter)
			if err != nil {
				return err
			}
			for _, item := range items {
				title := ""
				if item.Title != nil {
					title = *item.Title
				}
				marker := " "
				if item.Completed() {
					marker = "x"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s  %s (%s)\n", marker, item.ID, title, item.Kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by item kind")

	return cmd
}

// NewRemoveCommand creates the rm command. Deletion is always a
// tombstone cascade over the subtree, never a physical delete; see the
// purge command for physical removal.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "rm <id>",
		Short:        "Soft-delete an item and its subtree",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			svc := tombstone.New(s, tombstone.Config{ChunkSize: cfg.Sync.ChunkSize})
			return svc.DeleteItem(cmd.Context(), args[0])
		},
	}
}
