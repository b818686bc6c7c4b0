package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"grocketmq/topicconfig"

	"github.com/spf13/cobra"
)

func (a *app) topicCmd() *cobra.Command {
	topicCmd := &cobra.Command{
		Use:   "topic",
		Short: "Manage the topic table",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list topics: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE")
			for _, t := range list {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, t.TopicType)
			}
			return w.Flush()
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show one topic as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			cfg, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	var topicType string
	putCmd := &cobra.Command{
		Use:   "put <name>",
		Short: "Create or update a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tt, err := topicconfig.ParseTopicType(topicType)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Upsert(cmd.Context(), topicconfig.TopicConfig{Name: args[0], TopicType: tt}); err != nil {
				return fmt.Errorf("failed to put topic: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Topic %q saved as %s.\n", args[0], tt)
			return nil
		},
	}
	putCmd.Flags().StringVar(&topicType, "type", "NORMAL", "NORMAL, DELAY, FIFO or TRANSACTION")

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete topic: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Topic %q deleted.\n", args[0])
			return nil
		},
	}

	topicCmd.AddCommand(listCmd, getCmd, putCmd, deleteCmd)
	return topicCmd
}
