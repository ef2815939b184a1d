package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "skylimit",
		Short:        "Budget a daily feed across followed accounts by posting rate and weight",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(ingestCmd())
	root.AddCommand(computeCmd())
	root.AddCommand(snapshotCmd())
	root.AddCommand(followCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch recent posts for every followed source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context())
		},
	}
}

func computeCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Recompute the quota snapshot and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompute(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max sources to show, loudest first (0: all)")
	return cmd
}

func snapshotCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the current snapshot without recomputing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func followCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Manage followed sources",
	}
	cmd.AddCommand(followAddCmd(), followWeightCmd(), followRmCmd(), followLsCmd())
	return cmd
}

func followAddCmd() *cobra.Command {
	var (
		handle string
		feed   string
		topics []string
		weight float64
	)

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Follow a source, or update an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollowAdd(cmd.Context(), args[0], handle, feed, topics, weight)
		},
	}

	cmd.Flags().StringVar(&handle, "handle", "", "display handle (default: id)")
	cmd.Flags().StringVar(&feed, "feed", "", "RSS or Atom feed URL for ingestion")
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "topic tags that bypass throttling (repeatable)")
	cmd.Flags().Float64Var(&weight, "weight", 1, "amplification factor")
	return cmd
}

func followWeightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weight <id> <weight>",
		Short: "Change a source's amplification factor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollowWeight(cmd.Context(), args[0], args[1])
		},
	}
}

func followRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Unfollow a source, keeping its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollowRm(cmd.Context(), args[0])
		},
	}
}

func followLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List followed sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollowLs(cmd.Context())
		},
	}
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
