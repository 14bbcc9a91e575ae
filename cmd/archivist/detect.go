package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/webarchivist/internal/fetch"
	"github.com/dgnsrekt/webarchivist/internal/sites"
	"github.com/dgnsrekt/webarchivist/internal/update"
)

var flagCheck bool

func init() {
	detectCmd := &cobra.Command{
		Use:   "detect <url>",
		Short: "Print which supported site a URL belongs to",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), sites.Detect(args[0]))
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the archivist version",
		RunE:  runVersion,
	}
	versionCmd.Flags().BoolVar(&flagCheck, "check", true, "compare with the published manifest")

	rootCmd.AddCommand(detectCmd, versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "archivist version:", cfg.Version)
	if !flagCheck {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client := fetch.NewClient(fetch.Options{UserAgent: cfg.UserAgent, RetryAttempts: cfg.FetchRetries})
	status, err := update.Check(ctx, client, cfg.ManifestURL, cfg.Version)
	if err != nil {
		return fmt.Errorf("version check: %w", err)
	}
	if status.Newer {
		fmt.Fprintf(out, "a newer version is available: %s\n", status.Latest)
	} else {
		fmt.Fprintln(out, "up to date")
	}
	return nil
}
