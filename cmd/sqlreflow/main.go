package main

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/sqlreflow/cmd/sqlreflow/respace"
	logdebug "github.com/walteh/sqlreflow/pkg/debug"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "sqlreflow",
		Short:         "A tool for fixing the spacing of parsed sql",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	rootCmd.AddCommand(cmdVersion)

	rootCmd.AddCommand(respace.NewRespaceCommand())

	ctx := logdebug.WithLogger(context.Background(), os.Stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}
