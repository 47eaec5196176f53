package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const defaultServerURL = "http://localhost:8080"

func newRootCmd() *cobra.Command {
	var serverURL string
	root := &cobra.Command{
		Use:           "twaps",
		Short:         "Push and fetch Twaps (code snippets addressed by URL)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return SetFlagsFromEnvVariables(cmd.Flags())
		},
	}
	root.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServerURL, "URL of twaps server")

	root.AddCommand(
		newServeCmd(),
		newPushCmd(&serverURL),
		newGetCmd(&serverURL),
		newListCmd(&serverURL),
		newDeleteCmd(&serverURL),
		newRestoreCmd(&serverURL),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
