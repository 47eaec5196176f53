package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/kjk/twaps/client"
	"github.com/kjk/twaps/twapstore"
	"github.com/spf13/cobra"
)

var errNoTwaps = errors.New("server has no twaps, push one first")

func newPushCmd(serverURL *string) *cobra.Command {
	var url, id string
	cmd := &cobra.Command{
		Use:   "push [file]",
		Short: "Push source code from file (or stdin) as a Twap",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return errors.New("--url is required")
			}
			var d []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				d, err = io.ReadAll(cmd.InOrStdin())
			} else {
				d, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}
			rec := twapstore.Record{
				Source: twapstore.EncodeSource(string(d)),
				URL:    url,
				ID:     id,
			}
			pushedURL, err := client.New(*serverURL).Push(cmd.Context(), rec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s (id: %s)\n", pushedURL, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "URL under which the Twap is stored")
	cmd.Flags().StringVar(&id, "id", "", "id of the Twap (random if not given)")
	return cmd
}

func newGetCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <url>",
		Short: "Print source of a Twap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := client.New(*serverURL).Fetch(cmd.Context(), args[0])
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("twap not found with URL: %s", args[0])
			}
			if errors.Is(err, client.ErrStoreUninitialized) {
				return errNoTwaps
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), src)
			return nil
		},
	}
}

func newListCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List Twaps stored on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := client.New(*serverURL).List(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%d bytes\n", rec.URL, rec.ID, len(twapstore.DecodeSource(rec.Source)))
			}
			return nil
		},
	}
}

func newDeleteCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <url>",
		Short: "Delete a Twap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := client.New(*serverURL).Delete(cmd.Context(), args[0])
			if errors.Is(err, client.ErrStoreUninitialized) {
				return errNoTwaps
			}
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("twap not found with URL: %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
