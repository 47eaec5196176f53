package main

import (
	"errors"
	"fmt"

	"github.com/kjk/twaps/client"
	"github.com/kjk/twaps/twapstore"
	"github.com/kjk/twaps/u"
	"github.com/spf13/cobra"
)

func newRestoreCmd(serverURL *string) *cobra.Command {
	var fromBackup bool
	var bopts backupOptions
	cmd := &cobra.Command{
		Use:   "restore [file]",
		Short: "Push every Twap from a twaps.json backup file (.br and .zstd are decompressed) or from the latest s3 backup",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromBackup == (len(args) == 1) {
				return errors.New("need either a file or --from-backup")
			}
			var d []byte
			var source string
			var err error
			if fromBackup {
				if !bopts.enabled() {
					return errors.New("--from-backup needs --backup-endpoint")
				}
				b, err := bopts.newBackup(cmd.Context())
				if err != nil {
					return err
				}
				source, d, err = b.Latest(cmd.Context(), twapstore.DefaultFileName)
				if err != nil {
					return err
				}
			} else {
				source = args[0]
				if !u.FileExists(source) {
					return fmt.Errorf("file '%s' doesn't exist", source)
				}
				d, err = u.ReadFileMaybeCompressed(source)
				if err != nil {
					return err
				}
			}
			records, err := twapstore.UnmarshalRecords(d)
			if err != nil {
				return fmt.Errorf("parsing '%s': %w", source, err)
			}
			c := client.New(*serverURL)
			for _, rec := range records {
				if _, err = c.Push(cmd.Context(), rec); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d twaps from '%s'\n", len(records), source)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromBackup, "from-backup", false, "restore the most recent backup in s3")
	bopts.addS3Flags(cmd.Flags())
	return cmd
}
