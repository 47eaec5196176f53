package main

import (
	"context"
	"time"

	"github.com/kjk/twaps/backup"
	"github.com/kjk/twaps/minioutil"
	"github.com/spf13/pflag"
)

type backupOptions struct {
	s3          minioutil.Config
	prefix      string
	compression string
	delay       time.Duration
	keep        int

	// for tests, used instead of s3
	storage backup.Storage
}

func (o *backupOptions) enabled() bool {
	return o.s3.Endpoint != "" || o.storage != nil
}

// addS3Flags adds flags needed to find backups
func (o *backupOptions) addS3Flags(f *pflag.FlagSet) {
	f.StringVar(&o.s3.Endpoint, "backup-endpoint", "", "s3 endpoint for backups, e.g. nyc3.digitaloceanspaces.com")
	f.StringVar(&o.s3.Bucket, "backup-bucket", "", "s3 bucket for backups")
	f.StringVar(&o.s3.Access, "backup-access", "", "s3 access key")
	f.StringVar(&o.s3.Secret, "backup-secret", "", "s3 secret key")
	f.StringVar(&o.s3.Region, "backup-region", "", "s3 region")
	f.BoolVar(&o.s3.Insecure, "backup-insecure", false, "use http for s3 endpoint")
	f.StringVar(&o.prefix, "backup-prefix", "twaps", "s3 directory for backups")
}

// addFlags adds flags needed to make backups
func (o *backupOptions) addFlags(f *pflag.FlagSet) {
	o.addS3Flags(f)
	f.StringVar(&o.compression, "backup-compression", "br", "backup compression: br or zstd")
	f.DurationVar(&o.delay, "backup-delay", 30*time.Second, "wait that long after a push before uploading a backup")
	f.IntVar(&o.keep, "backup-keep", 0, "how many most recent backups to keep (0 keeps all)")
}

func (o *backupOptions) newBackup(ctx context.Context) (*backup.Backup, error) {
	storage := o.storage
	if storage == nil {
		mc, err := minioutil.New(ctx, &o.s3)
		if err != nil {
			return nil, err
		}
		storage = mc
	}
	config := &backup.Config{
		Prefix:      o.prefix,
		Compression: o.compression,
		Delay:       o.delay,
		Keep:        o.keep,
	}
	return backup.New(config, storage)
}
