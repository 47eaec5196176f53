package main

import (
	"context"
	"path/filepath"

	"github.com/kjk/twaps/backup"
	"github.com/kjk/twaps/httputil"
	"github.com/kjk/twaps/log"
	"github.com/kjk/twaps/server"
	"github.com/kjk/twaps/twapstore"
	"github.com/kjk/twaps/u"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	addr         string
	dataDir      string
	logDir       string
	verbose      bool
	onCorrupt    string
	maxBodySize  int64
	noRequestLog bool

	backup backupOptions

	// called with the address we listen on, for tests
	didListen func(addr string)
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run twaps server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "127.0.0.1:8080", "address to listen on")
	f.StringVar(&opts.dataDir, "data-dir", defaultDataDir(), "directory with "+twapstore.DefaultFileName)
	f.StringVar(&opts.logDir, "log-dir", "", "directory for log files (default <data-dir>/logs)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	f.StringVar(&opts.onCorrupt, "on-corrupt", "discard", "what to do with unreadable "+twapstore.DefaultFileName+" on push: discard or move")
	f.Int64Var(&opts.maxBodySize, "max-body-size", server.DefaultMaxBodySize, "max size of request body in bytes")
	f.BoolVar(&opts.noRequestLog, "no-request-log", false, "don't log http requests")

	opts.backup.addFlags(f)
	return cmd
}

func defaultDataDir() string {
	path, err := twapstore.DefaultPath()
	if err != nil {
		return "~/" + twapstore.DefaultDirName
	}
	return filepath.Dir(path)
}

func runServe(ctx context.Context, opts *serveOptions) error {
	dataDir, err := u.ExpandTildeInPath(opts.dataDir)
	if err != nil {
		return err
	}
	logDir := opts.logDir
	if logDir == "" {
		logDir = filepath.Join(dataDir, "logs")
	}
	if logDir, err = u.ExpandTildeInPath(logDir); err != nil {
		return err
	}
	log.Init(&log.Config{Dir: logDir})
	defer log.Close()
	log.Verbose = opts.verbose

	onCorrupt, err := twapstore.ParseCorruptPolicy(opts.onCorrupt)
	if err != nil {
		return err
	}
	storeOpts := &twapstore.Options{
		OnCorrupt: onCorrupt,
	}
	var bkp *backup.Backup
	if opts.backup.enabled() {
		bkp, err = opts.backup.newBackup(ctx)
		if err != nil {
			return err
		}
		storeOpts.DidChange = bkp.Schedule
		log.Logf("backups enabled: s3://%s/%s\n", opts.backup.s3.Bucket, opts.backup.prefix)
	}

	store, err := twapstore.New(filepath.Join(dataDir, twapstore.DefaultFileName), storeOpts)
	if err != nil {
		return err
	}
	defer store.Close()

	handler := server.New(store, &server.Config{
		MaxBodySize: opts.maxBodySize,
		LogRequests: !opts.noRequestLog,
	})
	err = httputil.RunServer(ctx, httputil.ServerOptions{
		Addr:    opts.addr,
		Handler: handler,
		DidListen: func(addr string) {
			log.Logf("serving on http://%s, store: '%s', logs: '%s'\n", addr, store.Path(), logDir)
			if opts.didListen != nil {
				opts.didListen(addr)
			}
		},
	})
	log.Logf("server stopped\n")
	if bkp != nil {
		// don't lose changes made less than backup delay ago
		ferr := bkp.Flush(context.Background())
		log.IfErrf(ferr, "backup on shutdown failed with '%s'", ferr)
	}
	return err
}
