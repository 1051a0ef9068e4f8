// Package cli defines the echo command tree.
package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jwulff/echo/internal/archive"
	"github.com/jwulff/echo/internal/config"
	"github.com/jwulff/echo/internal/docstore"
	"github.com/jwulff/echo/internal/logging"
)

// sqliteDocument names the archive document inside the SQLite backend.
const sqliteDocument = "echo-settings"

// Dependencies is shared by every command. Config and Logger are filled in
// before any command runs.
type Dependencies struct {
	Version    string
	ConfigPath string
	DataDir    string

	Config *config.Config
	Logger *slog.Logger

	closers []io.Closer
}

// NewRootCmd builds the command tree. Running it without a subcommand starts
// the recorder.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "echo",
		Short:         "Live transcription with speaker labels and a local archive",
		Long:          "echo streams microphone audio to a real-time transcription service, shows the transcript as it arrives, and keeps finished transcripts in a local archive.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return deps.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), deps)
		},
	}
	rootCmd.Version = deps.Version

	rootCmd.PersistentFlags().StringVarP(&deps.ConfigPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/echo/config.toml)")
	rootCmd.PersistentFlags().StringVar(&deps.DataDir, "data-dir", "", "directory for the archive and logs")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewArchiveCmd(deps))
	rootCmd.AddCommand(NewTokenCmd(deps))
	rootCmd.AddCommand(NewMCPCmd(deps))

	return rootCmd
}

func (d *Dependencies) load() error {
	cfg, err := config.Load(d.ConfigPath)
	if err != nil {
		return err
	}
	if d.DataDir != "" {
		cfg.DataDir = d.DataDir
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	d.Config = cfg

	logger, closer, err := logging.Open(cfg.LogPath(), cfg.LogLevel)
	if err != nil {
		return err
	}
	d.Logger = logger
	d.closers = append(d.closers, closer)
	logger.Debug("config loaded", "file", cfg.File, "data_dir", cfg.DataDir, "store", cfg.Store)
	return nil
}

// openDocument opens the configured document backend. It is closed with deps.
func (d *Dependencies) openDocument() (docstore.Store, error) {
	var (
		doc docstore.Store
		err error
	)
	if d.Config.Store == "sqlite" {
		doc, err = docstore.OpenSQLite(d.Config.ArchivePath(), sqliteDocument)
	} else {
		doc, err = docstore.OpenFile(d.Config.ArchivePath())
	}
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, doc)
	return doc, nil
}

// OpenArchive opens and loads the archive.
func (d *Dependencies) OpenArchive(ctx context.Context) (*archive.Store, docstore.Store, error) {
	doc, err := d.openDocument()
	if err != nil {
		return nil, nil, err
	}
	store := archive.New(doc, archive.WithLogger(d.Logger))
	if err := store.Load(ctx); err != nil {
		return nil, nil, err
	}
	return store, doc, nil
}

// Close releases everything opened through deps, newest first.
func (d *Dependencies) Close() error {
	var errList []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errList = append(errList, err)
		}
	}
	d.closers = nil
	return errors.Join(errList...)
}
