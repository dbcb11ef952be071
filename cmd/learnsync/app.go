package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/learnsync/internal/auth"
	"github.com/at-ishikawa/learnsync/internal/config"
	"github.com/at-ishikawa/learnsync/internal/database"
	"github.com/at-ishikawa/learnsync/internal/events"
	"github.com/at-ishikawa/learnsync/internal/hybrid"
	"github.com/at-ishikawa/learnsync/internal/localstore"
	"github.com/at-ishikawa/learnsync/internal/offlinequeue"
	"github.com/at-ishikawa/learnsync/internal/remotestore"
)

// metaSignedInUser remembers the user of the last login between invocations.
const metaSignedInUser = "signed_in_user"

type signedInUser struct {
	UserID string `json:"userId"`
}

// app holds the components one command invocation works with.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	local   *localstore.Store
	queue   *offlinequeue.Queue
	remote  remotestore.Store
	auth    *auth.Session
	bus     *events.Bus
	storage *hybrid.Storage

	closers []func() error
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load()
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if logFile := newLogFile(cfg.Log); logFile != nil {
		setupLogger(logFile, debugMode)
		a.closers = append(a.closers, logFile.Close)
	}
	a.logger = slog.Default()

	local, err := localstore.Open(cfg.Local.Path)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.closers = append(a.closers, local.Close)
	a.local = local
	a.queue = offlinequeue.New(local.DB())

	a.remote = remotestore.Unavailable{}
	if cfg.Remote.Enabled() {
		db, err := database.Open(cfg.Remote)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("open remote database: %w", err), a.Close())
		}
		a.closers = append(a.closers, db.Close)
		a.remote = remotestore.NewDBStore(db)
	} else {
		a.logger.Debug("remote store is not configured")
	}

	userID, err := a.signedInUser()
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.auth = auth.NewSession(userID)
	a.bus = events.NewBus(a.logger)

	storage, err := hybrid.New(hybrid.Options{
		Local:  a.local,
		Queue:  a.queue,
		Remote: a.remote,
		Auth:   a.auth,
		Bus:    a.bus,
		Logger: a.logger,
		Sync:   cfg.Sync,
	})
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.storage = storage
	return a, nil
}

// Close releases everything in reverse opening order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// signedInUser returns the configured user, falling back to the last login on this device.
func (a *app) signedInUser() (string, error) {
	if a.cfg.Auth.UserID != "" {
		return a.cfg.Auth.UserID, nil
	}
	record, err := localstore.GetAs[signedInUser](a.local, localstore.CollectionMeta, metaSignedInUser)
	if err != nil {
		return "", fmt.Errorf("load signed-in user: %w", err)
	}
	if record == nil {
		return "", nil
	}
	return record.UserID, nil
}

func (a *app) rememberUser(userID string) error {
	if err := a.local.Put(localstore.CollectionMeta, metaSignedInUser, signedInUser{UserID: userID}); err != nil {
		return fmt.Errorf("remember signed-in user: %w", err)
	}
	return nil
}

func (a *app) forgetUser() error {
	if _, err := a.local.Delete(localstore.CollectionMeta, metaSignedInUser); err != nil {
		return fmt.Errorf("forget signed-in user: %w", err)
	}
	return nil
}

// withApp opens the app for the duration of run.
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, a.Close())
		}()
		return run(cmd, args, a)
	}
}
