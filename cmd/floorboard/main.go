package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/floorboard/internal/auth"
	"github.com/MarcoPoloResearchLab/floorboard/internal/config"
	"github.com/MarcoPoloResearchLab/floorboard/internal/database"
	"github.com/MarcoPoloResearchLab/floorboard/internal/floor"
	"github.com/MarcoPoloResearchLab/floorboard/internal/kvstore"
	"github.com/MarcoPoloResearchLab/floorboard/internal/logging"
	"github.com/MarcoPoloResearchLab/floorboard/internal/server"
	"github.com/MarcoPoloResearchLab/floorboard/internal/ticker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	tokenIssuer   = "floorboard"
	tokenAudience = "floorboard-api"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "floorboard",
		Short: "Restaurant floor table tracker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newTokenCommand(), newSnapshotCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("storage-driver", defaults.GetString("storage.driver"), "Snapshot storage backend (sqlite, badger)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("badger-dir", defaults.GetString("badger.dir"), "Badger data directory")
	cmd.PersistentFlags().String("layout", defaults.GetString("floor.layout_path"), "YAML floor layout overriding the built-in tables")
	cmd.PersistentFlags().Int("service-window-minutes", defaults.GetInt("floor.service_window_minutes"), "Minutes from order to last order")
	cmd.PersistentFlags().Duration("tick-interval", defaults.GetDuration("tick.interval"), "Floor refresh interval")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Device token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "storage.driver", "storage-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "badger.dir", "badger-dir")
	bindFlag(cmd, "floor.layout_path", "layout")
	bindFlag(cmd, "floor.service_window_minutes", "service-window-minutes")
	bindFlag(cmd, "tick.interval", "tick-interval")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("floorboard")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newTokenCommand() *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a device token for a floor tablet",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if !appConfig.AuthEnabled() {
				return fmt.Errorf("auth.signing_secret is required to issue tokens")
			}
			issuer, err := newTokenIssuer(appConfig)
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueDeviceToken(cmd.Context(), device)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(map[string]any{
				"access_token": token,
				"expires_in":   expiresIn,
				"token_type":   "Bearer",
				"device":       device,
			})
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "Device name recorded in the token")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the current floor frame from storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			floorService, closeStorage, err := buildFloorService(cmd.Context(), appConfig, logger)
			if err != nil {
				return err
			}
			defer closeStorage()

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(floorService.Frame())
		},
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	floorService, closeStorage, err := buildFloorService(signalCtx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	dispatcher := server.NewRealtimeDispatcher()
	driver, err := ticker.NewDriver(ticker.Config[floor.Frame]{
		Interval: appConfig.TickInterval,
		Source:   floorService.Frame,
		Sink:     dispatcher.Publish,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	stopTicker := driver.Start(signalCtx)
	defer stopTicker()

	deps := server.Dependencies{
		FloorService:      floorService,
		Realtime:          dispatcher,
		Logger:            logger,
		HeartbeatInterval: appConfig.HeartbeatInterval,
		AllowedOrigins:    appConfig.AllowedOrigins,
	}
	if appConfig.AuthEnabled() {
		issuer, err := newTokenIssuer(appConfig)
		if err != nil {
			return err
		}
		deps.Tokens = issuer
	} else {
		logger.Warn("auth.signing_secret not set, table changes are not authenticated")
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildFloorService(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (*floor.Service, func(), error) {
	registry := floor.DefaultRegistry()
	if appConfig.LayoutPath != "" {
		loaded, err := floor.LoadRegistryFile(appConfig.LayoutPath)
		if err != nil {
			return nil, nil, err
		}
		registry = loaded
		logger.Info("floor layout loaded", zap.String("path", appConfig.LayoutPath), zap.Int("tables", registry.Len()))
	}

	kv, stopGC, err := openKeyValueStore(ctx, appConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	closeStorage := func() {
		stopGC()
		if err := kv.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}

	store, err := floor.NewStore(floor.StoreConfig{
		Registry: registry,
		KV:       kv,
		Key:      appConfig.StorageKey,
		Logger:   logger,
	})
	if err != nil {
		closeStorage()
		return nil, nil, err
	}

	floorService, err := floor.NewService(floor.ServiceConfig{
		Store:         store,
		Clock:         time.Now,
		ServiceWindow: appConfig.ServiceWindow,
		IDProvider:    floor.NewUUIDProvider(),
		Logger:        logger,
	})
	if err != nil {
		closeStorage()
		return nil, nil, err
	}
	if err := floorService.Load(ctx); err != nil {
		closeStorage()
		return nil, nil, err
	}
	return floorService, closeStorage, nil
}

// openKeyValueStore returns the configured backend and a function that stops its
// background work. The stop function must run before the store is closed.
func openKeyValueStore(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (kvstore.Store, func(), error) {
	switch appConfig.StorageDriver {
	case kvstore.DriverBadger:
		store, err := kvstore.OpenBadger(appConfig.BadgerDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.StartGC(ctx, appConfig.BadgerGCInterval), nil
	default:
		db, err := database.OpenSQLite(database.SQLiteConfig{
			Path:   appConfig.DatabasePath,
			Clock:  time.Now,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		store, err := kvstore.NewSQLiteStore(db, time.Now)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func newTokenIssuer(appConfig config.AppConfig) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
}
