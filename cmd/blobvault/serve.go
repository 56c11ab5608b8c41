package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solacelabs/blobvault/internal/blobstore/physical"
	"github.com/solacelabs/blobvault/internal/cache"
	"github.com/solacelabs/blobvault/internal/config"
	"github.com/solacelabs/blobvault/internal/httpapi"
	"github.com/solacelabs/blobvault/internal/kms"
	"github.com/solacelabs/blobvault/internal/observability"
	"github.com/solacelabs/blobvault/internal/service"
	"github.com/solacelabs/blobvault/pkg/logging"

	// Register storage backends.
	_ "github.com/solacelabs/blobvault/internal/blobstore/physical/badger"
	_ "github.com/solacelabs/blobvault/internal/blobstore/physical/memory"
	_ "github.com/solacelabs/blobvault/internal/blobstore/physical/s3"
)

func newServeCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP blob service",
		Long: `Start the HTTP blob service.

POST application/octet-stream uploads a blob; POST application/json with
{"blobKey": "..."} downloads one. The bucket (or backend path) is required;
a missing KMS key id disables client-side encryption.

Examples:
  blobvault serve --addr :8080 --key-id alias/blobvault
  BUCKET=my-blobs KEY_ID=alias/blobvault blobvault serve
  blobvault serve --backend badger                       # local, unencrypted store
  blobvault serve --config /etc/blobvault/blobvault.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := logging.Setup(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Mandatory storage configuration fails the process here, before
			// any request is accepted.
			store, err := physical.New(ctx, cfg.Storage.Backend, cfg.Storage.Config)
			if err != nil {
				return fmt.Errorf("create store: %w", err)
			}
			defer func() { _ = store.Close() }()

			var cipher kms.Cipher
			if cfg.Crypto.KeyID != "" {
				c, err := kms.New(ctx, kms.Options{
					Region:          cfg.Crypto.Region,
					Endpoint:        cfg.Crypto.Endpoint,
					AccessKeyID:     cfg.Crypto.AccessKeyID,
					SecretAccessKey: cfg.Crypto.SecretAccessKey,
				})
				if err != nil {
					return fmt.Errorf("create kms client: %w", err)
				}
				cipher = c
			} else {
				logger.Warn("no KMS key configured, blobs will be stored without client-side encryption")
			}

			var blobCache *cache.Cache
			if cfg.Cache.Enabled {
				blobCache = cache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxItemSize, cfg.Cache.TTL)
			}

			metrics := observability.NewMetrics()

			handler := service.NewHandler(store, cipher, blobCache, service.Config{
				KeyID:       cfg.Crypto.KeyID,
				MaxBlobSize: cfg.Server.MaxBlobSize,
			}, metrics, logger.WithComponent("service"))

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           httpapi.NewRouter(handler, metrics),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("blob service listening", "addr", cfg.Server.Addr, "backend", cfg.Storage.Backend)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("serve: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	config.BindServeFlags(cmd, v)
	cmd.Flags().StringVar(&configFile, "config", "", "config file path")

	return cmd
}
