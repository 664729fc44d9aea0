package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/assets"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/config"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customers"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/database"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/orders"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/preview"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/server"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/templates"
)

const (
	previewWidth  = 800
	previewHeight = 600
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "storefront-api",
		Short: "Packaging storefront backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueSessionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.StringSlice("allowed-origins", nil, "Origins allowed to make credentialed requests (empty allows any)")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")
	flags.String("cookie-name", defaults.GetString("auth.cookie_name"), "Session cookie name")
	flags.String("issuer", defaults.GetString("auth.issuer"), "Session token issuer")
	flags.Duration("clock-skew", defaults.GetDuration("auth.clock_skew"), "Tolerated clock skew when checking session timestamps")
	flags.Int("max-quantity", defaults.GetInt("cart.max_quantity"), "Largest quantity a cart line may carry")
	flags.Duration("template-cache-ttl", defaults.GetDuration("cache.template_ttl"), "How long decoded templates are cached")
	flags.Duration("asset-fetch-timeout", defaults.GetDuration("assets.fetch_timeout"), "Timeout for fetching template images")
	flags.Int64("asset-max-bytes", defaults.GetInt64("assets.max_bytes"), "Largest image payload accepted")
	flags.Int("preview-max-dimension", defaults.GetInt("assets.preview_max_dimension"), "Largest edge of stored template thumbnails")
	flags.String("chrome-path", defaults.GetString("preview.chrome_path"), "Chrome binary for PNG previews (empty serves SVG)")
	flags.Duration("preview-timeout", defaults.GetDuration("preview.timeout"), "Timeout for rendering one preview")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.cookie_name", "cookie-name")
	bindFlag(cmd, "auth.issuer", "issuer")
	bindFlag(cmd, "auth.clock_skew", "clock-skew")
	bindFlag(cmd, "cart.max_quantity", "max-quantity")
	bindFlag(cmd, "cache.template_ttl", "template-cache-ttl")
	bindFlag(cmd, "assets.fetch_timeout", "asset-fetch-timeout")
	bindFlag(cmd, "assets.max_bytes", "asset-max-bytes")
	bindFlag(cmd, "assets.preview_max_dimension", "preview-max-dimension")
	bindFlag(cmd, "preview.chrome_path", "chrome-path")
	bindFlag(cmd, "preview.timeout", "preview-timeout")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newIssueSessionCommand() *cobra.Command {
	var (
		customerID string
		email      string
		name       string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-session",
		Short: "Print a signed session token for a customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.Issuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(auth.Customer{ID: customerID, Email: email, Name: name})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\nexpires_in=%d\n", appConfig.CookieName, token, expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&customerID, "customer-id", "", "Customer identifier placed in the token subject")
	cmd.Flags().StringVar(&email, "email", "", "Customer email")
	cmd.Flags().StringVar(&name, "name", "", "Customer display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default 12h)")
	if err := cmd.MarkFlagRequired("customer-id"); err != nil {
		panic(err)
	}
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	handler, err := buildHandler(db, appConfig, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

func buildHandler(db *gorm.DB, appConfig config.AppConfig, logger *zap.Logger) (http.Handler, error) {
	ids := canvas.NewUUIDProvider()

	templateService, err := templates.NewService(templates.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: ids,
		Previews:   assets.NewPreviewNormalizer(appConfig.PreviewMaxDimension),
		Logger:     logger,
		CacheTTL:   appConfig.TemplateCacheTTL,
	})
	if err != nil {
		return nil, err
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	deserializer, err := templates.NewDeserializer(templates.DeserializerConfig{
		Loader: assets.NewLoader(assets.LoaderConfig{
			FetchTimeout: appConfig.AssetFetchTimeout,
			MaxBytes:     appConfig.AssetMaxBytes,
			Logger:       logger,
		}),
		IDs:    ids,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	composer := preview.NewSVGComposer(previewWidth, previewHeight)
	var renderer preview.Renderer = composer
	if appConfig.ChromePath != "" {
		renderer = preview.NewChromeRasterizer(composer, preview.ChromeConfig{
			ExecPath: appConfig.ChromePath,
			Timeout:  appConfig.PreviewTimeout,
			Logger:   logger,
		})
	}
	previewService, err := preview.NewService(preview.ServiceConfig{
		Templates:    templateService,
		Deserializer: deserializer,
		Renderer:     renderer,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	orderService, err := orders.NewService(orders.ServiceConfig{
		Database:    db,
		Clock:       time.Now,
		IDProvider:  ids,
		Templates:   templateService,
		Prices:      catalogService,
		Previews:    previewService,
		MaxQuantity: appConfig.MaxQuantity,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		CookieName:    appConfig.CookieName,
		Leeway:        appConfig.ClockSkew,
	})
	if err != nil {
		return nil, err
	}

	directory, err := customers.NewService(customers.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return nil, err
	}

	return server.NewHTTPHandler(server.Dependencies{
		Sessions:       validator,
		Customers:      directory,
		Templates:      templateService,
		Catalog:        catalogService,
		Orders:         orderService,
		Previews:       previewService,
		Realtime:       server.NewRealtimeDispatcher(),
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
}
