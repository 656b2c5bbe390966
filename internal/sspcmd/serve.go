package sspcmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"sspbackend/internal/sspauth/jwksfetcher"
	"sspbackend/internal/sspauth/jwtdecoder"
	"sspbackend/internal/sspcrypto/hashtree"
	"sspbackend/internal/sspcrypto/platformcert"
	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspserver"
	"sspbackend/internal/sspserver/handlers"
	"sspbackend/internal/sspservice/accesscontrol"
	"sspbackend/internal/sspservice/certificate"
	"sspbackend/internal/sspservice/delegation"
	"sspbackend/internal/sspservice/userdirectory"
	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/config"
	"sspbackend/internal/sspshared/database"
	"sspbackend/internal/sspshared/logging"
	"sspbackend/internal/sspshared/magic"
	"sspbackend/internal/sspshared/store"
	"sspbackend/internal/sspshared/sysinfo"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand builds the "serve" subcommand that starts the HTTP
// API and runs until SIGINT/SIGTERM.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "serve",
		Short:              "Run the ssp-backend HTTP API",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Parse(args, true)
			if err != nil {
				return fmt.Errorf("failed to parse configuration: %w", err)
			}

			return runServer(cmd.Context(), settings)
		},
	}
}

func runServer(ctx context.Context, settings *config.Settings) error {
	telemetry, err := logging.New(ctx, logging.Settings{
		ServiceName:  "ssp-backend",
		LogLevel:     settings.LogLevel,
		OTLPEndpoint: settings.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if shutdownErr := telemetry.Shutdown(); shutdownErr != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown error: %v\n", shutdownErr)
		}
	}()

	slogger := telemetry.Slogger

	db, err := openDatabase(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	st := store.NewGormStore(db)

	controllerPrincipals, err := parseControllerPrincipals(settings.ControllerPrincipals)
	if err != nil {
		return err
	}

	users := userdirectory.NewService(st)
	access := accesscontrol.NewService(st, controllerPrincipals)

	jwksSvc := jwksfetcher.NewService(st, http.DefaultClient, settings.JWKSURI)

	decoder := jwtdecoder.NewDecoder(settings.Issuer, settings.Audience, jwksSvc)
	signatureMap := hashtree.NewSignatureMap()
	delegationSvc := delegation.NewService(decoder, signatureMap, users, st, []byte(settings.SelfCanisterID))

	signer, err := platformcert.NewSigner()
	if err != nil {
		return fmt.Errorf("failed to initialize platform signer: %w", err)
	}

	certSvc := certificate.NewService(st, signer)

	if err := certSvc.CertifyAll(ctx); err != nil {
		return fmt.Errorf("failed to rehydrate certificate registry: %w", err)
	}

	if err := jwksSvc.SyncJWKS(ctx); err != nil {
		slogger.Warn("initial jwks sync failed, continuing with empty key set", "error", err)
	}

	jwksSvc.StartBackgroundRefresh(ctx, magic.JWKSRefreshInterval, func(refreshErr error) {
		slogger.Error("background jwks refresh failed", "error", refreshErr)
	})
	defer jwksSvc.Stop()

	h := &handlers.Handlers{
		Delegation:  delegationSvc,
		JWKS:        jwksSvc,
		Access:      access,
		Users:       users,
		Certificate: certSvc,
		Signer:      signer,
		SysInfo:     sysinfo.NewDefaultProvider(),
	}

	app := sspserver.New(h)

	listenAddr := fmt.Sprintf("%s:%d", settings.ListenAddress, settings.ListenPort)

	serveErrCh := make(chan error, 1)

	go func() {
		slogger.Info("starting ssp-backend", "address", listenAddr)
		serveErrCh <- app.Listen(listenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErrCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	case <-sigCh:
		slogger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	slogger.Info("stopped cleanly")

	return nil
}

func parseControllerPrincipals(raw []string) ([]sspdomain.Principal, error) {
	principals := make([]sspdomain.Principal, 0, len(raw))

	for _, text := range raw {
		principal, err := sspdomain.ParsePrincipalText(text)
		if err != nil {
			return nil, fmt.Errorf("invalid controller principal %q: %w", text, err)
		}

		principals = append(principals, principal)
	}

	return principals, nil
}

func openDatabase(ctx context.Context, settings *config.Settings) (*gorm.DB, error) {
	switch database.DatabaseType(settings.DatabaseType) {
	case database.DatabaseTypeSQLite:
		return database.InitSQLite(ctx, settings.DatabaseURL, database.MigrationsFS)
	case database.DatabaseTypePostgreSQL:
		return database.InitPostgreSQL(ctx, settings.DatabaseURL, database.MigrationsFS)
	default:
		return nil, apperr.New(apperr.KindValidationError, "unsupported database type: "+settings.DatabaseType)
	}
}
