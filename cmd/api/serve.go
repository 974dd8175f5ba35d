package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lakay-digital/recharge-relay/internal/adapters/httpapi"
	"github.com/lakay-digital/recharge-relay/internal/adapters/reloadly"
	"github.com/lakay-digital/recharge-relay/internal/adapters/shopify"
	"github.com/lakay-digital/recharge-relay/internal/app/operators"
	"github.com/lakay-digital/recharge-relay/internal/app/orders"
	"github.com/lakay-digital/recharge-relay/internal/app/recharge"
	"github.com/lakay-digital/recharge-relay/internal/app/tokencache"
	"github.com/lakay-digital/recharge-relay/internal/domain"
	"github.com/lakay-digital/recharge-relay/internal/platform/auth/adminauth"
	platformclock "github.com/lakay-digital/recharge-relay/internal/platform/clock"
	"github.com/lakay-digital/recharge-relay/internal/platform/config"
	"github.com/lakay-digital/recharge-relay/internal/platform/logging"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/fulfillment"
)

func serveCmd(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and admin HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*opts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, err := recharge.ParseMode(cfg.RechargeMode)
	if err != nil {
		return err
	}
	keyPolicy, err := recharge.ParseKeyPolicy(cfg.KeyPolicy)
	if err != nil {
		return err
	}
	policy := recharge.RetryPolicy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		Backoff:        recharge.Backoff(cfg.RetryBackoff),
		BaseDelay:      cfg.RetryBaseDelay,
		AttemptTimeout: cfg.ProviderTimeout,
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	rules, err := operators.LoadRules(cfg.OperatorRulesFile)
	if err != nil {
		return err
	}
	country := domain.Country{
		Code:            cfg.CountryCode,
		CallingCode:     cfg.CountryCallingCode,
		NationalLength:  cfg.CountryNationalLength,
		AllowedPrefixes: cfg.CountryAllowedPrefixes,
	}

	store, closeStore, err := openStore(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer closeStore()

	clk := platformclock.NewSystemClock()
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}

	apiURL := cfg.ReloadlyAPIURL
	if apiURL == "" {
		apiURL = reloadly.APIURLFor(cfg.ReloadlyEnv)
	}
	authURL := cfg.ReloadlyAuthURL
	if authURL == "" {
		authURL = reloadly.DefaultAuthURL
	}
	tokens := tokencache.New(
		reloadly.NewAuth(authURL, cfg.ReloadlyClientID, cfg.ReloadlyClientSecret, reloadly.APIURLFor(cfg.ReloadlyEnv), httpClient),
		clk,
		cfg.TokenRefreshMargin,
	)
	client := reloadly.NewClient(tokens, reloadly.ClientOptions{
		BaseURL:        apiURL,
		HTTPClient:     httpClient,
		Logger:         log.Named("reloadly"),
		UseLocalAmount: cfg.ReloadlyUseLocalAmount,
	})

	var fulfiller fulfillment.Fulfiller = fulfillment.Noop{}
	if cfg.ShopifyShopDomain != "" && cfg.ShopifyAccessToken != "" {
		fulfiller = shopify.New(cfg.ShopifyShopDomain, cfg.ShopifyAccessToken, cfg.ShopifyAPIVersion, httpClient)
	}

	svc := recharge.NewService(recharge.Config{
		Mode:              mode,
		KeyPolicy:         keyPolicy,
		WebhookSecret:     cfg.WebhookSecret,
		Country:           country,
		MaxPerPhonePerDay: cfg.MaxPerPhonePerDay,
	}, recharge.Deps{
		Interpreter: orders.New(orders.Config{Country: country, Bundles: rules.Bundles}),
		Store:       store,
		Resolver:    operators.NewResolver(client, country, rules, log.Named("operators")),
		Charger: recharge.NewExecutor(client, store, policy, recharge.ExecutorOptions{
			Tokens:         tokens,
			UseLocalAmount: cfg.ReloadlyUseLocalAmount,
			Logger:         log.Named("executor"),
		}),
		Fulfiller: fulfiller,
		Clock:     clk,
		Logger:    log.Named("recharge"),
	})

	routerOpts := httpapi.RouterOptions{Logger: log.Named("http"), MaxWebhookBytes: cfg.MaxWebhookBytes}
	if cfg.AdminJWTSecret != "" {
		routerOpts.AdminAuth = httpapi.NewAuthMiddleware(adminauth.NewVerifier(cfg.AdminJWTSecret, cfg.AdminJWTIssuer, nil))
	} else {
		log.Info("ADMIN_JWT_SECRET not set; admin API disabled")
	}
	if mode == recharge.ModeManualConfirmation && routerOpts.AdminAuth == nil {
		log.Warn("manual-confirmation mode without admin API: pending recharges cannot be confirmed")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(svc, routerOpts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("recharge-relay listening",
			zap.String("addr", srv.Addr),
			zap.String("mode", string(mode)),
			zap.String("key_policy", string(keyPolicy)),
			zap.String("backend", cfg.StorageBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	// In-flight webhooks finish their charge before the store closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
