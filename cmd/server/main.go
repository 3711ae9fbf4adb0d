package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/acappella-workshop/internal/analytics"
	"github.com/iliyamo/acappella-workshop/internal/checkout"
	"github.com/iliyamo/acappella-workshop/internal/config"
	"github.com/iliyamo/acappella-workshop/internal/database"
	"github.com/iliyamo/acappella-workshop/internal/email"
	"github.com/iliyamo/acappella-workshop/internal/handler"
	"github.com/iliyamo/acappella-workshop/internal/kv"
	"github.com/iliyamo/acappella-workshop/internal/logger"
	"github.com/iliyamo/acappella-workshop/internal/middleware"
	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/pricing"
	"github.com/iliyamo/acappella-workshop/internal/queue"
	"github.com/iliyamo/acappella-workshop/internal/reconcile"
	"github.com/iliyamo/acappella-workshop/internal/repository"
	"github.com/iliyamo/acappella-workshop/internal/router"
)

const tokenPurgeInterval = time.Hour

func main() {
	config.LoadDotenv()
	cfg := config.Load() // Load environment config
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := database.Migrate(bootCtx, db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	students := repository.NewStudentRepo(db)
	weeks := repository.NewWeekRepo(db)
	regs := repository.NewRegistrationRepo(db)
	payments := repository.NewPaymentRepo(db)
	audit := repository.NewAuditRepo(db)

	if err := weeks.Seed(bootCtx, model.Seed); err != nil {
		log.Fatal().Err(err).Msg("seed weeks")
	}
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if _, err := users.EnsureAdmin(bootCtx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost); err != nil {
			log.Fatal().Err(err).Msg("bootstrap admin")
		}
	}
	cancel()

	if cfg.PromoOverrideCode != "" {
		pricing.RegisterFixedTotal(cfg.PromoOverrideCode, int64(cfg.PromoOverrideCents))
		log.Warn().Str("code", cfg.PromoOverrideCode).Msg("fixed-total promo code enabled")
	}

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb == nil {
		log.Warn().Msg("redis unavailable: carts, visits, caching and rate limiting are disabled")
	} else {
		defer rdb.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	stripe := checkout.NewStripeProcessor(cfg.StripeSecretKey, cfg.StripeWebhookSecret, log)
	initiator := checkout.NewInitiator(stripe, weeks, validate, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL, log)

	publisher := queue.NewPublisher(cfg.RabbitURL, log)
	reconciler := reconcile.New(reconcile.NewMySQLLedger(db), audit, users, publisher, log)

	emailCfg := config.LoadEmailConfig()
	sender := email.New(emailCfg, log)
	go func() {
		err := queue.StartRegistrationConsumer(ctx, cfg.RabbitURL, func(ctx context.Context, ev queue.RegistrationPaidEvent) error {
			msg, err := email.Confirmation(ev, emailCfg.AdminCopy)
			if err != nil {
				return err
			}
			return sender.Send(ctx, msg)
		}, log)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("registration consumer stopped")
		}
	}()

	go purgeTokens(ctx, tokens, log)

	var (
		carts  kv.Store
		visits *analytics.Visits
	)
	if rdb != nil {
		carts = kv.NewRedis(rdb, "")
		visits = analytics.NewVisits(rdb, "acw")
	}

	authH := handler.NewAuthHandler(cfg, users, tokens, validate, log)
	checkoutH := handler.NewCheckoutHandler(initiator, weeks, users, regs, students, carts, log)
	analyticsH := handler.NewAnalyticsHandler(visits, log)

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	checkoutLimit := middleware.NewTokenBucket(config.LoadCheckoutRateLimitConfig(), rdb, log)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())
	e.Use(echo.WrapMiddleware(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.VisitorHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	}).Handler))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, authH, handler.NewOAuthHandler(authH), limit)
	router.RegisterPublic(e, router.Public{
		Weeks:         weeks,
		Cart:          handler.NewCartHandler(carts, weeks),
		Checkout:      checkoutH,
		PaymentStatus: handler.PaymentStatus(stripe, reconciler, log),
		Webhook:       handler.NewWebhookHandler(stripe, reconciler, log),
		Analytics:     analyticsH,
	}, cfg.JWTSecret, cache, limit, checkoutLimit)
	router.RegisterAccount(e, handler.NewAccountHandler(users, students, regs, payments, validate), checkoutH, cfg.JWTSecret, limit, checkoutLimit)
	router.RegisterAdmin(e, handler.NewAdminHandler(regs, students, weeks, audit, log), analyticsH, cfg.JWTSecret)

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Bool("redis", rdb != nil).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}

// purgeTokens deletes expired refresh tokens once an hour.
func purgeTokens(ctx context.Context, tokens *repository.TokenRepo, log zerolog.Logger) {
	t := time.NewTicker(tokenPurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			c, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := tokens.PurgeExpired(c, now)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("purge refresh tokens")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("expired refresh tokens removed")
			}
		}
	}
}
