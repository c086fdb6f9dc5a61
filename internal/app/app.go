// Package app builds the storefront service from configuration. Every backend
// choice (Postgres or memory, S3 or HTTP archive, live or mock payments) is
// made here once, at startup.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/events"
	storefrontHttp "github.com/vasiliy-maslov/ecommerce-storefront/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/storage"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/transport"
)

type App struct {
	Router   http.Handler
	Orders   order.Service
	Admins   admin.Service
	Workflow *checkout.Workflow

	closers []func()
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	var pg *db.Postgres
	if cfg.Postgres.Enabled() {
		conn, err := db.New(ctx, cfg.Postgres)
		if err != nil {
			// сервис поднимается и без базы, заказы уйдут в память
			log.Warn().Err(err).Msg("PostgreSQL unavailable, orders and admins will be kept in memory")
		} else {
			pg = conn
			a.closers = append(a.closers, conn.Close)
		}
	}

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var primary order.Repository
	if pg != nil {
		primary = order.NewPostgresRepository(pg.Pool)
	}
	orders := order.NewStore(primary, order.NewMemoryRepository(), sinks...)

	var publisher order.EventPublisher
	if cfg.Events.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.Events)
		if err != nil {
			log.Warn().Err(err).Msg("Order events broker unavailable, events disabled")
		} else {
			publisher = p
			a.closers = append(a.closers, p.Close)
		}
	}

	var provider payment.Provider
	if cfg.Payment.SecretKey != "" {
		provider = payment.NewStripeProvider(cfg.Payment.SecretKey)
	}
	gateway := payment.NewGateway(cfg.Payment.TestMode, provider, cfg.Payment.DefaultCurrency, cfg.Timeouts.Provider)

	var verifier payment.SignatureVerifier
	if cfg.Payment.WebhookSecret != "" {
		verifier = payment.NewStripeVerifier(cfg.Payment.WebhookSecret)
	}
	receiver := payment.NewReceiver(cfg.Payment.TestMode, verifier)

	notifier := notify.NewNotifier(notify.NewResendMailer(cfg.Email.ResendAPIKey), cfg.Email)
	a.Workflow = checkout.NewWorkflow(notifier, orders, publisher, checkout.Options{
		ShippingCost:  cfg.Payment.ShippingCost,
		TestMode:      cfg.Payment.TestMode,
		EffectTimeout: cfg.Timeouts.Effect,
	})

	a.Orders = order.NewService(orders, publisher, cfg.Payment.ShippingCost)

	var admins admin.Repository
	if pg != nil {
		admins = admin.NewPostgresRepository(pg.SQL)
	} else {
		admins = admin.NewMemoryRepository()
	}
	a.Admins = admin.NewService(admins, admin.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))

	if pg == nil {
		bootstrapAdmin(ctx, a.Admins, cfg.Auth.Bootstrap)
	}

	a.Router = transport.NewRouter(
		storefrontHttp.NewPaymentHandler(gateway, receiver, a.Workflow),
		storefrontHttp.NewAuthHandler(a.Admins, cfg.Auth.CookieSecure),
		storefrontHttp.NewOrderHandler(a.Orders, a.Admins, cfg.Auth.InternalAPIKey),
	)

	log.Info().
		Bool("test_mode", cfg.Payment.TestMode).
		Bool("postgres", pg != nil).
		Int("archive_sinks", len(sinks)).
		Bool("events", publisher != nil).
		Bool("live_payments", provider != nil).
		Msg("Storefront service assembled")

	return a, nil
}

func buildSinks(ctx context.Context, cfg *config.Config) ([]order.Sink, error) {
	var sinks []order.Sink

	switch cfg.Storage.Type {
	case config.StorageS3:
		s3Sink, err := storage.NewS3Sink(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, fmt.Errorf("app: failed to init s3 archive: %w", err)
		}
		sinks = append(sinks, s3Sink)
	case config.StorageDatabase:
		sinks = append(sinks, storage.NewDatabaseAPISink(cfg.Storage.DatabaseAPI, cfg.Timeouts.HTTPClient))
	}

	if cfg.Storage.AdminPanel.URL != "" {
		sinks = append(sinks, storage.NewAdminPanelSink(cfg.Storage.AdminPanel, cfg.Timeouts.HTTPClient))
	}

	return sinks, nil
}

// bootstrapAdmin заводит администратора из окружения, когда учетки живут
// только в памяти и иначе войти было бы некем.
func bootstrapAdmin(ctx context.Context, svc admin.Service, b config.BootstrapAdmin) {
	if b.Email == "" || b.Password == "" {
		log.Warn().Msg("No database and no ADMIN_EMAIL/ADMIN_PASSWORD, admin login is unavailable")
		return
	}
	if _, err := svc.EnsureAdmin(ctx, b.Email, b.Password, b.Name); err != nil {
		log.Error().Err(err).Str("email", b.Email).Msg("Failed to bootstrap in-memory admin")
		return
	}
	log.Info().Str("email", b.Email).Msg("In-memory admin bootstrapped")
}

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
