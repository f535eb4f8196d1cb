package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/rudotcom/electron/handlers"
	"github.com/rudotcom/electron/internal/auth"
	"github.com/rudotcom/electron/internal/catalog"
	"github.com/rudotcom/electron/internal/consul"
	"github.com/rudotcom/electron/internal/identity"
	"github.com/rudotcom/electron/internal/notify"
	"github.com/rudotcom/electron/internal/orders"
	"github.com/rudotcom/electron/internal/params"
	"github.com/rudotcom/electron/internal/stores/kafka"
	"github.com/rudotcom/electron/internal/stores/postgres"
	"github.com/rudotcom/electron/pkg/logkey"
)

func main() {
	setupSlog()

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment")
	}

	if err := startApp(); err != nil {
		slog.Error("failed to start service", slog.String(logkey.ERROR, err.Error()))
		os.Exit(1)
	}
}

func startApp() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("connecting to database")
	db, err := postgres.Open(postgres.Config{
		User:       os.Getenv("POSTGRES_USER"),
		Password:   os.Getenv("POSTGRES_PASSWORD"),
		Host:       os.Getenv("POSTGRES_HOST"),
		Port:       os.Getenv("POSTGRES_PORT"),
		Name:       os.Getenv("POSTGRES_DB"),
		DisableTLS: os.Getenv("POSTGRES_DISABLE_TLS") == "true",
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pemPath := os.Getenv("AUTH_PUBLIC_KEY_FILE")
	if pemPath == "" {
		pemPath = "pubkey.pem"
	}
	publicPEM, err := os.ReadFile(pemPath)
	if err != nil {
		return fmt.Errorf("reading auth public key: %w", err)
	}
	keys, err := auth.NewKeys(publicPEM)
	if err != nil {
		return fmt.Errorf("parsing auth public key: %w", err)
	}

	slog.Info("connecting to kafka")
	k, err := kafka.NewConf(strings.Split(os.Getenv("KAFKA_BROKERS"), ","))
	if err != nil {
		return fmt.Errorf("creating kafka client: %w", err)
	}
	defer k.Close()

	i, err := identity.NewConf(db)
	if err != nil {
		return err
	}
	p, err := params.NewConf(db)
	if err != nil {
		return err
	}
	o, err := orders.NewConf(db, p)
	if err != nil {
		return err
	}
	cat, err := catalog.NewConf(db)
	if err != nil {
		return err
	}
	n, err := notify.NewConf(notify.SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     os.Getenv("SMTP_PORT"),
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}, k)
	if err != nil {
		return err
	}

	port, err := strconv.Atoi(os.Getenv("APP_PORT"))
	if err != nil {
		port = 8080
	}

	consulClient, err := consul.NewClient(os.Getenv("CONSUL_ADDRESS"))
	if err != nil {
		return fmt.Errorf("creating consul client: %w", err)
	}
	serviceID := "store-" + uuid.NewString()
	if err := consul.RegisterService(consulClient, "store", serviceID, os.Getenv("SERVICE_HOST"), port); err != nil {
		return fmt.Errorf("registering service: %w", err)
	}
	defer func() {
		if err := consul.DeregisterService(consulClient, serviceID); err != nil {
			slog.Error("deregistering service", slog.String(logkey.ERROR, err.Error()))
		}
	}()

	stripeCfg := handlers.StripeConfig{
		SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		SiteURL:       os.Getenv("SITE_URL"),
	}

	api := http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handlers.API("/v1", keys, i, o, cat, p, n, stripeCfg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("starting server", slog.String("addr", api.Addr))
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		slog.Info("shutdown started", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := api.Shutdown(shutdownCtx); err != nil {
			if err := api.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("graceful shutdown: %w", err)
			}
		}
	}

	return nil
}

func setupSlog() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	})
	slog.SetDefault(slog.New(handler))
}
