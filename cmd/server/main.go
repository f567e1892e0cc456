package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvvvvv411/meta-backend-sub001/internal/config"
	"github.com/dvvvvv411/meta-backend-sub001/internal/db"
	"github.com/dvvvvv411/meta-backend-sub001/internal/handlers"
	"github.com/dvvvvv411/meta-backend-sub001/internal/logger"
	"github.com/dvvvvv411/meta-backend-sub001/internal/nowpayments"
	"github.com/dvvvvv411/meta-backend-sub001/internal/services"
	"github.com/dvvvvv411/meta-backend-sub001/internal/store"
	"github.com/dvvvvv411/meta-backend-sub001/internal/websocket"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, cleanup := logger.New(cfg.AppEnv)
	defer cleanup()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	profiles := store.NewProfileStore(database)
	transactions := store.NewTransactionStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	provider := nowpayments.New(nowpayments.Config{
		APIKey:  cfg.NowPayments.APIKey,
		BaseURL: cfg.NowPayments.BaseURL,
	})
	payments := services.NewPaymentService(txRunner, profiles, transactions, audit, provider, hub, services.PaymentServiceConfig{
		IPNSecret:     cfg.NowPayments.IPNSecret,
		AllowUnsigned: cfg.NowPayments.AllowUnsigned,
		CallbackURL:   cfg.PublicBaseURL + "/nowpayments-webhook",
	}, log)

	handler := handlers.New(cfg, txRunner, profiles, transactions, audit, payments, hub, log)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("payments API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("shutdown error", zap.Error(err))
	}
}
