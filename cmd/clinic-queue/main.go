package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Drax929/orderly-patient-nexus/internal/config"
	"github.com/Drax929/orderly-patient-nexus/internal/httpapi"
	"github.com/Drax929/orderly-patient-nexus/internal/models"
	"github.com/Drax929/orderly-patient-nexus/internal/store"
	"github.com/Drax929/orderly-patient-nexus/internal/store/memory"
	"github.com/Drax929/orderly-patient-nexus/internal/store/postgres"
	"github.com/Drax929/orderly-patient-nexus/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	loc := time.Local
	if cfg.ClinicTimezone != "" {
		parsed, err := time.LoadLocation(cfg.ClinicTimezone)
		if err != nil {
			log.Fatalf("load timezone %q: %v", cfg.ClinicTimezone, err)
		}
		loc = parsed
	}

	shutdownTelemetry := telemetry.Setup("clinic-queue")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	defaultProfile := models.Profile{
		DoctorName:             cfg.DoctorName,
		ClinicName:             cfg.ClinicName,
		Morning:                &models.ScheduleWindow{Start: "09:00", End: "12:00"},
		Evening:                &models.ScheduleWindow{Start: "17:00", End: "20:00"},
		AvgConsultationMinutes: cfg.AvgConsultMinutes,
	}

	var visits store.VisitStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		visits = postgres.NewStore(pool, postgres.Options{
			Location:       loc,
			DefaultProfile: defaultProfile,
		})
	} else {
		log.Printf("DB_DSN not set, using in-memory store")
		visits = memory.NewStore(loc, defaultProfile)
	}

	handler := httpapi.NewHandler(visits, httpapi.Options{
		Location:         loc,
		MinContactDigits: cfg.MinContactDigits,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())), "clinic-queue")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("clinic-queue listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
