// main is the entry point of the Attendance API.
//
// STARTUP SEQUENCE:
//  1. Load configuration (.env, YAML file, environment overrides)
//  2. Initialise the logger
//  3. Open the class store (SQLite or PostgreSQL)
//  4. Build the reverse geocoder and the optional report exporter
//  5. Register all HTTP routes behind the logging middleware
//  6. Start the HTTP server in a separate goroutine
//  7. Block until SIGINT/SIGTERM, then shut down gracefully
//
// RUNNING THE SERVER:
//
//	go run ./cmd/attendance-api --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/attendance-api
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aanand-mishra/attendance-api/internal/config"
	"github.com/aanand-mishra/attendance-api/internal/export"
	"github.com/aanand-mishra/attendance-api/internal/geocode"
	"github.com/aanand-mishra/attendance-api/internal/http/handlers/attendance"
	"github.com/aanand-mishra/attendance-api/internal/http/handlers/class"
	"github.com/aanand-mishra/attendance-api/internal/http/handlers/venue"
	"github.com/aanand-mishra/attendance-api/internal/http/middleware"
	"github.com/aanand-mishra/attendance-api/internal/storage"
	"github.com/aanand-mishra/attendance-api/internal/storage/postgres"
	"github.com/aanand-mishra/attendance-api/internal/storage/sqlite"
	"github.com/aanand-mishra/attendance-api/internal/utils/response"
)

// store is what both backends provide: class records plus the place-name
// cache used by the geocoder.
type store interface {
	storage.Storage
	storage.PlaceCache
}

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// Handlers log through the slog package functions, so the configured
	// logger becomes the default.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting attendance-api",
		slog.String("env", cfg.Env),
		slog.String("version", "1.0.0"),
	)

	ctx := context.Background()

	// ── 3. Initialise Storage ─────────────────────────────────────────────
	db, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("driver", cfg.Storage.Driver),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	log.Info("storage initialised", slog.String("driver", cfg.Storage.Driver))

	// ── 4. Geocoder and Report Export ─────────────────────────────────────
	reverser, err := newReverser(cfg.Geocode, db)
	if err != nil {
		log.Error("failed to initialise geocoder",
			slog.String("provider", cfg.Geocode.Provider),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	// publisher stays a nil interface when export is off.
	var publisher export.Publisher
	if cfg.Export.Enabled {
		objects, err := export.NewObjectStore(cfg.Export)
		if err != nil {
			log.Error("failed to initialise report export", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			log.Error("failed to prepare report bucket",
				slog.String("bucket", cfg.Export.Bucket),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		publisher = objects
		log.Info("report export enabled",
			slog.String("endpoint", cfg.Export.Endpoint),
			slog.String("bucket", cfg.Export.Bucket))
	}

	// ── 5. Register HTTP Routes ───────────────────────────────────────────
	// Route table:
	//   POST /api/classes                      → schedule a class
	//   GET  /api/classes?lecturerId=          → list classes
	//   GET  /api/classes/{id}                 → one class
	//   GET  /api/classes/{id}/qr.png          → attendance link as QR code
	//   GET  /api/classes/{id}/attendees       → attendee list
	//   GET  /api/classes/{id}/attendees.csv   → attendee report
	//   GET  /api/attendance/status            → distance check
	//   POST /api/attendance                   → register attendance
	//   GET  /api/geocode/reverse              → venue name lookup
	//   GET  /health                           → liveness
	router := http.NewServeMux()

	router.HandleFunc("POST /api/classes", class.New(db, reverser, cfg.PublicBaseURL))
	router.HandleFunc("GET /api/classes", class.GetList(db))
	router.HandleFunc("GET /api/classes/{id}", class.GetByID(db))
	router.HandleFunc("GET /api/classes/{id}/qr.png", class.QRCode(db, cfg.QR.Size))
	router.HandleFunc("GET /api/classes/{id}/attendees", class.Attendees(db))
	router.HandleFunc("GET /api/classes/{id}/attendees.csv", class.AttendeesCSV(db))

	router.HandleFunc("GET /api/attendance/status", attendance.Status(db, cfg.Geofence))
	router.HandleFunc("POST /api/attendance", attendance.Register(db, cfg.Geofence, publisher))

	router.HandleFunc("GET /api/geocode/reverse", venue.Reverse(reverser))

	router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, map[string]string{"status": response.StatusOK})
	})

	// ── 6. Start the HTTP Server ──────────────────────────────────────────
	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr,
		Handler: middleware.Logging(log, router),

		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))

		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.Error("server encountered an error",
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// ── 7. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutdown signal received, stopping server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server gracefully",
			slog.String("error", err.Error()))
		return
	}

	log.Info("server stopped gracefully")
}

// openStore picks the backend named by storage.driver.
func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return postgres.New(ctx, cfg)
	case "sqlite", "":
		return sqlite.New(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newReverser builds the geocoder named by geocode.provider, wrapped in the
// place cache unless geocode.cache is false. A nil Reverser means lookups
// are disabled.
func newReverser(cfg config.Geocode, cache storage.PlaceCache) (geocode.Reverser, error) {
	var inner geocode.Reverser

	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "nominatim":
		inner = geocode.NewNominatim(geocode.NominatimOptions{
			BaseURL:    cfg.NominatimURL,
			UserAgent:  cfg.UserAgent,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case "google":
		g, err := geocode.NewGoogle(cfg.GoogleAPIKey)
		if err != nil {
			return nil, err
		}
		inner = g
	default:
		return nil, fmt.Errorf("unknown geocode provider %q", cfg.Provider)
	}

	if !cfg.CacheEnabled() {
		return inner, nil
	}
	return &geocode.Cached{Inner: inner, Cache: cache}, nil
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}
}
