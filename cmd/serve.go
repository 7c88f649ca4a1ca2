package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caliber-analytics/caliber-cli/internal/model"
	"github.com/caliber-analytics/caliber-cli/internal/pipeline"
	"github.com/caliber-analytics/caliber-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server for report scoring",
	Long:  "Accepts report uploads over HTTP, scores them synchronously, and exposes run history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore()
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			grace := time.Duration(cfg.Server.ShutdownGraceSecs) * time.Second
			if grace <= 0 {
				grace = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	uploadLimiter := rate.NewLimiter(rate.Limit(cfg.Server.UploadRatePerSec), cfg.Server.UploadBurst)
	r.With(limitMiddleware(uploadLimiter)).Post("/score", handleScore(st))

	r.Get("/runs", handleListRuns(st))
	r.Get("/runs/{id}", handleGetRun(st))

	return r
}

// limitMiddleware rejects requests beyond the upload rate. Scoring a large
// file is CPU-bound, so backpressure here protects the whole process.
func limitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSONResponse(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleScore accepts a multipart upload under the "report" field, scores it
// synchronously, and returns the rows and summary.
func handleScore(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := cfg.Server.MaxUploadBytes
		if maxBytes <= 0 {
			maxBytes = 64 << 20
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		file, header, err := r.FormFile("report")
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'report' is required"})
			return
		}
		defer file.Close()

		opts, err := requestOptions(r)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		// The xlsx reader needs a file on disk, so spool the upload.
		path, cleanup, err := spoolUpload(file, header.Filename)
		if err != nil {
			zap.L().Error("spool upload failed", zap.Error(err))
			writeJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "could not read upload"})
			return
		}
		defer cleanup()

		result, err := runFile(r.Context(), st, path, header.Filename, opts)
		if err != nil {
			writeJSONResponse(w, scoreErrorStatus(err), map[string]string{"error": err.Error()})
			return
		}

		writeJSONResponse(w, http.StatusOK, struct {
			Summary *model.PipelineSummary `json:"summary"`
			Rows    []*model.InventoryRow  `json:"rows"`
		}{result.Summary, result.Rows})
	}
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := st.ListRuns(r.Context(), store.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
			Source: model.Source(r.URL.Query().Get("source")),
		})
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "could not list runs"})
			return
		}
		writeJSONResponse(w, http.StatusOK, runs)
	}
}

func handleGetRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeJSONResponse(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSONResponse(w, http.StatusOK, run)
	}
}

// requestOptions maps query parameters onto pipeline options, reusing the
// same vocabulary as the score command's flags.
func requestOptions(r *http.Request) (pipeline.Options, error) {
	opts := pipeline.Options{
		Goal:          model.GoalAwareness,
		AnalysisLevel: model.LevelDomain,
	}

	switch goal := r.URL.Query().Get("goal"); goal {
	case "", "awareness":
	case "action":
		opts.Goal = model.GoalAction
	default:
		return opts, fmt.Errorf("invalid goal %q", goal)
	}

	switch level := r.URL.Query().Get("level"); level {
	case "", "domain":
	case "supply_vendor":
		opts.AnalysisLevel = model.LevelSupplyVendor
	default:
		return opts, fmt.Errorf("invalid level %q", level)
	}

	opts.CTRSensitive = r.URL.Query().Get("ctr_sensitive") == "true"
	return opts, nil
}

// scoreErrorStatus distinguishes bad input, which the caller can fix, from
// pipeline failures on data that parsed but could not be scored.
func scoreErrorStatus(err error) int {
	var unknown *model.UnknownSourceError
	var missing *model.MissingRequiredFieldsError
	if errors.As(err, &unknown) || errors.As(err, &missing) {
		return http.StatusBadRequest
	}
	return http.StatusUnprocessableEntity
}

func spoolUpload(file io.Reader, filename string) (path string, cleanup func(), err error) {
	ext := filepath.Ext(filename)
	tmp, err := os.CreateTemp("", "caliber-upload-*"+ext)
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
