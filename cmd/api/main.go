package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/deveshk/invoicescan/internal/api/handlers"
	"github.com/deveshk/invoicescan/internal/api/middleware"
	"github.com/deveshk/invoicescan/internal/config"
	"github.com/deveshk/invoicescan/internal/extract"
	"github.com/deveshk/invoicescan/internal/jobs"
	"github.com/deveshk/invoicescan/internal/jobs/inmemory"
	"github.com/deveshk/invoicescan/internal/logger"
	"github.com/deveshk/invoicescan/internal/objstore"
	"github.com/deveshk/invoicescan/internal/pipeline"
	"github.com/deveshk/invoicescan/internal/store"
)

func main() {
	// Load .env if present; real environment wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.Configure(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	opts, err := cfg.Pipeline.Options()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pipeline configuration")
	}

	// Initialize record store
	recStore, err := store.NewBolt(cfg.Store.Path, opts.Granularity)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open record store")
	}
	defer recStore.Close()

	// Initialize extraction service
	prompt := extract.BuildPrompt(opts.Granularity)
	extractor, err := extract.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, prompt)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction service")
	}

	pipe := pipeline.New(extractor, recStore, opts, log)

	// Upload staging: GCS when a bucket is configured, local temp files
	// otherwise.
	var staging *objstore.Staging
	if cfg.GCS.Bucket != "" {
		staging, err = objstore.New(ctx, cfg.GCS.Bucket)
		if err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.GCS.Bucket).Msg("Failed to create staging area")
		}
		defer staging.Close()
	} else {
		log.Warn().Msg("No GCS bucket configured - uploads staged in the local temp directory")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Queue.BufferSize, cfg.Queue.Workers, cfg.Queue.MaxRetries, jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := newScanJobHandler(pipe, staging, time.Duration(cfg.Gemini.TimeoutSecs)*time.Second, log)

	go func() {
		log.Info().Msg("Starting scan worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Scan worker stopped with error")
		}
	}()

	// Initialize handlers
	invoicesHandler := handlers.NewInvoicesHandler(pipe, jobQueue, staging, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Invoice intake
	mux.HandleFunc("/api/invoices", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			invoicesHandler.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Records endpoints
	mux.HandleFunc("/api/records", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			invoicesHandler.ListRecords(w, r)
		case http.MethodDelete:
			invoicesHandler.DeleteRecord(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Summary endpoints
	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			invoicesHandler.Summary(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/summary/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			invoicesHandler.ExportSummary(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Owner(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

// newScanJobHandler builds the queue handler that runs one scan job:
// fetch the staged bytes, run the document through the pipeline, then
// remove the staged copy. Failures that re-sending cannot fix are
// wrapped as permanent so the queue does not retry them.
func newScanJobHandler(pipe *pipeline.Pipeline, staging *objstore.Staging, timeout time.Duration, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		scanJob, ok := job.(*jobs.ScanJob)
		if !ok {
			return &jobs.PermanentError{Err: fmt.Errorf("unexpected job type: %T", job)}
		}
		if scanJob.Filename == "" {
			// Uploads without a multipart filename still carry one in
			// the staged object name.
			scanJob.Filename = objstore.Filename(scanJob.SourceURI)
		}

		log.Info().
			Str("job_id", scanJob.JobID).
			Str("owner_id", scanJob.OwnerID).
			Str("filename", scanJob.Filename).
			Msg("Processing scan job")

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		data, cleanup, err := fetchStaged(ctx, staging, scanJob.SourceURI)
		if err != nil {
			return err
		}

		doc := extract.Document{
			Filename: scanJob.Filename,
			MIMEType: scanJob.MIMEType,
			Data:     data,
		}

		if _, err := pipe.ProcessDocument(ctx, scanJob.OwnerID, doc); err != nil {
			log.Error().
				Err(err).
				Str("job_id", scanJob.JobID).
				Str("filename", scanJob.Filename).
				Msg("Scan failed")
			if !pipeline.Retryable(err) {
				// The job is finished for good; drop the staged copy.
				cleanup()
				return &jobs.PermanentError{Err: err}
			}
			if scanJob.RetryCount >= scanJob.MaxRetries {
				// Retry budget exhausted - the queue will not re-enqueue,
				// so the staged copy must go now.
				cleanup()
				return err
			}
			// Keep the staged bytes so the retry can re-fetch them.
			return err
		}

		cleanup()
		log.Info().
			Str("job_id", scanJob.JobID).
			Str("filename", scanJob.Filename).
			Msg("Scan completed")
		return nil
	}
}

// fetchStaged loads the staged document bytes and returns a cleanup
// that deletes the staged copy. Staged files are removed even when the
// job fails permanently; a retrying job re-stages nothing, so cleanup
// only runs once the job is finished for good.
func fetchStaged(ctx context.Context, staging *objstore.Staging, sourceURI string) ([]byte, func(), error) {
	if strings.HasPrefix(sourceURI, "gs://") {
		if staging == nil {
			return nil, nil, &jobs.PermanentError{Err: fmt.Errorf("no staging bucket configured for %s", sourceURI)}
		}
		data, err := staging.Fetch(ctx, sourceURI)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch staged object: %w", err)
		}
		return data, func() { _ = staging.Delete(context.Background(), sourceURI) }, nil
	}

	data, err := os.ReadFile(sourceURI)
	if err != nil {
		return nil, nil, fmt.Errorf("read staged file: %w", err)
	}
	return data, func() { _ = os.Remove(sourceURI) }, nil
}
