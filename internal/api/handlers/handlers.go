package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deveshk/invoicescan/internal/api/middleware"
	"github.com/deveshk/invoicescan/internal/export"
	"github.com/deveshk/invoicescan/internal/invoice"
	"github.com/deveshk/invoicescan/internal/jobs"
	"github.com/deveshk/invoicescan/internal/objstore"
	"github.com/deveshk/invoicescan/internal/pipeline"
)

// maxUploadBytes caps one multipart upload request.
const maxUploadBytes = 32 << 20

// InvoicesHandler handles document intake and record endpoints.
type InvoicesHandler struct {
	pipe      *pipeline.Pipeline
	publisher jobs.Publisher
	staging   *objstore.Staging
	log       zerolog.Logger
}

// NewInvoicesHandler creates a new invoices handler. staging may be nil,
// in which case uploads are staged in the local temp directory.
func NewInvoicesHandler(pipe *pipeline.Pipeline, publisher jobs.Publisher, staging *objstore.Staging, log zerolog.Logger) *InvoicesHandler {
	return &InvoicesHandler{
		pipe:      pipe,
		publisher: publisher,
		staging:   staging,
		log:       log,
	}
}

// Upload handles POST /api/invoices. It accepts one or more images in
// the multipart "files" field, stages each one, and enqueues a scan job
// per file. Extraction happens asynchronously; the response carries the
// job IDs to poll.
func (h *InvoicesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.OwnerFromContext(ctx)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "No files provided")
		return
	}

	type enqueued struct {
		JobID    string `json:"job_id"`
		Filename string `json:"filename"`
		Status   string `json:"status"`
	}
	results := make([]enqueued, 0, len(files))

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Cannot read file %s", fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Cannot read file %s", fh.Filename))
			return
		}

		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "image/jpeg"
		}

		sourceURI, err := h.stage(r, fh.Filename, data)
		if err != nil {
			h.log.Error().Err(err).Str("filename", fh.Filename).Msg("Failed to stage upload")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to stage upload")
			return
		}

		job := &jobs.ScanJob{
			OwnerID:   ownerID,
			Filename:  fh.Filename,
			MIMEType:  mimeType,
			SourceURI: sourceURI,
		}
		if err := h.publisher.PublishScanDocument(ctx, job); err != nil {
			h.log.Error().Err(err).Str("filename", fh.Filename).Msg("Failed to enqueue scan job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue scan job")
			return
		}

		h.log.Info().
			Str("job_id", job.JobID).
			Str("owner_id", ownerID).
			Str("filename", fh.Filename).
			Msg("Scan job enqueued")

		results = append(results, enqueued{
			JobID:    job.JobID,
			Filename: fh.Filename,
			Status:   string(job.Status),
		})
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobs":  results,
		"count": len(results),
	})
}

// stage persists upload bytes where the scan worker can fetch them:
// the staging bucket when configured, the local temp directory otherwise.
func (h *InvoicesHandler) stage(r *http.Request, filename string, data []byte) (string, error) {
	if h.staging != nil {
		objectName := fmt.Sprintf("uploads/%s/%s", time.Now().Format("2006/01/02"), uuid.New().String()+"-"+filepath.Base(filename))
		return h.staging.Upload(r.Context(), objectName, data)
	}

	tmp, err := os.CreateTemp("", "invoicescan-*"+filepath.Ext(filename))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}

// ListRecords handles GET /api/records
func (h *InvoicesHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.OwnerFromContext(ctx)

	records, err := h.pipe.Records(ctx, ownerID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list records")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list records")
		return
	}

	// Return array directly for frontend compatibility
	if records == nil {
		records = []*invoice.Record{}
	}
	middleware.WriteJSON(w, http.StatusOK, records)
}

// DeleteRecord handles DELETE /api/records. The record identity comes
// from query parameters.
func (h *InvoicesHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	dateStr := query.Get("invoice_date")
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid invoice_date format")
		return
	}

	key := invoice.Key{
		OwnerID:       middleware.OwnerFromContext(ctx),
		InvoiceNumber: query.Get("invoice_number"),
		InvoiceDate:   date,
		VendorName:    query.Get("vendor_name"),
		ProductName:   query.Get("product_name"),
	}

	deleted, err := h.pipe.Delete(ctx, key)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to delete record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete record")
		return
	}
	if !deleted {
		middleware.WriteError(w, http.StatusNotFound, "Record not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Summary handles GET /api/summary
func (h *InvoicesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.OwnerFromContext(ctx)

	summary, err := h.pipe.Summarize(ctx, ownerID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to summarize records")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to summarize records")
		return
	}

	if summary == nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"rows":  []pipeline.SummaryRow{},
			"count": 0,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rows":  summary.Rows,
		"count": len(summary.Rows),
	})
}

// ExportSummary handles GET /api/summary/export. It renders the owner's
// records and roll-up into an xlsx workbook and serves it as a download.
func (h *InvoicesHandler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.OwnerFromContext(ctx)

	records, err := h.pipe.Records(ctx, ownerID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list records")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export summary")
		return
	}

	summary, err := h.pipe.Summarize(ctx, ownerID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to summarize records")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export summary")
		return
	}

	wb, err := export.NewWorkbook()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create workbook")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export summary")
		return
	}
	defer wb.Close()

	if err := wb.AppendRecords(records); err != nil {
		h.log.Error().Err(err).Msg("Failed to write records sheet")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export summary")
		return
	}
	if err := wb.WriteSummary(summary); err != nil {
		h.log.Error().Err(err).Msg("Failed to write summary sheet")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export summary")
		return
	}

	data, err := wb.Bytes()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to serialize workbook")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export summary")
		return
	}

	filename := fmt.Sprintf("invoices-%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		OwnerID: middleware.OwnerFromContext(ctx),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
