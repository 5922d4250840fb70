package http

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwhitley/stacks/internal/entities"
	"github.com/jwhitley/stacks/internal/importer"
	"github.com/jwhitley/stacks/internal/importformat"
	"github.com/jwhitley/stacks/internal/jobstore"
	"github.com/jwhitley/stacks/internal/readinghistory"
	"github.com/jwhitley/stacks/internal/tasks"
)

// ImportsController handles upload-triggered import jobs. Uploads are parked
// in the uploads directory, a job record is created and the heavy work runs
// on the task queue; every endpoint after that is a read or a small state
// transition against the job store.
type ImportsController struct {
	store      jobstore.Store
	reconciler *readinghistory.Reconciler
	taskClient *tasks.Client
	uploadsDir string
}

func NewImportsController(store jobstore.Store, reconciler *readinghistory.Reconciler, taskClient *tasks.Client, uploadsDir string) *ImportsController {
	return &ImportsController{
		store:      store,
		reconciler: reconciler,
		taskClient: taskClient,
		uploadsDir: uploadsDir,
	}
}

// Create handles POST /api/imports. It saves the upload, classifies it and
// enqueues the matching background task. A file that matches no known format
// but still has a readable header is held with the keyword-guessed mapping
// for the owner to review; only a file with no parseable header and no
// ISBN-list shape is rejected outright.
func (controller *ImportsController) Create(c *gin.Context) {
	owner := ownerID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}

	if err := os.MkdirAll(controller.uploadsDir, 0o755); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		return
	}
	jobID := uuid.NewString()
	sourcePath := filepath.Join(controller.uploadsDir, jobID+".csv")
	if err := c.SaveUploadedFile(fileHeader, sourcePath); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		return
	}

	detection, delimiter, err := controller.detect(sourcePath)
	if err != nil {
		os.Remove(sourcePath)
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if detection.Format == importformat.FormatUnknown && !detection.HasParseableHeader() {
		os.Remove(sourcePath)
		c.IndentedJSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "could not recognize the file format",
			"confidence": detection.Confidence,
		})
		return
	}

	kind := entities.ImportKindBooks
	if detection.Format == importformat.FormatReadingHistory {
		kind = entities.ImportKindReadingHistory
	}
	status := entities.JobStatusPending
	if detection.Format == importformat.FormatUnknown {
		status = entities.JobStatusNeedsMapping
	}

	job := &entities.ImportJob{
		ID:         jobID,
		OwnerID:    owner,
		Kind:       kind,
		Status:     status,
		Format:     string(detection.Format),
		Confidence: detection.Confidence,
		SourcePath: sourcePath,
		SourceName: fileHeader.Filename,
		Delimiter:  string(delimiter),
		HasHeader:  detection.Format.HasHeader(),
		Mapping:    detection.Mapping,
		StartedAt:  time.Now(),
	}
	if err := controller.store.Create(owner, job); err != nil {
		os.Remove(sourcePath)
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not create import job"})
		return
	}

	// A guessed mapping waits for the owner's confirmation before any row
	// is touched
	if job.Status == entities.JobStatusNeedsMapping {
		c.IndentedJSON(http.StatusAccepted, job)
		return
	}

	if err := controller.enqueue(owner, job); err != nil {
		log.Printf("Failed to enqueue import %s: %v", jobID, err)
		os.Remove(sourcePath)
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not schedule import"})
		return
	}

	c.IndentedJSON(http.StatusAccepted, job)
}

func (controller *ImportsController) enqueue(owner uint, job *entities.ImportJob) error {
	var err error
	switch job.Kind {
	case entities.ImportKindReadingHistory:
		_, err = controller.taskClient.Add(tasks.AnalyzeHistoryTask{OwnerID: owner, JobID: job.ID}).Save()
	default:
		_, err = controller.taskClient.Add(tasks.ImportBooksTask{OwnerID: owner, JobID: job.ID}).Save()
	}
	return err
}

func (controller *ImportsController) detect(path string) (importformat.Detection, rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return importformat.Detection{}, 0, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return importformat.DetectReader(f)
}

// Get handles GET /api/imports/:id.
func (controller *ImportsController) Get(c *gin.Context) {
	job, err := controller.store.Get(ownerID(c), c.Param("id"))
	if err != nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "import job not found"})
		return
	}
	c.IndentedJSON(http.StatusOK, job)
}

// List handles GET /api/imports.
func (controller *ImportsController) List(c *gin.Context) {
	jobs, err := controller.store.ListForOwner(ownerID(c))
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not list import jobs"})
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"imports": jobs, "count": len(jobs)})
}

// MappingRequest replaces the proposed column mapping of a job held for
// review.
type MappingRequest struct {
	Mapping []entities.FieldAssignment `json:"mapping" binding:"required"`
}

// UpdateMapping handles PUT /api/imports/:id/mapping. Only a job still held
// for mapping review accepts an override; unmapped columns use the ignore
// marker.
func (controller *ImportsController) UpdateMapping(c *gin.Context) {
	owner := ownerID(c)
	jobID := c.Param("id")

	job, err := controller.store.Get(owner, jobID)
	if err != nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "import job not found"})
		return
	}
	if job.Status != entities.JobStatusNeedsMapping {
		c.IndentedJSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("job is %s, its mapping can no longer change", job.Status)})
		return
	}

	var req MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, a := range req.Mapping {
		if !a.Field.Known() {
			c.IndentedJSON(http.StatusUnprocessableEntity, gin.H{
				"error": fmt.Sprintf("unknown field %q for column %q", a.Field, a.Column),
			})
			return
		}
	}

	if err := controller.store.Update(owner, jobID, func(job *entities.ImportJob) {
		job.Mapping = req.Mapping
	}); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not update mapping"})
		return
	}

	updated, err := controller.store.Get(owner, jobID)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not update mapping"})
		return
	}
	c.IndentedJSON(http.StatusOK, updated)
}

// Start handles POST /api/imports/:id/start. It releases a job held for
// mapping review onto the task queue.
func (controller *ImportsController) Start(c *gin.Context) {
	owner := ownerID(c)
	jobID := c.Param("id")

	job, err := controller.store.Get(owner, jobID)
	if err != nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "import job not found"})
		return
	}
	if job.Status != entities.JobStatusNeedsMapping {
		c.IndentedJSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("job is %s, not awaiting mapping review", job.Status)})
		return
	}

	if err := controller.store.Update(owner, jobID, func(job *entities.ImportJob) {
		job.Status = entities.JobStatusPending
	}); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not start import"})
		return
	}
	if err := controller.enqueue(owner, job); err != nil {
		log.Printf("Failed to enqueue import %s: %v", jobID, err)
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not schedule import"})
		return
	}
	c.IndentedJSON(http.StatusAccepted, gin.H{"status": entities.JobStatusPending})
}

// ResolutionsRequest carries the owner's per-group decisions, keyed by the
// group name reported during analysis.
type ResolutionsRequest struct {
	Resolutions map[string]entities.BookResolution `json:"resolutions" binding:"required"`
}

// Resolutions handles POST /api/imports/:id/resolutions. All outstanding
// groups must be decided in one call; on success the finalize task runs.
func (controller *ImportsController) Resolutions(c *gin.Context) {
	owner := ownerID(c)
	jobID := c.Param("id")

	var req ResolutionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := controller.reconciler.ApplyResolutions(owner, jobID, req.Resolutions); err != nil {
		c.IndentedJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if _, err := controller.taskClient.Add(tasks.FinalizeHistoryTask{OwnerID: owner, JobID: jobID}).Save(); err != nil {
		log.Printf("Failed to enqueue finalize for %s: %v", jobID, err)
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not schedule finalization"})
		return
	}

	c.IndentedJSON(http.StatusAccepted, gin.H{"status": "processing"})
}

// Cancel handles POST /api/imports/:id/cancel. Cancellation is cooperative;
// the running job observes the flag at its next row boundary.
func (controller *ImportsController) Cancel(c *gin.Context) {
	owner := ownerID(c)
	jobID := c.Param("id")

	job, err := controller.store.Get(owner, jobID)
	if err != nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "import job not found"})
		return
	}
	if job.Status.Terminal() {
		c.IndentedJSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("job already %s", job.Status)})
		return
	}

	// Nothing is queued for a job still held for mapping review, so there is
	// no worker to observe the flag; cancel it directly
	if job.Status == entities.JobStatusNeedsMapping {
		now := time.Now()
		if err := controller.store.Update(owner, jobID, func(job *entities.ImportJob) {
			job.Status = entities.JobStatusCancelled
			job.CompletedAt = &now
		}); err != nil {
			c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not cancel import"})
			return
		}
		if job.SourcePath != "" {
			os.Remove(job.SourcePath)
		}
		c.IndentedJSON(http.StatusAccepted, gin.H{"status": entities.JobStatusCancelled})
		return
	}

	if err := controller.store.RequestCancel(owner, jobID); err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": "could not request cancellation"})
		return
	}
	c.IndentedJSON(http.StatusAccepted, gin.H{"status": "cancel_requested"})
}

// ErrorReport handles GET /api/imports/:id/errors.csv.
func (controller *ImportsController) ErrorReport(c *gin.Context) {
	job, err := controller.store.Get(ownerID(c), c.Param("id"))
	if err != nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "import job not found"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=import-%s-errors.csv", job.ID))
	if err := importer.WriteErrorReport(c.Writer, job); err != nil {
		log.Printf("Failed to render error report for %s: %v", job.ID, err)
	}
}
