// Package reports renders waiting-list and allocation reports asynchronously
// and stores the artifacts in a blob store.
package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"organcore/internal/blob"
	"organcore/pkg/domain"
)

// Kind selects the data set a report is built from.
type Kind string

const (
	KindWaitingList Kind = "waiting_list"
	KindAllocations Kind = "allocations"
)

// Format selects the artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Status describes the lifecycle stage of a report job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact references one stored report file.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Job tracks one report request and its resulting artifacts.
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	OrganType   string     `json:"organ_type,omitempty"`
	Region      string     `json:"region,omitempty"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Input is an enqueue request for the worker. OrganType and Region narrow
// waiting-list reports; allocation reports ignore them.
type Input struct {
	Kind        Kind
	OrganType   string
	Region      string
	Formats     []Format
	RequestedBy string
}

// Worker renders report jobs asynchronously on a single goroutine.
type Worker struct {
	store  domain.PersistentStore
	blobs  blob.Store
	logger *zap.Logger

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a report worker over the persistence and blob stores.
func NewWorker(store domain.PersistentStore, blobs blob.Store, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:  store,
		blobs:  blobs,
		logger: logger,
		queue:  make(chan string, 32),
		jobs:   make(map[string]*Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing queued jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue schedules a report job and returns its queued snapshot.
func (w *Worker) Enqueue(_ context.Context, input Input) (Job, error) {
	switch input.Kind {
	case KindWaitingList, KindAllocations:
	default:
		return Job{}, fmt.Errorf("unknown report kind %q", input.Kind)
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if format != FormatJSON && format != FormatCSV {
			return Job{}, fmt.Errorf("unsupported report format %q", format)
		}
		if _, dup := seen[format]; dup {
			continue
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	now := time.Now().UTC()
	job := Job{
		ID:          uuid.NewString(),
		Kind:        input.Kind,
		OrganType:   input.OrganType,
		Region:      input.Region,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[job.ID] = &job
	snapshot := job.copy()
	w.mu.Unlock()

	select {
	case w.queue <- job.ID:
	default:
		w.mu.Lock()
		delete(w.jobs, job.ID)
		w.mu.Unlock()
		return Job{}, fmt.Errorf("report queue full")
	}
	w.logger.Info("report job queued",
		zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	return snapshot, nil
}

// Get returns a snapshot of the job.
func (w *Worker) Get(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

func (w *Worker) process(id string) {
	w.setStatus(id, StatusRunning, "")

	job, ok := w.Get(id)
	if !ok {
		return
	}
	rows, header, err := w.collect(job)
	if err != nil {
		w.fail(id, err.Error())
		return
	}

	artifacts := make([]Artifact, 0, len(job.Formats))
	for _, format := range job.Formats {
		payload, contentType, err := render(format, header, rows)
		if err != nil {
			w.fail(id, err.Error())
			return
		}
		key := fmt.Sprintf("reports/%s/%s.%s", job.ID, job.Kind, format)
		info, err := w.blobs.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"kind": string(job.Kind), "rows": strconv.Itoa(len(rows))},
		})
		if err != nil {
			w.fail(id, fmt.Sprintf("store artifact: %v", err))
			return
		}
		artifacts = append(artifacts, Artifact{
			Key:         info.Key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			CreatedAt:   info.LastModified,
		})
	}
	w.complete(id, artifacts)
}

// collect pulls the report rows from the store. Rows are keyed by the header
// columns so JSON and CSV render from the same data.
func (w *Worker) collect(job Job) ([]map[string]string, []string, error) {
	switch job.Kind {
	case KindWaitingList:
		header := []string{"entry_id", "recipient_id", "organ_type", "region", "urgency", "tier", "active", "registered_at"}
		var rows []map[string]string
		for _, e := range w.store.ListWaitingEntries() {
			if job.OrganType != "" && string(e.OrganType) != job.OrganType {
				continue
			}
			if job.Region != "" && e.Region != job.Region {
				continue
			}
			rows = append(rows, map[string]string{
				"entry_id":      e.ID,
				"recipient_id":  e.RecipientID,
				"organ_type":    string(e.OrganType),
				"region":        e.Region,
				"urgency":       strconv.Itoa(e.UrgencyLevel),
				"tier":          string(e.Tier),
				"active":        strconv.FormatBool(e.Active),
				"registered_at": e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return rows, header, nil
	case KindAllocations:
		header := []string{"allocation_id", "organ_id", "recipient_id", "proposal_id", "hospital_id", "score_total", "emergency", "allocated_at"}
		var rows []map[string]string
		for _, a := range w.store.ListAllocations() {
			rows = append(rows, map[string]string{
				"allocation_id": a.ID,
				"organ_id":      a.OrganID,
				"recipient_id":  a.RecipientID,
				"proposal_id":   a.ProposalID,
				"hospital_id":   a.HospitalID,
				"score_total":   strconv.Itoa(a.Score.Total),
				"emergency":     strconv.FormatBool(a.Emergency),
				"allocated_at":  a.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return rows, header, nil
	default:
		return nil, nil, fmt.Errorf("unknown report kind %q", job.Kind)
	}
}

func render(format Format, header []string, rows []map[string]string) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		if rows == nil {
			rows = []map[string]string{}
		}
		payload, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal json report: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(header); err != nil {
			return nil, "", err
		}
		for _, row := range rows {
			record := make([]string, len(header))
			for i, column := range header {
				record[i] = row[column]
			}
			if err := writer.Write(record); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported report format %q", format)
	}
}

func (w *Worker) setStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if job, ok := w.jobs[id]; ok {
		job.Status = status
		job.Error = message
		job.UpdatedAt = now
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if job, ok := w.jobs[id]; ok {
		job.Status = StatusSucceeded
		job.Error = ""
		job.Artifacts = artifacts
		job.UpdatedAt = now
		job.CompletedAt = &now
	}
	w.mu.Unlock()
	w.logger.Info("report job completed", zap.String("job_id", id), zap.Int("artifacts", len(artifacts)))
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if job, ok := w.jobs[id]; ok {
		job.Status = StatusFailed
		job.Error = reason
		job.UpdatedAt = now
		job.CompletedAt = &now
	}
	w.mu.Unlock()
	w.logger.Warn("report job failed", zap.String("job_id", id), zap.String("reason", reason))
}

func (j Job) copy() Job {
	dup := j
	dup.Formats = append([]Format(nil), j.Formats...)
	if len(j.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), j.Artifacts...)
	}
	return dup
}
