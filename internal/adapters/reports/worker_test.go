package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"organcore/internal/blob"
	"organcore/internal/infra/persistence/memory"
	"organcore/internal/match"
	"organcore/pkg/domain"
)

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(match.NewDefaultRulesEngine())
	wl := match.NewWaitingList(store)
	ctx := context.Background()
	entries := []domain.WaitingListEntry{
		{RecipientID: "rcp-1", OrganType: domain.OrganHeart, Region: "north", UrgencyLevel: 8, Tier: domain.TierCritical},
		{RecipientID: "rcp-2", OrganType: domain.OrganHeart, Region: "south", UrgencyLevel: 4, Tier: domain.TierMedium},
		{RecipientID: "rcp-3", OrganType: domain.OrganLiver, Region: "north", UrgencyLevel: 6, Tier: domain.TierHigh},
	}
	for _, entry := range entries {
		if _, _, err := wl.AddEntry(ctx, "coordinator", entry); err != nil {
			t.Fatalf("AddEntry %s: %v", entry.RecipientID, err)
		}
	}
	return store
}

func waitForJob(t *testing.T, w *Worker, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := w.Get(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestWorkerRendersWaitingListReport(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	blobs := blob.NewMemory()
	worker := NewWorker(store, blobs, nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.Enqueue(ctx, Input{
		Kind:        KindWaitingList,
		OrganType:   string(domain.OrganHeart),
		RequestedBy: "coordinator",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if queued.Status != StatusQueued {
		t.Fatalf("status = %s, want queued", queued.Status)
	}

	job := waitForJob(t, worker, queued.ID)
	if job.Status != StatusSucceeded {
		t.Fatalf("job failed: %s", job.Error)
	}
	if len(job.Artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(job.Artifacts))
	}
	if job.CompletedAt == nil {
		t.Fatal("completion timestamp not set")
	}

	var jsonKey, csvKey string
	for _, artifact := range job.Artifacts {
		switch artifact.Format {
		case FormatJSON:
			jsonKey = artifact.Key
		case FormatCSV:
			csvKey = artifact.Key
		}
	}

	_, rc, err := blobs.Get(ctx, jsonKey)
	if err != nil {
		t.Fatalf("get json artifact: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	_ = rc.Close()
	var rows []map[string]string
	if err := json.Unmarshal(payload, &rows); err != nil {
		t.Fatalf("decode json artifact: %v", err)
	}
	// The liver entry is filtered out by the organ-type scope.
	if len(rows) != 2 {
		t.Fatalf("json rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row["organ_type"] != string(domain.OrganHeart) {
			t.Fatalf("unexpected row: %v", row)
		}
	}

	_, rc, err = blobs.Get(ctx, csvKey)
	if err != nil {
		t.Fatalf("get csv artifact: %v", err)
	}
	records, err := csv.NewReader(rc).ReadAll()
	_ = rc.Close()
	if err != nil {
		t.Fatalf("parse csv artifact: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("csv rows = %d, want header + 2", len(records))
	}
	if records[0][0] != "entry_id" {
		t.Fatalf("csv header = %v", records[0])
	}
}

func TestWorkerRendersAllocationReport(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		proposal, err := tx.CreateProposal(domain.MatchProposal{OrganID: "organ-1", RecipientID: "rcp-1"})
		if err != nil {
			return err
		}
		_, err = tx.CreateAllocation(domain.AllocationRecord{
			OrganID:     "organ-1",
			RecipientID: "rcp-1",
			ProposalID:  proposal.ID,
			HospitalID:  "hosp-1",
			Score:       domain.MatchScore{Total: 75, Compatible: true},
		})
		return err
	}); err != nil {
		t.Fatalf("seed allocation: %v", err)
	}

	blobs := blob.NewMemory()
	worker := NewWorker(store, blobs, nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.Enqueue(ctx, Input{Kind: KindAllocations, Formats: []Format{FormatJSON}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job := waitForJob(t, worker, queued.ID)
	if job.Status != StatusSucceeded {
		t.Fatalf("job failed: %s", job.Error)
	}
	if len(job.Artifacts) != 1 || job.Artifacts[0].Format != FormatJSON {
		t.Fatalf("unexpected artifacts: %+v", job.Artifacts)
	}

	_, rc, err := blobs.Get(ctx, job.Artifacts[0].Key)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	_ = rc.Close()
	var rows []map[string]string
	if err := json.Unmarshal(payload, &rows); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if len(rows) != 1 || rows[0]["score_total"] != "75" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestWorkerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	worker := NewWorker(seedStore(t), blob.NewMemory(), nil)

	if _, err := worker.Enqueue(ctx, Input{Kind: "bogus"}); err == nil {
		t.Fatal("unknown kind must be rejected")
	}
	if _, err := worker.Enqueue(ctx, Input{Kind: KindWaitingList, Formats: []Format{"xml"}}); err == nil {
		t.Fatal("unsupported format must be rejected")
	}
}

type failingBlobStore struct {
	blob.Store
}

func (failingBlobStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, fmt.Errorf("backend offline")
}

func TestWorkerMarksJobFailedOnStoreError(t *testing.T) {
	ctx := context.Background()
	worker := NewWorker(seedStore(t), failingBlobStore{Store: blob.NewMemory()}, nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.Enqueue(ctx, Input{Kind: KindWaitingList})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job := waitForJob(t, worker, queued.ID)
	if job.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.Error == "" {
		t.Fatal("failure reason not recorded")
	}
}
