package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"storyreel/internal/item"
	"storyreel/internal/store"
	"storyreel/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	stored := testsupport.NewItem(t, st, "src-abc123", "A Tale", "Once upon a time.")
	if stored.ID == 0 {
		t.Fatal("expected item ID to be assigned")
	}
	if stored.Status != item.StatusNew {
		t.Fatalf("expected status new, got %s", stored.Status)
	}

	fetched, err := st.ItemByID(ctx, stored.ID)
	if err != nil {
		t.Fatalf("ItemByID failed: %v", err)
	}
	if fetched.Title != "A Tale" {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}
}

func TestIngestItemIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first, created, err := st.IngestItem(ctx, &item.WorkItem{
		ExternalID: "src-dup", Origin: "test/origin", Title: "First", Body: "Body.",
	})
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	if !created {
		t.Fatal("expected first ingest to create a row")
	}

	second, created, err := st.IngestItem(ctx, &item.WorkItem{
		ExternalID: "src-dup", Origin: "test/origin", Title: "Second", Body: "Other body.",
	})
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if created {
		t.Fatal("expected second ingest to be a no-op")
	}
	if second.ID != first.ID || second.Title != "First" {
		t.Fatalf("expected existing row back, got %#v", second)
	}

	items, err := st.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestTransitionItemRejectsIllegalMove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stored := testsupport.NewItem(t, st, "src-illegal", "Story", "Text.")
	err := st.TransitionItem(ctx, stored, item.StatusCompleted)
	if !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	fetched, err := st.ItemByID(ctx, stored.ID)
	if err != nil {
		t.Fatalf("ItemByID failed: %v", err)
	}
	if fetched.Status != item.StatusNew {
		t.Fatalf("status should be unchanged, got %s", fetched.Status)
	}
}

func TestSaveRewriteCommitsItemAndPartsTogether(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stored := testsupport.NewItem(t, st, "src-rw", "Long Story", "Part one text. Part two text.")
	if err := st.TransitionItem(ctx, stored, item.StatusRewriting); err != nil {
		t.Fatalf("transition to rewriting failed: %v", err)
	}

	stored.RewrittenTitle = "Long Story, Retold"
	stored.RewrittenBody = "Part one text. Part two text."
	parts := []*item.Part{
		{PartNumber: 1, TotalParts: 2, Body: "Part one text.", WordCount: 3, Title: "Long Story, Retold [Part 1/2]"},
		{PartNumber: 2, TotalParts: 2, Body: "Part two text.", WordCount: 3, Title: "Long Story, Retold [Part 2/2]"},
	}
	if err := st.SaveRewrite(ctx, stored, parts); err != nil {
		t.Fatalf("SaveRewrite failed: %v", err)
	}

	fetched, err := st.ItemByID(ctx, stored.ID)
	if err != nil {
		t.Fatalf("ItemByID failed: %v", err)
	}
	if fetched.Status != item.StatusRewritten {
		t.Fatalf("expected rewritten status, got %s", fetched.Status)
	}
	if fetched.PartCount != 2 {
		t.Fatalf("expected part count 2, got %d", fetched.PartCount)
	}
	if fetched.RewrittenAt == nil {
		t.Fatal("expected rewritten_at to be set")
	}

	storedParts, err := st.PartsForItem(ctx, stored.ID)
	if err != nil {
		t.Fatalf("PartsForItem failed: %v", err)
	}
	if len(storedParts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(storedParts))
	}
	for i, part := range storedParts {
		if part.PartNumber != i+1 {
			t.Fatalf("parts out of order: %#v", storedParts)
		}
		if part.Status != item.PartStatusPending {
			t.Fatalf("expected pending part, got %s", part.Status)
		}
	}
}

func TestTransientItemsAreResumable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	interrupted := testsupport.NewItem(t, st, "src-cut", "Interrupted", "Text.")
	if err := st.TransitionItem(ctx, interrupted, item.StatusRewriting); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	testsupport.NewItem(t, st, "src-fresh", "Fresh", "Text.")

	transient, err := st.TransientItems(ctx)
	if err != nil {
		t.Fatalf("TransientItems failed: %v", err)
	}
	if len(transient) != 1 || transient[0].ID != interrupted.ID {
		t.Fatalf("expected only the interrupted item, got %#v", transient)
	}

	// A resumed item finishes its stage through the normal transition.
	if err := st.SaveRewrite(ctx, transient[0], []*item.Part{
		{PartNumber: 1, TotalParts: 1, Body: "Text.", WordCount: 1, Title: "Interrupted"},
	}); err != nil {
		t.Fatalf("SaveRewrite after resume failed: %v", err)
	}
}

func TestPartTransitionNeverRegressesFromCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stored := testsupport.NewItem(t, st, "src-parts", "Story", "Text here.")
	if err := st.TransitionItem(ctx, stored, item.StatusRewriting); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	parts := []*item.Part{{PartNumber: 1, TotalParts: 1, Body: "Text here.", WordCount: 2, Title: "Story"}}
	if err := st.SaveRewrite(ctx, stored, parts); err != nil {
		t.Fatalf("SaveRewrite failed: %v", err)
	}

	part := parts[0]
	if err := st.TransitionPart(ctx, part, item.PartStatusMediaGenerated); err != nil {
		t.Fatalf("transition to media_generated failed: %v", err)
	}
	if err := st.TransitionPart(ctx, part, item.PartStatusCompleted); err != nil {
		t.Fatalf("transition to completed failed: %v", err)
	}

	err := st.TransitionPart(ctx, part, item.PartStatusPending)
	if !errors.Is(err, store.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestAdmissionOrderPrefersPriorityThenAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	priorities := []int{5, 1, 5, 3}
	ids := make([]int64, 0, len(priorities))
	for i, priority := range priorities {
		artifact := seedArtifact(t, st, fmt.Sprintf("src-q%d", i))
		entry, created, err := st.EnqueueArtifact(ctx, artifact, &item.QueueEntry{
			Title:    fmt.Sprintf("Video %d", i+1),
			Priority: priority,
		})
		if err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
		if !created {
			t.Fatalf("expected entry %d to be created", i)
		}
		ids = append(ids, entry.ID)
		// queued_at must strictly increase for the age tiebreak.
		time.Sleep(2 * time.Millisecond)
	}

	admitted, err := st.AdmissibleEntries(ctx, 10)
	if err != nil {
		t.Fatalf("AdmissibleEntries failed: %v", err)
	}
	want := []int64{ids[0], ids[2], ids[3], ids[1]}
	if len(admitted) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(admitted))
	}
	for i, entry := range admitted {
		if entry.ID != want[i] {
			t.Fatalf("admission order mismatch at %d: got %d want %d", i, entry.ID, want[i])
		}
	}

	limited, err := st.AdmissibleEntries(ctx, 2)
	if err != nil {
		t.Fatalf("AdmissibleEntries with limit failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != ids[0] || limited[1].ID != ids[2] {
		t.Fatalf("unexpected limited admission: %#v", limited)
	}
}

func TestEnqueueRejectsUnreachableArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	artifact := &item.Artifact{ID: 42, PartID: 1, Kind: item.ArtifactVideo}
	_, _, err := st.EnqueueArtifact(ctx, artifact, &item.QueueEntry{Title: "Nowhere"})
	if err == nil {
		t.Fatal("expected enqueue of unreachable artifact to fail")
	}
}

func TestEnqueueSameArtifactTwiceReturnsExisting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	artifact := seedArtifact(t, st, "src-dupq")
	first, created, err := st.EnqueueArtifact(ctx, artifact, &item.QueueEntry{Title: "Clip", Priority: 2})
	if err != nil || !created {
		t.Fatalf("first enqueue failed: created=%v err=%v", created, err)
	}

	second, created, err := st.EnqueueArtifact(ctx, artifact, &item.QueueEntry{Title: "Clip Again", Priority: 9})
	if err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}
	if created || second.ID != first.ID || second.Priority != 2 {
		t.Fatalf("expected existing entry back, got created=%v %#v", created, second)
	}
}

func TestCounterIncrementsAreAtomic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	date := store.CounterDate(time.Now())
	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := st.IncrementCounter(ctx, date, store.CounterUploadsDone, 1); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("IncrementCounter failed: %v", err)
	}

	counters, err := st.CountersFor(ctx, date)
	if err != nil {
		t.Fatalf("CountersFor failed: %v", err)
	}
	if counters.UploadsDone != workers*perWorker {
		t.Fatalf("expected %d uploads, got %d", workers*perWorker, counters.UploadsDone)
	}
}

func TestIncrementCounterRejectsUnknownName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	err := st.IncrementCounter(context.Background(), "2026-01-01", "free_lunches", 1)
	if err == nil {
		t.Fatal("expected unknown counter to be rejected")
	}
}

func TestReclaimStaleRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stale, err := st.CreateRun(ctx, "pipeline")
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	// A heartbeat in the future keeps the second run fresh.
	fresh, err := st.CreateRun(ctx, "pipeline")
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := st.HeartbeatRun(ctx, fresh.ID); err != nil {
		t.Fatalf("HeartbeatRun failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := st.HeartbeatRun(ctx, fresh.ID); err != nil {
		t.Fatalf("HeartbeatRun failed: %v", err)
	}

	loaded, err := st.RunByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("RunByID failed: %v", err)
	}
	cutoff := loaded.LastHeartbeat.Add(-time.Millisecond)

	reclaimed, err := st.ReclaimStaleRuns(ctx, cutoff)
	if err != nil {
		t.Fatalf("ReclaimStaleRuns failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed run, got %d", reclaimed)
	}

	reloaded, err := st.RunByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("RunByID failed: %v", err)
	}
	if reloaded.Status != item.RunStatusFailed {
		t.Fatalf("expected stale run marked failed, got %s", reloaded.Status)
	}

	stillFresh, err := st.RunByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("RunByID failed: %v", err)
	}
	if stillFresh.Status == item.RunStatusFailed {
		t.Fatal("fresh run should not be reclaimed")
	}
}

func TestEvictArtifactRequiresRemoteCopy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	artifact := seedArtifact(t, st, "src-evict")
	if err := st.EvictArtifactLocal(ctx, artifact); err == nil {
		t.Fatal("expected eviction without remote copy to fail")
	}

	if err := st.MarkArtifactUploaded(ctx, artifact, "remote-1", "https://store.example/remote-1"); err != nil {
		t.Fatalf("MarkArtifactUploaded failed: %v", err)
	}
	if err := st.EvictArtifactLocal(ctx, artifact); err != nil {
		t.Fatalf("EvictArtifactLocal failed: %v", err)
	}

	reloaded, err := st.ArtifactByID(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("ArtifactByID failed: %v", err)
	}
	if reloaded.LocalPath != "" || reloaded.Status != item.ArtifactStatusEvicted {
		t.Fatalf("unexpected evicted artifact: %#v", reloaded)
	}
	if !reloaded.Reachable() {
		t.Fatal("evicted artifact should remain reachable via remote id")
	}
}

func TestCensorTermsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.SaveCensorTerms(ctx, []string{"Heck", "darn", "heck", ""}); err != nil {
		t.Fatalf("SaveCensorTerms failed: %v", err)
	}
	terms, err := st.CensorTerms(ctx)
	if err != nil {
		t.Fatalf("CensorTerms failed: %v", err)
	}
	if len(terms) != 2 || terms[0] != "darn" || terms[1] != "heck" {
		t.Fatalf("unexpected terms: %#v", terms)
	}
}

// seedArtifact walks one item through rewrite and media generation so tests
// have a reachable video artifact to enqueue.
func seedArtifact(t *testing.T, st *store.Store, externalID string) *item.Artifact {
	t.Helper()
	ctx := context.Background()

	stored := testsupport.NewItem(t, st, externalID, "Story "+externalID, "Body text here.")
	if err := st.TransitionItem(ctx, stored, item.StatusRewriting); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	parts := []*item.Part{{PartNumber: 1, TotalParts: 1, Body: "Body text here.", WordCount: 3, Title: stored.Title}}
	if err := st.SaveRewrite(ctx, stored, parts); err != nil {
		t.Fatalf("SaveRewrite failed: %v", err)
	}

	artifact := &item.Artifact{
		PartID:          parts[0].ID,
		Kind:            item.ArtifactVideo,
		LocalPath:       "/tmp/" + externalID + ".mp4",
		DurationSeconds: 42,
		SizeBytes:       1024,
	}
	if err := st.SaveArtifact(ctx, artifact); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}
	return artifact
}
