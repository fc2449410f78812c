package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cardamage/damage-analyzer/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(image string, timestamp int64) *types.AnalysisRecord {
	description := "test damage"
	return &types.AnalysisRecord{
		ImageReference: image,
		DamageType:     types.DamageDent,
		SeverityLevel:  3,
		Confidence:     0.8,
		EstimatedCost:  30000,
		Description:    &description,
		Timestamp:      timestamp,
	}
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var lastID int64
	for i := 0; i < 5; i++ {
		id, err := store.Insert(ctx, testRecord(fmt.Sprintf("photo%d.jpg", i), int64(1000+i)))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if id <= lastID {
			t.Errorf("Expected id > %d, got %d", lastID, id)
		}
		lastID = id
	}
}

func TestInsertFillsTimestamp(t *testing.T) {
	store := openTestStore(t)

	record := testRecord("photo.jpg", 0)
	before := time.Now().UnixMilli()
	if _, err := store.Insert(context.Background(), record); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	after := time.Now().UnixMilli()

	if record.Timestamp < before || record.Timestamp > after {
		t.Errorf("Expected timestamp between %d and %d, got %d", before, after, record.Timestamp)
	}
}

func TestListAllNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Insert out of chronological order.
	timestamps := []int64{3000, 1000, 5000, 2000, 4000}
	for i, ts := range timestamps {
		if _, err := store.Insert(ctx, testRecord(fmt.Sprintf("photo%d.jpg", i), ts)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	records, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(records) != len(timestamps) {
		t.Fatalf("Expected %d records, got %d", len(timestamps), len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i-1].Timestamp < records[i].Timestamp {
			t.Errorf("Records not in descending timestamp order at %d: %d < %d",
				i, records[i-1].Timestamp, records[i].Timestamp)
		}
	}
}

func TestGetByID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, testRecord("photo.jpg", 1234))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	record, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if record == nil {
		t.Fatal("Expected a record, got nil")
	}
	if record.ImageReference != "photo.jpg" {
		t.Errorf("Expected image photo.jpg, got %q", record.ImageReference)
	}
	if record.Description == nil || *record.Description != "test damage" {
		t.Errorf("Unexpected description %v", record.Description)
	}

	missing, err := store.GetByID(ctx, id+100)
	if err != nil {
		t.Fatalf("GetByID for missing id failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing id, got %+v", missing)
	}
}

func TestNullDescription(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record := testRecord("photo.jpg", 99)
	record.Description = nil
	id, err := store.Insert(ctx, record)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Description != nil {
		t.Errorf("Expected nil description, got %q", *got.Description)
	}
}

func TestDeleteByID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, testRecord("photo.jpg", 1))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.DeleteByID(ctx, id); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}

	record, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID after delete failed: %v", err)
	}
	if record != nil {
		t.Errorf("Expected record to be gone, got %+v", record)
	}

	// Deleting a missing id is a no-op, not an error.
	if err := store.DeleteByID(ctx, id); err != nil {
		t.Errorf("Expected no-op delete, got %v", err)
	}
}

func TestIDsNeverReused(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Insert(ctx, testRecord("a.jpg", 1))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.DeleteByID(ctx, first); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}

	second, err := store.Insert(ctx, testRecord("b.jpg", 2))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if second <= first {
		t.Errorf("Expected id after delete to keep increasing: %d then %d", first, second)
	}
}

func TestConcurrentInserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	ids := make(chan int64, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := store.Insert(ctx, testRecord(fmt.Sprintf("w%d-%d.jpg", w, i), int64(w*100+i)))
				if err != nil {
					t.Errorf("Insert failed: %v", err)
					return
				}
				ids <- id
			}
		}(w)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("Duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("Expected %d unique ids, got %d", workers*perWorker, len(seen))
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != workers*perWorker {
		t.Errorf("Expected %d records, got %d", workers*perWorker, count)
	}
}

func TestSubscribePublishesOnMutation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	feed, cancel := store.Subscribe()
	defer cancel()

	// Initial snapshot is empty.
	snapshot := <-feed
	if len(snapshot) != 0 {
		t.Fatalf("Expected empty initial snapshot, got %d records", len(snapshot))
	}

	id, err := store.Insert(ctx, testRecord("photo.jpg", 1))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	select {
	case snapshot = <-feed:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for insert notification")
	}
	if len(snapshot) != 1 || snapshot[0].ID != id {
		t.Fatalf("Expected snapshot with the inserted record, got %+v", snapshot)
	}

	if err := store.DeleteByID(ctx, id); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}

	select {
	case snapshot = <-feed:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for delete notification")
	}
	if len(snapshot) != 0 {
		t.Fatalf("Expected empty snapshot after delete, got %d records", len(snapshot))
	}
}

func TestSubscribeSlowConsumerSeesLatest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	feed, cancel := store.Subscribe()
	defer cancel()
	<-feed // drain initial snapshot

	// Several mutations without the consumer reading.
	for i := 0; i < 5; i++ {
		if _, err := store.Insert(ctx, testRecord(fmt.Sprintf("photo%d.jpg", i), int64(i))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	snapshot := <-feed
	if len(snapshot) != 5 {
		t.Errorf("Expected latest snapshot with 5 records, got %d", len(snapshot))
	}
}

func TestSubscribeDuringConcurrentInserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Subscribe while inserts are racing the registration. Even when the
	// mutations stop immediately afterwards, Subscribe must return and
	// deliver an initial snapshot.
	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		for w := 0; w < 3; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				if _, err := store.Insert(ctx, testRecord(fmt.Sprintf("r%d-%d.jpg", i, w), int64(i))); err != nil {
					t.Errorf("Insert failed: %v", err)
				}
			}(w)
		}

		type subscription struct {
			feed   <-chan []types.AnalysisRecord
			cancel func()
		}
		done := make(chan subscription, 1)
		go func() {
			feed, cancel := store.Subscribe()
			done <- subscription{feed, cancel}
		}()

		var sub subscription
		select {
		case sub = <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("Subscribe blocked while inserts were in flight")
		}
		wg.Wait()

		select {
		case <-sub.feed:
		case <-time.After(3 * time.Second):
			t.Fatal("Timed out waiting for the initial snapshot")
		}
		sub.cancel()
	}
}

func TestSubscribeCancel(t *testing.T) {
	store := openTestStore(t)

	feed, cancel := store.Subscribe()
	<-feed
	cancel()

	if _, ok := <-feed; ok {
		t.Error("Expected feed channel to be closed after cancel")
	}

	// Cancelling twice is safe.
	cancel()
}
