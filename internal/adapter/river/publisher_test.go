package river_test

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	_ "modernc.org/sqlite"

	riveradapter "github.com/neomorfeo/rehome/internal/adapter/river"
	"github.com/neomorfeo/rehome/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := t.TempDir() + "/river_test.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("setting WAL: %v", err)
	}

	return db
}

// startClient sets up and starts a River client, stopping it on cleanup.
func startClient(t *testing.T, db *sql.DB, logger *slog.Logger) (*riveradapter.Client, <-chan *goriver.Event) {
	t.Helper()
	ctx := context.Background()

	client, err := riveradapter.Setup(ctx, db, logger)
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	// Subscribe to job completions before starting so we don't miss events.
	events, cancel := client.Subscribe(goriver.EventKindJobCompleted)
	t.Cleanup(cancel)

	if err := client.Start(ctx); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})

	return client, events
}

func waitCompleted(t *testing.T, events <-chan *goriver.Event) *goriver.Event {
	t.Helper()

	select {
	case event := <-events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
	return nil
}

func testNotification() domain.Notification {
	return domain.Notification{
		Type:               domain.NotifyApplicationDecided,
		ListingID:          "l-42",
		OwnerID:            "owner-1",
		ApplicationID:      "a-7",
		ApplicantID:        "alice",
		ActorID:            "owner-1",
		ModerationStatus:   domain.ModerationApproved,
		AvailabilityStatus: domain.AvailabilityAdopted,
		ApplicationStatus:  domain.ApplicationApproved,
		OccurredAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_Publish_EnqueuesJob(t *testing.T) {
	db := setupTestDB(t)
	client, events := startClient(t, db, nil)

	pub := riveradapter.NewPublisher(client)
	if err := pub.Publish(context.Background(), testNotification()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	event := waitCompleted(t, events)
	if event.Job.Kind != "notification.emitted" {
		t.Errorf("job kind = %q, want %q", event.Job.Kind, "notification.emitted")
	}
	if event.Job.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", event.Job.MaxAttempts)
	}
}

func TestPublisher_Publish_PreservesNotificationData(t *testing.T) {
	db := setupTestDB(t)
	client, events := startClient(t, db, nil)

	pub := riveradapter.NewPublisher(client)
	if err := pub.Publish(context.Background(), testNotification()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	args := string(waitCompleted(t, events).Job.EncodedArgs)
	for _, want := range []string{
		`"type":"application.decided"`,
		`"listing_id":"l-42"`,
		`"application_id":"a-7"`,
		`"availability_status":"adopted"`,
		`"application_status":"approved"`,
	} {
		if !strings.Contains(args, want) {
			t.Errorf("encoded args missing %s, got: %s", want, args)
		}
	}
}

func TestNotificationWorker_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	w := riveradapter.NewNotificationWorker(logger)
	job := &goriver.Job[riveradapter.NotificationJobArgs]{
		JobRow: &rivertype.JobRow{ID: 9, Attempt: 1},
		Args:   riveradapter.NotificationJobArgs{Type: "listing.created", ListingID: "l-1", ActorID: "owner-1"},
	}

	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"notification emitted", "type=listing.created", "listing_id=l-1", "job_id=9"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
