package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"chargehub/internal/models"
	"chargehub/internal/testutil"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func seedSession(t *testing.T, store *testutil.MemStore, evID string, startSoc int, start time.Time) int64 {
	t.Helper()
	id, err := store.CreateSession(context.Background(), &models.ChargingSession{
		EVID:        evID,
		ConnectorID: 1,
		StartTime:   start,
		StartMeter:  100,
		StartSoc:    startSoc,
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return id
}

func seedReading(t *testing.T, store *testutil.MemStore, sessionID int64, ts time.Time, soc *int, power *float64) {
	t.Helper()
	err := store.InsertReading(context.Background(), &models.MeterReading{
		SessionID: sessionID,
		Timestamp: ts,
		Soc:       soc,
		PowerKW:   power,
	})
	if err != nil {
		t.Fatalf("seed reading: %v", err)
	}
}

func TestCurrentStatusNotFound(t *testing.T) {
	engine := NewEngine(testutil.NewMemStore())
	_, err := engine.CurrentStatus(context.Background(), "EV404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCurrentStatusUsesLatestReadingSoc(t *testing.T) {
	store := testutil.NewMemStore()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id := seedSession(t, store, "EV001", 10, start)
	seedReading(t, store, id, start.Add(time.Minute), intPtr(40), floatPtr(3.0))

	view, err := NewEngine(store).CurrentStatus(context.Background(), "EV001")
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if view.SessionID != id {
		t.Fatalf("expected session %d, got %d", id, view.SessionID)
	}
	if view.CurrentSoc != 40 {
		t.Fatalf("expected soc 40, got %d", view.CurrentSoc)
	}
	if view.RemainingPercent != 60 {
		t.Fatalf("expected remaining 60, got %d", view.RemainingPercent)
	}
	if view.PowerKW == nil || *view.PowerKW != 3.0 {
		t.Fatalf("expected power 3.0, got %v", view.PowerKW)
	}
	if view.Voltage != nil {
		t.Fatalf("voltage was never reported, got %v", view.Voltage)
	}
}

func TestCurrentStatusFallsBackToStartSoc(t *testing.T) {
	store := testutil.NewMemStore()
	id := seedSession(t, store, "EV001", 25, time.Now().UTC())
	// A reading exists but carries no SoC.
	seedReading(t, store, id, time.Now().UTC(), nil, floatPtr(2.5))

	view, err := NewEngine(store).CurrentStatus(context.Background(), "EV001")
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if view.CurrentSoc != 25 {
		t.Fatalf("expected fallback to start soc 25, got %d", view.CurrentSoc)
	}
	if view.RemainingPercent != 75 {
		t.Fatalf("expected remaining 75, got %d", view.RemainingPercent)
	}
}

func TestCurrentStatusDefaultsToZero(t *testing.T) {
	store := testutil.NewMemStore()
	seedSession(t, store, "EV001", 0, time.Now().UTC())

	view, err := NewEngine(store).CurrentStatus(context.Background(), "EV001")
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if view.CurrentSoc != 0 || view.RemainingPercent != 100 {
		t.Fatalf("expected 0/100, got %d/%d", view.CurrentSoc, view.RemainingPercent)
	}
	if view.PowerKW != nil || view.Voltage != nil || view.Current != nil {
		t.Fatalf("expected absent electricals with no readings")
	}
}

func TestCurrentStatusLatestByTimestampRegardlessOfArrival(t *testing.T) {
	store := testutil.NewMemStore()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id := seedSession(t, store, "EV001", 10, start)

	// The newer timestamp arrives first; clock skew on the charge point.
	seedReading(t, store, id, start.Add(10*time.Minute), intPtr(55), nil)
	seedReading(t, store, id, start.Add(5*time.Minute), intPtr(45), nil)

	view, err := NewEngine(store).CurrentStatus(context.Background(), "EV001")
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if view.CurrentSoc != 55 {
		t.Fatalf("latest must be by timestamp, expected 55, got %d", view.CurrentSoc)
	}
}

func TestCurrentStatusTimestampTieBrokenByInsertionOrder(t *testing.T) {
	store := testutil.NewMemStore()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id := seedSession(t, store, "EV001", 10, start)

	ts := start.Add(5 * time.Minute)
	seedReading(t, store, id, ts, intPtr(45), nil)
	seedReading(t, store, id, ts, intPtr(50), nil)

	view, err := NewEngine(store).CurrentStatus(context.Background(), "EV001")
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if view.CurrentSoc != 50 {
		t.Fatalf("tie must resolve to the later insertion, got %d", view.CurrentSoc)
	}
}

func TestCurrentStatusPicksMostRecentSession(t *testing.T) {
	store := testutil.NewMemStore()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	oldID := seedSession(t, store, "EV001", 10, base)

	// Close the first session so a second can start.
	if _, err := store.CloseSession(context.Background(), oldID, 150, 80, base.Add(time.Hour)); err != nil {
		t.Fatalf("close: %v", err)
	}
	newID := seedSession(t, store, "EV001", 20, base.Add(2*time.Hour))

	view, err := NewEngine(store).CurrentStatus(context.Background(), "EV001")
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	if view.SessionID != newID {
		t.Fatalf("expected most recent session %d, got %d", newID, view.SessionID)
	}
}

func TestReadingsOrderedByTimestamp(t *testing.T) {
	store := testutil.NewMemStore()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id := seedSession(t, store, "EV001", 0, start)
	seedReading(t, store, id, start.Add(2*time.Minute), intPtr(20), nil)
	seedReading(t, store, id, start.Add(time.Minute), intPtr(10), nil)

	readings, err := NewEngine(store).Readings(context.Background(), id)
	if err != nil {
		t.Fatalf("readings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	if !readings[0].Timestamp.Before(readings[1].Timestamp) {
		t.Fatalf("readings must be ascending by timestamp")
	}
}
