package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(Config{
		DBType: "sqlite",
		DBPath: filepath.Join(t.TempDir(), "pulse-test.sqlite"),
	})
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return db
}

func TestBoundaryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testDatabase(t)

	const url = "https://example.com/world.json"
	if _, ok, err := db.GetBoundary(ctx, url); err != nil || ok {
		t.Fatalf("empty cache get = ok %v err %v, want miss", ok, err)
	}
	if err := db.PutBoundary(ctx, url, []byte(`{"type":"FeatureCollection"}`)); err != nil {
		t.Fatalf("PutBoundary: %v", err)
	}
	payload, ok, err := db.GetBoundary(ctx, url)
	if err != nil || !ok {
		t.Fatalf("cache get = ok %v err %v, want hit", ok, err)
	}
	if string(payload) != `{"type":"FeatureCollection"}` {
		t.Errorf("payload = %s", payload)
	}

	// Replacing must not leave a second row behind.
	if err := db.PutBoundary(ctx, url, []byte(`{}`)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	payload, _, _ = db.GetBoundary(ctx, url)
	if string(payload) != `{}` {
		t.Errorf("replaced payload = %s", payload)
	}
}

func TestLiveSnapshotSingleRow(t *testing.T) {
	ctx := context.Background()
	db := testDatabase(t)

	if _, _, ok, err := db.GetLiveSnapshot(ctx); err != nil || ok {
		t.Fatalf("empty snapshot = ok %v err %v", ok, err)
	}
	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := db.ReplaceLiveSnapshot(ctx, []byte(`{"features":[]}`), first); err != nil {
		t.Fatalf("ReplaceLiveSnapshot: %v", err)
	}
	second := first.Add(time.Minute)
	if err := db.ReplaceLiveSnapshot(ctx, []byte(`{"features":[1]}`), second); err != nil {
		t.Fatalf("ReplaceLiveSnapshot 2: %v", err)
	}
	payload, fetchedAt, ok, err := db.GetLiveSnapshot(ctx)
	if err != nil || !ok {
		t.Fatalf("snapshot get = ok %v err %v", ok, err)
	}
	if string(payload) != `{"features":[1]}` || !fetchedAt.Equal(second) {
		t.Errorf("snapshot = %s at %v, want latest poll", payload, fetchedAt)
	}
}

func TestInteractionUpsertAndList(t *testing.T) {
	ctx := context.Background()
	db := testDatabase(t)

	recs := []InteractionRecord{
		{ID: "a", Category: "TRADE", Payload: []byte(`{"title":"one"}`)},
		{ID: "b", Category: "DIPLOMACY", Payload: []byte(`{"title":"two"}`)},
	}
	for _, rec := range recs {
		if err := db.UpsertInteraction(ctx, rec); err != nil {
			t.Fatalf("UpsertInteraction %s: %v", rec.ID, err)
		}
	}
	// Re-upserting the same id must replace, not duplicate.
	if err := db.UpsertInteraction(ctx, InteractionRecord{ID: "a", Category: "TRADE", Payload: []byte(`{"title":"one v2"}`)}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := db.ListInteractions(ctx)
	if err != nil {
		t.Fatalf("ListInteractions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("listed %d records, want 2", len(got))
	}
	byID := map[string]string{}
	for _, rec := range got {
		byID[rec.ID] = string(rec.Payload)
	}
	if byID["a"] != `{"title":"one v2"}` {
		t.Errorf("record a = %s, want replaced payload", byID["a"])
	}
}

func TestForecastReplaceAndLabels(t *testing.T) {
	ctx := context.Background()
	db := testDatabase(t)

	rows := []ForecastRow{
		{Admin1: "Maharashtra", Total: 5, Battles: 2},
		{Admin1: "Madhya Pradesh", Total: 1},
	}
	if err := db.ReplaceForecast(ctx, "2026-08", rows); err != nil {
		t.Fatalf("ReplaceForecast: %v", err)
	}
	if err := db.ReplaceForecast(ctx, "2026-08", rows[:1]); err != nil {
		t.Fatalf("ReplaceForecast again: %v", err)
	}

	got, err := db.GetForecast(ctx, "2026-08")
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if len(got) != 1 || got[0].Admin1 != "Maharashtra" || got[0].Total != 5 {
		t.Errorf("rows = %+v, want single replaced dataset", got)
	}

	labels, err := db.ForecastLabels(ctx)
	if err != nil {
		t.Fatalf("ForecastLabels: %v", err)
	}
	if len(labels) != 1 || labels[0] != "2026-08" {
		t.Errorf("labels = %v", labels)
	}
}
