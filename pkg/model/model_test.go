package model

import (
	"math"
	"testing"
)

func TestUpdateInPlace(t *testing.T) {
	tbl := NewTable()

	tbl.Update(StatusRow{InfoHash: "aaa", Name: "ubuntu", Progress: 0.1, State: StateDownloading})
	if tbl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tbl.Len())
	}

	tbl.Update(StatusRow{InfoHash: "aaa", Name: "ubuntu", Progress: 0.5, State: StateDownloading})
	if tbl.Len() != 1 {
		t.Fatalf("Len after second update = %d, want 1 (in-place mutation)", tbl.Len())
	}

	row, ok := tbl.Get("aaa")
	if !ok {
		t.Fatal("Get(aaa) not found")
	}
	if row.Progress != 0.5 {
		t.Errorf("Progress = %v, want 0.5", row.Progress)
	}
}

func TestUpdateAppendsUnseen(t *testing.T) {
	tbl := NewTable()
	tbl.Update(StatusRow{InfoHash: "aaa"})
	tbl.Update(StatusRow{InfoHash: "bbb"})
	if tbl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tbl.Len())
	}
}

func TestRowsInsertionOrder(t *testing.T) {
	tbl := NewTable()
	for _, hash := range []string{"ccc", "aaa", "bbb"} {
		tbl.Update(StatusRow{InfoHash: hash})
	}
	// Updating an existing row must not change its position
	tbl.Update(StatusRow{InfoHash: "aaa", Progress: 1})

	rows := tbl.Rows()
	want := []string{"ccc", "aaa", "bbb"}
	if len(rows) != len(want) {
		t.Fatalf("Rows returned %d rows, want %d", len(rows), len(want))
	}
	for i, hash := range want {
		if rows[i].InfoHash != hash {
			t.Errorf("rows[%d] = %s, want %s", i, rows[i].InfoHash, hash)
		}
	}
}

func TestBulkUpdate(t *testing.T) {
	tbl := NewTable()
	tbl.Update(StatusRow{InfoHash: "aaa", Progress: 0.1})

	tbl.BulkUpdate([]StatusRow{
		{InfoHash: "aaa", Progress: 0.9},
		{InfoHash: "bbb", Progress: 0.2},
	})

	if tbl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tbl.Len())
	}
	row, _ := tbl.Get("aaa")
	if row.Progress != 0.9 {
		t.Errorf("aaa Progress = %v, want 0.9", row.Progress)
	}

	// Replaying the same batch is idempotent
	tbl.BulkUpdate([]StatusRow{
		{InfoHash: "aaa", Progress: 0.9},
		{InfoHash: "bbb", Progress: 0.2},
	})
	if tbl.Len() != 2 {
		t.Errorf("Len after replay = %d, want 2", tbl.Len())
	}
}

func TestRemove(t *testing.T) {
	tbl := NewTable()
	for _, hash := range []string{"aaa", "bbb", "ccc"} {
		tbl.Update(StatusRow{InfoHash: hash})
	}

	tbl.Remove("bbb")
	if tbl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tbl.Len())
	}
	if _, ok := tbl.Get("bbb"); ok {
		t.Error("removed row still present")
	}
	rows := tbl.Rows()
	if rows[0].InfoHash != "aaa" || rows[1].InfoHash != "ccc" {
		t.Errorf("order after remove = %s,%s", rows[0].InfoHash, rows[1].InfoHash)
	}

	// Removing an absent row is a no-op
	tbl.Remove("zzz")
	if tbl.Len() != 2 {
		t.Errorf("Len after no-op remove = %d, want 2", tbl.Len())
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{math.Inf(1), "∞"},
		{0, "∞"},
		{-5, "∞"},
		{math.NaN(), "∞"},
		{90, "1m 30s"},
		{59, "0m 59s"},
		{3*3600 + 25*60, "3h 25m"},
	}
	for _, tt := range tests {
		if got := FormatETA(tt.in); got != tt.want {
			t.Errorf("FormatETA(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
