package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegors/aussie-atis/internal/atis"
	"github.com/yegors/aussie-atis/pkg/logger"
)

func newTestStorage(t *testing.T) *SnapshotStorage {
	t.Helper()
	s, err := NewSnapshotStorage(filepath.Join(t.TempDir(), "db", "atis.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("NewSnapshotStorage failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func recordAt(text string, at time.Time) *atis.Record {
	d := atis.Decoder{Now: func() time.Time { return at }}
	res := d.Decode(atis.Input{ATIS: &text})
	return &res.Record
}

func TestSaveAndLatest(t *testing.T) {
	s := newTestStorage(t)
	base := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	if _, err := s.Save("YMML", recordAt("MELBOURNE ATIS P\nRWY: 34\nQNH: 1013", base)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.Save("YMML", recordAt("MELBOURNE ATIS Q\nRWY: 16\nQNH: 1015", base.Add(30*time.Minute))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := s.Latest("YMML")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if snap.Code != "Q" {
		t.Errorf("code = %q, want Q", snap.Code)
	}
	if snap.Record.QNH == nil || *snap.Record.QNH != 1015 {
		t.Errorf("qnh = %v, want 1015", snap.Record.QNH)
	}
	if !snap.DecodedAt.Equal(base.Add(30 * time.Minute)) {
		t.Errorf("decoded_at = %v", snap.DecodedAt)
	}
}

func TestLatestNotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.Latest("YSSY")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHistoryAndPrune(t *testing.T) {
	s := newTestStorage(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if _, err := s.Save("YPPH", recordAt("RWY: 03", base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if _, err := s.Save("YBBN", recordAt("RWY: 01", base)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	history, err := s.History("YPPH", 3)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	if !history[0].DecodedAt.After(history[1].DecodedAt) {
		t.Errorf("history should be newest first")
	}

	n, err := s.Prune(base.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	// Two YPPH rows and the single YBBN row are older than the cutoff
	if n != 3 {
		t.Errorf("pruned = %d, want 3", n)
	}

	history, err = s.History("YPPH", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("len(history) after prune = %d, want 3", len(history))
	}
}
