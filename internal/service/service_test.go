package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yegors/aussie-atis/internal/atis"
	"github.com/yegors/aussie-atis/internal/geometry"
	"github.com/yegors/aussie-atis/internal/source"
	"github.com/yegors/aussie-atis/internal/storage/sqlite"
	"github.com/yegors/aussie-atis/pkg/logger"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]source.Blocks
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, code string) (source.Blocks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return source.Blocks{}, f.err
	}
	b, ok := f.pages[code]
	if !ok {
		return source.Blocks{}, source.ErrBlockNotFound
	}
	return b, nil
}

func (f *fakeFetcher) set(code, atisText string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages == nil {
		f.pages = make(map[string]source.Blocks)
	}
	f.pages[code] = source.Blocks{ATIS: &atisText}
}

func (f *fakeFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

var testAirports = []Airport{
	{Code: "YMML", Name: "Melbourne", Position: geometry.Position{Latitude: -37.6733, Longitude: 144.8433, ElevationFeet: 434}},
	{Code: "yssy"},
}

func newStore(t *testing.T) *sqlite.SnapshotStorage {
	t.Helper()
	store, err := sqlite.NewSnapshotStorage(filepath.Join(t.TempDir(), "atis.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("NewSnapshotStorage failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAirports(t *testing.T) {
	s := NewService(testAirports, &fakeFetcher{}, nil, Options{}, logger.NewNop())
	airports := s.Airports()
	if len(airports) != 2 || airports[0].Code != "YMML" || airports[1].Code != "YSSY" {
		t.Fatalf("airports = %+v", airports)
	}
	if airports[1].Name != "YSSY" {
		t.Errorf("name should default to code, got %q", airports[1].Name)
	}
}

func TestUnknownAirport(t *testing.T) {
	s := NewService(testAirports, &fakeFetcher{}, nil, Options{}, logger.NewNop())

	if _, err := s.Get("YPPH"); !errors.Is(err, ErrUnknownAirport) {
		t.Errorf("Get: err = %v, want ErrUnknownAirport", err)
	}
	if _, err := s.RefreshNow(context.Background(), "YPPH"); !errors.Is(err, ErrUnknownAirport) {
		t.Errorf("RefreshNow: err = %v, want ErrUnknownAirport", err)
	}
	if _, err := s.History("YPPH", 10); !errors.Is(err, ErrUnknownAirport) {
		t.Errorf("History: err = %v, want ErrUnknownAirport", err)
	}

	entry, err := s.Get("ymml")
	if err != nil || entry != nil {
		t.Errorf("Get(ymml) = %v, %v; want nil entry without error", entry, err)
	}
}

func TestRefreshNotifiesOnlyOnChange(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set("YMML", "MELBOURNE ATIS P\nRWY: 34\nWND: 340/15\nQNH: 1013")

	store := newStore(t)
	s := NewService(testAirports, fetcher, store, Options{}, logger.NewNop())

	var updates []*Entry
	s.OnUpdate(func(e *Entry) { updates = append(updates, e) })

	ctx := context.Background()
	entry, err := s.RefreshNow(ctx, "YMML")
	if err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}
	if entry.State != "ATIS P" {
		t.Errorf("state = %q, want ATIS P", entry.State)
	}
	if entry.Assessment == nil || entry.Assessment.HeadwindKnots == nil || *entry.Assessment.HeadwindKnots != 15 {
		t.Errorf("assessment = %+v", entry.Assessment)
	}

	if _, err := s.RefreshNow(ctx, "YMML"); err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("updates after identical refresh = %d, want 1", len(updates))
	}

	fetcher.set("YMML", "MELBOURNE ATIS Q\nRWY: 16\nQNH: 1015")
	if _, err := s.RefreshNow(ctx, "YMML"); err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}
	if len(updates) != 2 || updates[1].State != "ATIS Q" {
		t.Fatalf("updates = %d, want a second update for ATIS Q", len(updates))
	}

	history, err := s.History("YMML", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("stored snapshots = %d, want 2", len(history))
	}
}

func TestRefreshUsesClock(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set("YMML", "MELBOURNE ATIS P\nRWY: 34\nQNH: 1013")

	s := NewService(testAirports, fetcher, nil, Options{}, logger.NewNop())
	fixed := time.Date(2024, 6, 14, 6, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	if n := s.CachedCount(); n != 0 {
		t.Fatalf("cached before refresh = %d, want 0", n)
	}
	entry, err := s.RefreshNow(context.Background(), "YMML")
	if err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}
	if !entry.FetchedAt.Equal(fixed) || !entry.Record.DecodedAt.Equal(fixed) {
		t.Errorf("fetched at %v, decoded at %v; want %v", entry.FetchedAt, entry.Record.DecodedAt, fixed)
	}
	if n := s.CachedCount(); n != 1 {
		t.Errorf("cached after refresh = %d, want 1", n)
	}
}

func TestRefreshFailureKeepsRecord(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set("YMML", "MELBOURNE ATIS P\nQNH: 1013")
	s := NewService(testAirports, fetcher, nil, Options{}, logger.NewNop())

	ctx := context.Background()
	if _, err := s.RefreshNow(ctx, "YMML"); err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}

	fetcher.fail(source.ErrUnexpectedStatus)
	entry, err := s.RefreshNow(ctx, "YMML")
	if !errors.Is(err, source.ErrUnexpectedStatus) {
		t.Fatalf("err = %v, want ErrUnexpectedStatus", err)
	}
	if entry.Error == "" {
		t.Errorf("entry should carry the fetch error")
	}
	if entry.Record.QNH == nil || *entry.Record.QNH != 1013 {
		t.Errorf("previous record lost: %+v", entry.Record)
	}

	entry, err = s.RefreshNow(ctx, "YSSY")
	if err == nil || entry.State != "Unknown" {
		t.Errorf("first failure: entry = %+v, err = %v", entry, err)
	}
}

func TestWarmStartAndLoop(t *testing.T) {
	store := newStore(t)
	text := "MELBOURNE ATIS P\nRWY: 34"
	res := atis.Decode(atis.Input{ATIS: &text})
	if _, err := store.Save("YMML", &res.Record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fetcher := &fakeFetcher{}
	fetcher.set("YSSY", "SYDNEY ATIS K\nRWY: 34L FOR ARR. 34R FOR DEP")

	s := NewService(testAirports, fetcher, store, Options{Interval: time.Hour}, logger.NewNop())

	updated := make(chan *Entry, 4)
	s.OnUpdate(func(e *Entry) { updated <- e })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	select {
	case e := <-updated:
		if e.Airport != "YSSY" || e.Record.RunwayDeparture == nil || *e.Record.RunwayDeparture != "34R" {
			t.Errorf("unexpected update: %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the initial refresh")
	}

	warm, err := s.Get("YMML")
	if err != nil || warm == nil {
		t.Fatalf("warm entry missing: %v", err)
	}
	if warm.Record.Code == nil || *warm.Record.Code != "P" {
		t.Errorf("warm record = %+v", warm.Record)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.IsStarted() {
		t.Errorf("service should be stopped")
	}
}
