package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yegors/aussie-atis/internal/atis"
	"github.com/yegors/aussie-atis/internal/geometry"
	"github.com/yegors/aussie-atis/internal/source"
	"github.com/yegors/aussie-atis/internal/storage/sqlite"
	"github.com/yegors/aussie-atis/pkg/logger"
)

// ErrUnknownAirport is returned for a code that is not in the airport table
var ErrUnknownAirport = errors.New("unknown airport")

// Fetcher retrieves the text blocks for an airport
type Fetcher interface {
	Fetch(ctx context.Context, airportCode string) (source.Blocks, error)
}

// Store persists decoded records
type Store interface {
	Save(airport string, rec *atis.Record) (int64, error)
	Latest(airport string) (*sqlite.Snapshot, error)
	History(airport string, limit int) ([]*sqlite.Snapshot, error)
	Prune(before time.Time) (int64, error)
}

// UpdateHandler is called when an airport's source text changes
type UpdateHandler func(*Entry)

// Airport is one monitored aerodrome
type Airport struct {
	Code     string            `json:"code"`
	Name     string            `json:"name"`
	Position geometry.Position `json:"-"`
}

// Entry is the latest decoded state of one airport
type Entry struct {
	Airport     string               `json:"airport"`
	Name        string               `json:"name"`
	State       string               `json:"state"`
	Record      atis.Record          `json:"record"`
	Assessment  *geometry.Assessment `json:"assessment,omitempty"`
	Diagnostics []atis.Diagnostic    `json:"diagnostics,omitempty"`
	FetchedAt   time.Time            `json:"fetched_at"`
	Error       string               `json:"error,omitempty"`
}

// Options controls the refresh loop
type Options struct {
	Interval  time.Duration // Time between refresh rounds
	Stagger   time.Duration // Delay between airports within one round
	Retention time.Duration // Stored snapshots older than this are pruned (0 = keep)
}

// Service refreshes every configured airport on a schedule and keeps the
// decoded results in memory
type Service struct {
	airports map[string]Airport
	fetcher  Fetcher
	store    Store
	decoder  atis.Decoder
	cache    *Cache
	options  Options
	logger   *logger.Logger

	handlersMu sync.RWMutex
	handlers   []UpdateHandler

	// Service lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex

	// Serializes refreshes of the same airport
	refreshMu sync.Map
}

// NewService creates a refresh service. store may be nil to run without history.
func NewService(airports []Airport, fetcher Fetcher, store Store, options Options, log *logger.Logger) *Service {
	if options.Interval <= 0 {
		options.Interval = 15 * time.Minute
	}

	table := make(map[string]Airport, len(airports))
	for _, a := range airports {
		a.Code = strings.ToUpper(a.Code)
		if a.Name == "" {
			a.Name = a.Code
		}
		table[a.Code] = a
	}

	return &Service{
		airports: table,
		fetcher:  fetcher,
		store:    store,
		cache:    NewCache(log),
		options:  options,
		logger:   log.Named("atis-service"),
	}
}

// SetClock overrides the clock used when decoding
func (s *Service) SetClock(now func() time.Time) {
	s.decoder.Now = now
}

// OnUpdate registers a handler for changed airports
func (s *Service) OnUpdate(h UpdateHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Start loads stored snapshots and begins the background refresh
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info("Starting ATIS service",
		logger.Int("airports", len(s.airports)),
		logger.Duration("interval", s.options.Interval),
		logger.Duration("stagger", s.options.Stagger))

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.warmStart()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.backgroundRefresh()
	}()

	s.started = true
	return nil
}

// Stop cancels the refresh loop and waits for it to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info("Stopping ATIS service")
	s.cancel()
	s.wg.Wait()

	s.started = false
	s.logger.Info("ATIS service stopped")
	return nil
}

// IsStarted returns whether the service is currently running
func (s *Service) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Airports returns the airport table sorted by code
func (s *Service) Airports() []Airport {
	out := make([]Airport, 0, len(s.airports))
	for _, a := range s.airports {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Airport returns one airport from the table
func (s *Service) Airport(code string) (Airport, error) {
	return s.lookup(code)
}

// Get returns the latest entry for an airport. The entry is nil when the
// airport is known but has not been fetched yet.
func (s *Service) Get(code string) (*Entry, error) {
	a, err := s.lookup(code)
	if err != nil {
		return nil, err
	}
	return s.cache.Get(a.Code), nil
}

// All returns every cached entry sorted by airport code
func (s *Service) All() []*Entry {
	return s.cache.All()
}

// CachedCount returns how many airports have a cached entry
func (s *Service) CachedCount() int {
	return s.cache.Len()
}

// History returns stored snapshots for an airport, newest first
func (s *Service) History(code string, limit int) ([]*sqlite.Snapshot, error) {
	a, err := s.lookup(code)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, nil
	}
	return s.store.History(a.Code, limit)
}

// RefreshNow fetches and decodes one airport immediately
func (s *Service) RefreshNow(ctx context.Context, code string) (*Entry, error) {
	a, err := s.lookup(code)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Manual refresh triggered", logger.String("airport", a.Code))
	return s.refresh(ctx, a)
}

func (s *Service) lookup(code string) (Airport, error) {
	a, ok := s.airports[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Airport{}, fmt.Errorf("%w: %s", ErrUnknownAirport, code)
	}
	return a, nil
}

// warmStart fills the cache from the latest stored snapshot of each airport
func (s *Service) warmStart() {
	if s.store == nil {
		return
	}

	loaded := 0
	for _, a := range s.airports {
		snap, err := s.store.Latest(a.Code)
		if err != nil {
			if !errors.Is(err, sqlite.ErrNotFound) {
				s.logger.Warn("Failed to load stored snapshot",
					logger.String("airport", a.Code),
					logger.Error(err))
			}
			continue
		}

		rec := snap.Record
		s.cache.Set(&Entry{
			Airport:    a.Code,
			Name:       a.Name,
			State:      rec.State(),
			Record:     rec,
			Assessment: geometry.Assess(&rec, a.Position, rec.DecodedAt),
			FetchedAt:  snap.DecodedAt,
		})
		loaded++
	}

	s.logger.Info("Loaded stored snapshots", logger.Int("count", loaded))
}

// backgroundRefresh runs one round immediately and then one per interval
func (s *Service) backgroundRefresh() {
	ticker := time.NewTicker(s.options.Interval)
	defer ticker.Stop()

	s.refreshAll()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Background refresh stopped")
			return
		case <-ticker.C:
			s.logger.Debug("Periodic refresh triggered")
			s.refreshAll()
		}
	}
}

// refreshAll refreshes every airport, waiting the stagger delay between them
func (s *Service) refreshAll() {
	start := time.Now()
	airports := s.Airports()
	failed := 0

	for i, a := range airports {
		if i > 0 && s.options.Stagger > 0 {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.options.Stagger):
			}
		}
		if s.ctx.Err() != nil {
			return
		}
		if _, err := s.refresh(s.ctx, a); err != nil {
			failed++
		}
	}

	s.prune()

	s.logger.Info("Refresh round completed",
		logger.Int("airports", len(airports)),
		logger.Int("failed", failed),
		logger.Duration("duration", time.Since(start)))
}

func (s *Service) airportLock(code string) *sync.Mutex {
	m, _ := s.refreshMu.LoadOrStore(code, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// refresh fetches, decodes and caches one airport. Handlers and storage only
// see the entry when the source text differs from the cached one.
func (s *Service) refresh(ctx context.Context, a Airport) (*Entry, error) {
	lock := s.airportLock(a.Code)
	lock.Lock()
	defer lock.Unlock()

	prev := s.cache.Get(a.Code)

	blocks, err := s.fetcher.Fetch(ctx, a.Code)
	if err != nil {
		s.logger.Warn("Failed to fetch airport page",
			logger.String("airport", a.Code),
			logger.Error(err))

		failed := &Entry{Airport: a.Code, Name: a.Name, State: "Unknown"}
		if prev != nil {
			copied := *prev
			failed = &copied
		}
		failed.Error = err.Error()
		s.cache.Set(failed)
		return failed, err
	}

	res := s.decoder.Decode(atis.Input{ATIS: blocks.ATIS, METAR: blocks.METAR, TAF: blocks.TAF})
	for _, d := range res.Diagnostics {
		s.logger.Debug("Field not decoded",
			logger.String("airport", a.Code),
			logger.String("field", string(d.Field)),
			logger.String("reason", d.Reason),
			logger.String("raw", d.Raw))
	}

	entry := &Entry{
		Airport:     a.Code,
		Name:        a.Name,
		State:       res.Record.State(),
		Record:      res.Record,
		Assessment:  geometry.Assess(&res.Record, a.Position, res.Record.DecodedAt),
		Diagnostics: res.Diagnostics,
		FetchedAt:   res.Record.DecodedAt,
	}
	s.cache.Set(entry)

	if prev != nil && prev.Record.SameSource(&entry.Record) {
		s.logger.Debug("ATIS unchanged", logger.String("airport", a.Code))
		return entry, nil
	}

	s.logger.Info("ATIS updated",
		logger.String("airport", a.Code),
		logger.String("state", entry.State),
		logger.Bool("first", prev == nil),
		logger.Int("diagnostics", len(entry.Diagnostics)))

	if s.store != nil {
		if _, err := s.store.Save(a.Code, &entry.Record); err != nil {
			s.logger.Error("Failed to store snapshot",
				logger.String("airport", a.Code),
				logger.Error(err))
		}
	}

	s.notify(entry)
	return entry, nil
}

func (s *Service) notify(entry *Entry) {
	s.handlersMu.RLock()
	handlers := append([]UpdateHandler(nil), s.handlers...)
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		h(entry)
	}
}

func (s *Service) prune() {
	if s.store == nil || s.options.Retention <= 0 {
		return
	}
	if _, err := s.store.Prune(time.Now().Add(-s.options.Retention)); err != nil {
		s.logger.Error("Failed to prune snapshots", logger.Error(err))
	}
}
