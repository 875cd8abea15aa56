// Package app runs the refresh loop: fetch upstream data, build the report,
// keep a cached copy and raise notifications.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrcode/nightscout-insights/internal/analytics"
	"github.com/mrcode/nightscout-insights/internal/cache"
	"github.com/mrcode/nightscout-insights/internal/models"
)

// Report sources.
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
)

const unitMmolL = "mmol/L"

// historyPoints is how many readings History keeps for sparklines (2 hours).
const historyPoints = 24

// GlucoseSource is the Nightscout side of a refresh.
type GlucoseSource interface {
	GetEntriesDays(ctx context.Context, days float64) ([]models.GlucoseEntry, error)
	GetTreatmentsDays(ctx context.Context, days float64) ([]models.Treatment, error)
}

// IntegrationsSource provides logged meals and the activity summary.
type IntegrationsSource interface {
	GetMeals(ctx context.Context, days float64) ([]models.Meal, error)
	GetHealthSummary(ctx context.Context) (*models.HealthSummary, error)
}

// SnapshotStore persists the last good fetch.
type SnapshotStore interface {
	Save(snap cache.Snapshot) error
	Load() (*cache.Snapshot, error)
}

// Notifier raises desktop alerts.
type Notifier interface {
	CheckAndNotify(status *models.GlucoseStatus) error
	NotifyInferredMeals(meals []models.InferredMeal) (int, error)
}

// UpdateFunc receives every refreshed report.
type UpdateFunc func(report *models.Report, status *models.GlucoseStatus)

// Service coordinates refreshes. It is safe for concurrent use.
type Service struct {
	settings     *models.Settings
	glucose      GlucoseSource
	integrations IntegrationsSource
	snapshots    SnapshotStore
	notifier     Notifier
	onUpdate     UpdateFunc
	logger       *slog.Logger
	now          func() time.Time

	mu                sync.RWMutex
	lastReport        *models.Report
	lastStatus        *models.GlucoseStatus
	lastEntries       []models.GlucoseEntry
	lastSuccessTime   time.Time
	consecutiveErrors int
}

// Option configures a Service.
type Option func(*Service)

// WithIntegrations enables meal and summary fetching.
func WithIntegrations(src IntegrationsSource) Option {
	return func(s *Service) { s.integrations = src }
}

// WithSnapshots enables the offline cache.
func WithSnapshots(store SnapshotStore) Option {
	return func(s *Service) { s.snapshots = store }
}

// WithNotifier enables desktop alerts.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithUpdateFunc registers a callback run after each refresh.
func WithUpdateFunc(fn UpdateFunc) Option {
	return func(s *Service) { s.onUpdate = fn }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service reading glucose data from src.
func NewService(settings *models.Settings, src GlucoseSource, opts ...Option) *Service {
	s := &Service{
		settings: settings,
		glucose:  src,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type fetched struct {
	entries    []models.GlucoseEntry
	treatments []models.Treatment
	meals      []models.Meal
	summary    *models.HealthSummary
}

// fetch loads everything concurrently. Glucose and treatment failures are
// fatal; integrations failures only drop meals and the summary.
func (s *Service) fetch(ctx context.Context, days float64) (*fetched, error) {
	var out fetched
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := s.glucose.GetEntriesDays(gctx, days)
		if err != nil {
			return fmt.Errorf("fetching entries: %w", err)
		}
		out.entries = entries
		return nil
	})
	g.Go(func() error {
		treatments, err := s.glucose.GetTreatmentsDays(gctx, days)
		if err != nil {
			return fmt.Errorf("fetching treatments: %w", err)
		}
		out.treatments = treatments
		return nil
	})
	if s.integrations != nil {
		g.Go(func() error {
			meals, err := s.integrations.GetMeals(gctx, days)
			if err != nil {
				s.logger.Warn("meals unavailable", "error", err)
				return nil
			}
			out.meals = meals
			return nil
		})
		g.Go(func() error {
			summary, err := s.integrations.GetHealthSummary(gctx)
			if err != nil {
				s.logger.Warn("health summary unavailable", "error", err)
				return nil
			}
			out.summary = summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh fetches fresh data and rebuilds the report. When the upstream
// fetch fails the last snapshot is used and the report is marked stale; the
// error is returned only if no snapshot exists either.
func (s *Service) Refresh(ctx context.Context) (*models.Report, error) {
	settings := s.settings.Clone()
	days := float64(settings.HistoryDays)

	source := SourceNetwork
	data, err := s.fetch(ctx, days)
	if err != nil {
		s.mu.Lock()
		s.consecutiveErrors++
		attempts := s.consecutiveErrors
		s.mu.Unlock()
		s.logger.Error("refresh failed", "attempt", attempts, "error", err)

		data, err = s.fromSnapshot(err)
		if err != nil {
			return nil, err
		}
		source = SourceCache
	} else {
		s.mu.Lock()
		s.consecutiveErrors = 0
		s.lastSuccessTime = s.now()
		s.mu.Unlock()
		s.saveSnapshot(data)
	}

	now := s.now()
	report, err := analytics.BuildReport(ctx, analytics.ReportInput{
		Entries:    data.entries,
		Treatments: data.treatments,
		Meals:      data.meals,
		Summary:    data.summary,
		Profile:    settings.TherapyProfile(),
	}, now)
	if err != nil {
		return nil, err
	}
	report.Source = source
	report.Stale = source == SourceCache

	status := analytics.CurrentStatus(data.entries, report.Active, settings, now)
	if status != nil && report.Stale {
		status.IsStale = true
	}

	s.mu.Lock()
	s.lastReport = report
	s.lastStatus = status
	s.lastEntries = data.entries
	s.mu.Unlock()

	if !report.Stale {
		s.notify(status, report.InferredMeals)
	}
	if s.onUpdate != nil {
		s.onUpdate(report, status)
	}
	return report, nil
}

func (s *Service) fromSnapshot(cause error) (*fetched, error) {
	if s.snapshots == nil {
		return nil, cause
	}
	snap, err := s.snapshots.Load()
	if err != nil {
		if !errors.Is(err, cache.ErrNoSnapshot) {
			s.logger.Warn("reading snapshot failed", "error", err)
		}
		return nil, cause
	}
	s.logger.Info("using cached snapshot", "saved_at", snap.SavedAt)
	return &fetched{
		entries:    snap.Entries,
		treatments: snap.Treatments,
		meals:      snap.Meals,
		summary:    snap.Summary,
	}, nil
}

func (s *Service) saveSnapshot(data *fetched) {
	if s.snapshots == nil {
		return
	}
	err := s.snapshots.Save(cache.Snapshot{
		SavedAt:    s.now(),
		Entries:    data.entries,
		Treatments: data.treatments,
		Meals:      data.meals,
		Summary:    data.summary,
	})
	if err != nil {
		s.logger.Warn("saving snapshot failed", "error", err)
	}
}

func (s *Service) notify(status *models.GlucoseStatus, inferred []models.InferredMeal) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.CheckAndNotify(status); err != nil {
		s.logger.Warn("glucose alert failed", "error", err)
	}
	if _, err := s.notifier.NotifyInferredMeals(inferred); err != nil {
		s.logger.Warn("inferred meal alert failed", "error", err)
	}
}

// Run refreshes immediately and then every RefreshInterval seconds until ctx
// is cancelled. Refresh errors are logged, not returned.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.settings.Clone().RefreshInterval) * time.Second
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("no report available", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// LastReport returns the most recent report, or nil before the first refresh.
func (s *Service) LastReport() *models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// CurrentStatus returns the status of the newest reading.
func (s *Service) CurrentStatus() *models.GlucoseStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatus
}

// ConsecutiveErrors reports how many refreshes in a row failed upstream.
func (s *Service) ConsecutiveErrors() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveErrors
}

// History returns up to the last 24 readings, oldest first, in the display
// unit.
func (s *Service) History() []float64 {
	s.mu.RLock()
	entries := s.lastEntries
	s.mu.RUnlock()

	unit := s.settings.Clone().Unit
	n := min(len(entries), historyPoints)
	out := make([]float64, 0, n)
	// Entries arrive newest first.
	for i := n - 1; i >= 0; i-- {
		if unit == unitMmolL {
			out = append(out, entries[i].ValueMmolL())
		} else {
			out = append(out, entries[i].SGV)
		}
	}
	return out
}

// ErrStaleReport is returned by Dose when the latest report was built from
// the cached snapshot or no report exists yet.
var ErrStaleReport = errors.New("insulin and carbs on board are not current")

// Dose estimates a bolus using the active insulin and carbs from the latest
// report. It refuses to use a report built from cached data, since treatments
// logged after the snapshot would be missing from IOB.
func (s *Service) Dose(carbs, glucoseGL float64, mealTime string) (*models.DoseAdvice, error) {
	r := s.LastReport()
	switch {
	case r == nil:
		return nil, fmt.Errorf("%w: no report yet", ErrStaleReport)
	case r.Stale:
		return nil, fmt.Errorf("%w: Nightscout was unreachable and the report was built from cached data", ErrStaleReport)
	}

	return analytics.CalculateDose(analytics.DoseRequest{
		CarbsGrams:       carbs,
		CurrentGlucoseGL: glucoseGL,
		MealTimeHHMM:     mealTime,
		IOBUnits:         r.Active.IOBUnits,
		COBGrams:         r.Active.COBGrams,
	}, s.settings.TherapyProfile())
}
