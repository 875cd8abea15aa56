// Package notifications handles desktop notifications for glucose alerts,
// inferred meals and dose estimates.
package notifications

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/mrcode/nightscout-insights/internal/models"
)

// Alert type constants
const (
	alertUrgentLow  = "urgent_low"
	alertLow        = "low"
	alertUrgentHigh = "urgent_high"
	alertHigh       = "high"
)

// Sender delivers a notification to the desktop.
type Sender interface {
	Notify(title, message string) error
}

type beeepSender struct{}

func (beeepSender) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Manager handles glucose alerts and notifications
type Manager struct {
	settings      *models.Settings
	sender        Sender
	lastAlertTime map[string]time.Time
	notifiedMeals map[string]struct{}
	now           func() time.Time
	mu            sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithSender replaces the desktop notifier.
func WithSender(s Sender) Option {
	return func(m *Manager) { m.sender = s }
}

// WithClock overrides time.Now for repeat suppression.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a new notification manager
func NewManager(settings *models.Settings, opts ...Option) *Manager {
	m := &Manager{
		settings:      settings,
		sender:        beeepSender{},
		lastAlertTime: make(map[string]time.Time),
		notifiedMeals: make(map[string]struct{}),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpdateSettings updates the settings reference
func (m *Manager) UpdateSettings(settings *models.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
}

// CheckAndNotify checks glucose value and sends notification if needed.
// Stale readings never alert.
func (m *Manager) CheckAndNotify(status *models.GlucoseStatus) error {
	if status == nil || status.IsStale {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alertType := m.shouldAlert(status)
	if alertType == "" {
		return nil
	}

	// Check if we should repeat the alert
	if lastTime, ok := m.lastAlertTime[alertType]; ok {
		if m.settings.RepeatAlertMinutes > 0 {
			repeatDuration := time.Duration(m.settings.RepeatAlertMinutes) * time.Minute
			if m.now().Sub(lastTime) < repeatDuration {
				return nil
			}
		} else {
			// No repeat, only alert once per status change
			return nil
		}
	}

	title, message := m.formatNotification(status, alertType)
	if err := m.sender.Notify(title, message); err != nil {
		return err
	}

	m.lastAlertTime[alertType] = m.now()
	return nil
}

// shouldAlert determines if an alert should be sent
func (m *Manager) shouldAlert(status *models.GlucoseStatus) string {
	switch status.Status {
	case alertUrgentLow:
		if m.settings.EnableUrgentLowAlert {
			return alertUrgentLow
		}
	case alertLow:
		if m.settings.EnableLowAlert {
			return alertLow
		}
	case alertUrgentHigh:
		if m.settings.EnableUrgentHighAlert {
			return alertUrgentHigh
		}
	case alertHigh:
		if m.settings.EnableHighAlert {
			return alertHigh
		}
	}
	return ""
}

func (m *Manager) formatValue(mgdl int, mmol float64) string {
	if m.settings.Unit == "mmol/L" {
		return fmt.Sprintf("%.1f mmol/L", mmol)
	}
	return fmt.Sprintf("%d mg/dL", mgdl)
}

// formatNotification creates the notification title and message
func (m *Manager) formatNotification(status *models.GlucoseStatus, alertType string) (string, string) {
	var title, message string
	valueStr := m.formatValue(status.Value, status.ValueMmol)

	switch alertType {
	case alertUrgentLow:
		title = "⚠️ URGENT LOW GLUCOSE"
		message = fmt.Sprintf("Glucose is critically low: %s %s", valueStr, status.Trend)
	case alertLow:
		title = "⬇️ Low Glucose"
		message = fmt.Sprintf("Glucose is low: %s %s", valueStr, status.Trend)
	case alertUrgentHigh:
		title = "⚠️ URGENT HIGH GLUCOSE"
		message = fmt.Sprintf("Glucose is critically high: %s %s", valueStr, status.Trend)
	case alertHigh:
		title = "⬆️ High Glucose"
		message = fmt.Sprintf("Glucose is high: %s %s", valueStr, status.Trend)
	}

	if status.IOB > 0 || status.COB > 0 {
		message += fmt.Sprintf(" (IOB %.2f U, COB %.0f g)", status.IOB, status.COB)
	}

	return title, message
}

// NotifyInferredMeals announces each inferred meal once. It returns how many
// notifications were sent.
func (m *Manager) NotifyInferredMeals(meals []models.InferredMeal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.settings.EnableInferredMealAlert {
		return 0, nil
	}

	sent := 0
	for _, meal := range meals {
		if _, done := m.notifiedMeals[meal.ID]; done {
			continue
		}
		rise := m.formatValue(int(meal.RiseMgdl), meal.RiseMgdl/18.0182)
		message := fmt.Sprintf("Glucose rose %s around %s with no meal logged.", rise, meal.EatenAt.Format("15:04"))
		if err := m.sender.Notify("🍽️ Unlogged meal?", message); err != nil {
			return sent, err
		}
		m.notifiedMeals[meal.ID] = struct{}{}
		sent++
	}
	return sent, nil
}

// NotifyDose shows a dose estimate summary.
func (m *Manager) NotifyDose(advice *models.DoseAdvice) error {
	if advice == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Suggested %.1f U (%.2f U carbs + %.2f U correction", advice.RoundedHalfUnitDose, advice.AdjustedCarbBolusUnits, advice.AdjustedCorrectionUnits)
	if advice.IOBUnits > 0 || advice.COBGrams > 0 {
		fmt.Fprintf(&b, ", after %.2f U on board", advice.IOBUnits)
	}
	b.WriteString(").")
	if advice.GlucoseStatus == models.StatusLow {
		b.WriteString(" Glucose is below target.")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sender.Notify("💉 Dose estimate", b.String())
}

// ClearAlertState clears the alert state for a specific type or all types
func (m *Manager) ClearAlertState(alertType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alertType == "" {
		m.lastAlertTime = make(map[string]time.Time)
	} else {
		delete(m.lastAlertTime, alertType)
	}
}

// SendTestNotification sends a test notification
func (m *Manager) SendTestNotification() error {
	return m.sender.Notify("Nightscout Insights", "Test notification - alerts are working!")
}
