package models

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
)

// AppName is used for config and cache directory names.
const AppName = "nightscout-insights"

// Settings contains all application settings
type Settings struct {
	mu sync.RWMutex `json:"-"`

	// Connection settings
	NightscoutURL string `json:"nightscoutUrl"`
	APISecret     string `json:"apiSecret"` // Plain API secret (will be hashed)
	APIToken      string `json:"apiToken"`  // Token-based auth
	UseToken      bool   `json:"useToken"`  // Use token instead of secret

	// Integrations service (meals and activity summary)
	IntegrationsURL   string `json:"integrationsUrl"`
	IntegrationsToken string `json:"integrationsToken"`

	// Display settings
	Unit            string `json:"unit"`            // "mg/dL" or "mmol/L"
	RefreshInterval int    `json:"refreshInterval"` // Seconds (30-600)
	HistoryDays     int    `json:"historyDays"`     // Days fetched per refresh

	// Glucose alert thresholds in mg/dL
	TargetLow  int `json:"targetLow"`
	TargetHigh int `json:"targetHigh"`
	UrgentLow  int `json:"urgentLow"`
	UrgentHigh int `json:"urgentHigh"`

	// Alert settings
	EnableHighAlert         bool `json:"enableHighAlert"`
	EnableLowAlert          bool `json:"enableLowAlert"`
	EnableUrgentHighAlert   bool `json:"enableUrgentHighAlert"`
	EnableUrgentLowAlert    bool `json:"enableUrgentLowAlert"`
	EnableInferredMealAlert bool `json:"enableInferredMealAlert"`
	RepeatAlertMinutes      int  `json:"repeatAlertMinutes"` // 0 = no repeat

	Profile TherapyProfile `json:"profile"`

	path string
}

// DefaultSettings returns settings with default values
func DefaultSettings() *Settings {
	return &Settings{
		Unit:            "mg/dL",
		RefreshInterval: 60, // 1 minute default
		HistoryDays:     30,

		TargetLow:  70,
		TargetHigh: 180,
		UrgentLow:  55,
		UrgentHigh: 250,

		EnableHighAlert:         true,
		EnableLowAlert:          true,
		EnableUrgentHighAlert:   true,
		EnableUrgentLowAlert:    true,
		EnableInferredMealAlert: true,
		RepeatAlertMinutes:      15,

		Profile: DefaultProfile(),
	}
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() (string, error) {
	return xdg.ConfigFile(filepath.Join(AppName, "settings.json"))
}

// SetPath overrides the file used by Load and Save.
func (s *Settings) SetPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
}

func (s *Settings) resolvePath() (string, error) {
	if s.path != "" {
		return s.path, nil
	}
	return GetConfigPath()
}

// Load loads settings from disk
func (s *Settings) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.resolvePath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path) //nolint:gosec // Config path is controlled by the app, not user input
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Use defaults if file doesn't exist
			s.copySettingsFields(DefaultSettings())
			return nil
		}
		return err
	}

	loaded := DefaultSettings()
	if err := json.Unmarshal(data, loaded); err != nil {
		return err
	}
	s.copySettingsFields(loaded)

	return nil
}

// Save saves settings to disk
func (s *Settings) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.resolvePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Clone creates a copy of the settings
func (s *Settings) Clone() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Create a new Settings struct with copied values (not the mutex)
	clone := &Settings{path: s.path}
	clone.copySettingsFields(s)
	return clone
}

// Update updates settings from another Settings object
func (s *Settings) Update(other *Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	s.copySettingsFields(other)
}

// copySettingsFields copies all fields from other to s, excluding the mutex
// The caller must hold the necessary locks on s and other (if other is shared)
func (s *Settings) copySettingsFields(other *Settings) {
	s.NightscoutURL = other.NightscoutURL
	s.APISecret = other.APISecret
	s.APIToken = other.APIToken
	s.UseToken = other.UseToken
	s.IntegrationsURL = other.IntegrationsURL
	s.IntegrationsToken = other.IntegrationsToken
	s.Unit = other.Unit
	s.RefreshInterval = other.RefreshInterval
	s.HistoryDays = other.HistoryDays
	s.TargetLow = other.TargetLow
	s.TargetHigh = other.TargetHigh
	s.UrgentLow = other.UrgentLow
	s.UrgentHigh = other.UrgentHigh
	s.EnableHighAlert = other.EnableHighAlert
	s.EnableLowAlert = other.EnableLowAlert
	s.EnableUrgentHighAlert = other.EnableUrgentHighAlert
	s.EnableUrgentLowAlert = other.EnableUrgentLowAlert
	s.EnableInferredMealAlert = other.EnableInferredMealAlert
	s.RepeatAlertMinutes = other.RepeatAlertMinutes
	s.Profile = other.Profile.Clone()
}

// IsConfigured returns true if minimum required settings are set
func (s *Settings) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.NightscoutURL != ""
}

// TherapyProfile returns a copy of the configured profile.
func (s *Settings) TherapyProfile() TherapyProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Profile.Clone()
}

// SetProfile validates and stores a new profile.
func (s *Settings) SetProfile(p TherapyProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Profile = p.Clone()
	return nil
}

// GetGlucoseStatus returns the status string for a glucose value
func (s *Settings) GetGlucoseStatus(mgdl int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case mgdl <= s.UrgentLow:
		return "urgent_low"
	case mgdl <= s.TargetLow:
		return "low"
	case mgdl >= s.UrgentHigh:
		return "urgent_high"
	case mgdl >= s.TargetHigh:
		return "high"
	default:
		return "normal"
	}
}
