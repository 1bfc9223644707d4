// Package config handles loading and persisting the audio engine's
// tuning knobs (the table in spec section 6).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EngineConfig is every recognised tuning knob for the pipeline. It is
// read once at startup and is read-only for the lifetime of the audio
// task; runtime retuning happens by copy-then-publish through an
// independent channel, never by mutating a shared EngineConfig.
type EngineConfig struct {
	HopSize       int `json:"hopSize"`
	SampleRate    int `json:"sampleRate"`
	RingCapacity  int `json:"ringCapacity"`
	RhythmBins    int `json:"rhythmBins"`
	HarmonyBins   int `json:"harmonyBins"`

	Attack       float64 `json:"attack"`
	Release      float64 `json:"release"`
	DriveRelease float64 `json:"driveRelease"`
	PunchRelease float64 `json:"punchRelease"`

	MinBPM      float64 `json:"minBpm"`
	MaxBPM      float64 `json:"maxBpm"`
	RefractoryMs float64 `json:"refractoryMs"`

	OnsetThreshK                 float64 `json:"onsetThreshK"`
	AdaptiveThresholdSensitivity float64 `json:"adaptiveThresholdSensitivity"`

	BPMAlphaAttack  float64 `json:"bpmAlphaAttack"`
	BPMAlphaRelease float64 `json:"bpmAlphaRelease"`

	PLLKp                  float64 `json:"pllKp"`
	PLLKi                  float64 `json:"pllKi"`
	PLLMaxPhaseCorrection  float64 `json:"pllMaxPhaseCorrection"`
	PLLMaxTempoCorrection  float64 `json:"pllMaxTempoCorrection"`
	PLLMaxIntegral         float64 `json:"pllMaxIntegral"`

	DensityDecay              float64 `json:"densityDecay"`
	KernelWidth               int     `json:"kernelWidth"`
	OctaveVariantWeight       float64 `json:"octaveVariantWeight"`
	OctaveVotingConfThreshold float64 `json:"octaveVotingConfThreshold"`

	LockThreshold         float64 `json:"lockThreshold"`
	LowConfThreshold      float64 `json:"lowConfThreshold"`
	LowConfResetTimeSec   float64 `json:"lowConfResetTimeSec"`
	DensitySoftResetFactor float64 `json:"densitySoftResetFactor"`

	IntervalMismatchThreshold float64 `json:"intervalMismatchThreshold"`
	IntervalMismatchCount     int     `json:"intervalMismatchCount"`

	StyleAlpha               float64 `json:"styleAlpha"`
	StyleHysteresis          float64 `json:"styleHysteresis"`
	MinHopsForClassification int     `json:"minHopsForClassification"`
	AnalysisWindowHops       int     `json:"analysisWindowHops"`
}

// DefaultConfig returns the knob values from spec section 6.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		HopSize:      256,
		SampleRate:   16000,
		RingCapacity: 2048,
		RhythmBins:   24,
		HarmonyBins:  64,

		Attack:       0.3,
		Release:      0.85,
		DriveRelease: 0.9,
		PunchRelease: 0.7,

		MinBPM:       60,
		MaxBPM:       300,
		RefractoryMs: 200,

		OnsetThreshK:                 1.8,
		AdaptiveThresholdSensitivity: 1.5,

		BPMAlphaAttack:  0.15,
		BPMAlphaRelease: 0.05,

		PLLKp:                 0.1,
		PLLKi:                 0.01,
		PLLMaxPhaseCorrection: 0.1,
		PLLMaxTempoCorrection: 5,
		PLLMaxIntegral:        2.0,

		DensityDecay:              0.995,
		KernelWidth:               2,
		OctaveVariantWeight:       0.5,
		OctaveVotingConfThreshold: 0.3,

		LockThreshold:          0.5,
		LowConfThreshold:       0.15,
		LowConfResetTimeSec:    8,
		DensitySoftResetFactor: 0.3,

		IntervalMismatchThreshold: 10,
		IntervalMismatchCount:     5,

		StyleAlpha:                0.1,
		StyleHysteresis:           0.15,
		MinHopsForClassification: 120,
		AnalysisWindowHops:       600,
	}
}

// Manager loads and saves an EngineConfig from a config directory,
// creating a default file on first run. The IPC server's GET_CONFIG
// handler and the audio task's own startup both reach Get concurrently,
// so access to the held config is guarded by a mutex rather than left
// to the caller.
type Manager struct {
	configPath string
	dirErr     error

	mu     sync.RWMutex
	config *EngineConfig
}

// NewManager creates a configuration manager rooted at configDir,
// ensuring the directory exists up front. Any failure to create it is
// remembered and surfaced the first time Load or Save is called,
// rather than re-attempted on every call.
func NewManager(configDir string) *Manager {
	return &Manager{
		configPath: filepath.Join(configDir, "engine.json"),
		dirErr:     os.MkdirAll(configDir, 0700),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk, writing out defaults if no
// file exists yet.
func (m *Manager) Load() error {
	if m.dirErr != nil {
		return fmt.Errorf("failed to create config directory: %w", m.dirErr)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	if m.dirErr != nil {
		return fmt.Errorf("failed to create config directory: %w", m.dirErr)
	}

	m.mu.RLock()
	data, err := json.MarshalIndent(m.config, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *EngineConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPath returns the config file path.
func (m *Manager) GetPath() string {
	return m.configPath
}

// Update replaces the configuration and persists it.
func (m *Manager) Update(cfg *EngineConfig) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}
