package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

const (
	settingsNamespace = "settings"
	settingsKey       = "app_config"
)

// SettingsRepository is the minimal KV interface for settings persistence.
type SettingsRepository interface {
	Get(namespace, key string) ([]byte, error)
	Put(namespace, key string, value []byte) error
}

// OnChangeFunc is called when settings are updated.
type OnChangeFunc func(cfg *domain.AppConfig)

// SettingsStore manages persistent settings with encrypted secrets.
// Inspired by Gitea/Grafana settings architecture: categories stored as JSON,
// secrets encrypted at rest, masked on read.
type SettingsStore struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	secret   *SecretKey
	repo     SettingsRepository
	config   *domain.AppConfig
	onChange []OnChangeFunc
}

// NewSettingsStore creates a store that loads/saves settings from the KV
// store with AES-256-GCM encryption.
func NewSettingsStore(logger *slog.Logger, repo SettingsRepository, secret *SecretKey) (*SettingsStore, error) {
	store := &SettingsStore{
		logger: logger,
		secret: secret,
		repo:   repo,
	}

	cfg, err := store.load()
	if err != nil {
		logger.Warn("no saved settings found, using defaults", "error", err)
		cfg = domain.DefaultConfig()
		if err := store.save(cfg); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	store.config = cfg
	return store, nil
}

// OnChange registers a callback for when settings are updated.
// Used by the kernel to hot-reload backends.
func (s *SettingsStore) OnChange(fn OnChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// GetConfig returns the current config with decrypted secrets.
func (s *SettingsStore) GetConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.config
	return &cp
}

// GetMaskedConfig returns config safe for API response (secrets masked).
func (s *SettingsStore) GetMaskedConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.config
	cp.Backends.Assist.APIKey = MaskSecret(s.config.Backends.Assist.APIKey)
	cp.Backends.Speech.APIKey = MaskSecret(s.config.Backends.Speech.APIKey)
	return &cp
}

// UpdateConfig validates, encrypts secrets, persists, and triggers onChange
// callbacks. Smart merge: if an apiKey is empty or masked, keeps the
// existing key.
func (s *SettingsStore) UpdateConfig(update *domain.AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Merge: preserve existing secrets if update sends empty/masked values
	if update.Backends.Assist.APIKey == "" || isMasked(update.Backends.Assist.APIKey) {
		update.Backends.Assist.APIKey = s.config.Backends.Assist.APIKey
	}
	if update.Backends.Speech.APIKey == "" || isMasked(update.Backends.Speech.APIKey) {
		update.Backends.Speech.APIKey = s.config.Backends.Speech.APIKey
	}

	// Defaults
	if update.Backends.Assist.Mode == "" {
		update.Backends.Assist.Mode = domain.BackendModeSimulated
	}
	if update.Backends.Speech.Mode == "" {
		update.Backends.Speech.Mode = domain.BackendModeSimulated
	}

	// Validate required fields for remote mode
	if update.Backends.Assist.Mode == domain.BackendModeRemote && update.Backends.Assist.RemoteURL == "" {
		return fmt.Errorf("assist remote_url is required when mode=remote")
	}
	if update.Backends.Speech.Mode == domain.BackendModeRemote && update.Backends.Speech.RemoteURL == "" {
		return fmt.Errorf("speech remote_url is required when mode=remote")
	}

	if err := s.save(update); err != nil {
		return err
	}

	s.config = update
	s.logger.Info("settings updated",
		"assist_mode", update.Backends.Assist.Mode,
		"speech_mode", update.Backends.Speech.Mode,
	)

	for _, fn := range s.onChange {
		fn(update)
	}

	return nil
}

func (s *SettingsStore) load() (*domain.AppConfig, error) {
	raw, err := s.repo.Get(settingsNamespace, settingsKey)
	if err != nil {
		return nil, err
	}

	var stored storedConfig
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	cfg := &domain.AppConfig{
		Backends: domain.BackendConfig{
			Assist: stored.Assist.settings(),
			Speech: stored.Speech.settings(),
		},
	}

	// Decrypt secrets
	if stored.Assist.EncryptedAPIKey != "" {
		key, err := s.secret.Decrypt(stored.Assist.EncryptedAPIKey)
		if err != nil {
			s.logger.Warn("failed to decrypt assist API key", "error", err)
		} else {
			cfg.Backends.Assist.APIKey = key
		}
	}
	if stored.Speech.EncryptedAPIKey != "" {
		key, err := s.secret.Decrypt(stored.Speech.EncryptedAPIKey)
		if err != nil {
			s.logger.Warn("failed to decrypt speech API key", "error", err)
		} else {
			cfg.Backends.Speech.APIKey = key
		}
	}

	return cfg, nil
}

func (s *SettingsStore) save(cfg *domain.AppConfig) error {
	stored := storedConfig{
		Assist: storedBackendConfig{
			Mode:         string(cfg.Backends.Assist.Mode),
			RemoteURL:    cfg.Backends.Assist.RemoteURL,
			DefaultModel: cfg.Backends.Assist.DefaultModel,
		},
		Speech: storedBackendConfig{
			Mode:         string(cfg.Backends.Speech.Mode),
			RemoteURL:    cfg.Backends.Speech.RemoteURL,
			DefaultModel: cfg.Backends.Speech.DefaultModel,
		},
	}

	if cfg.Backends.Assist.APIKey != "" {
		enc, err := s.secret.Encrypt(cfg.Backends.Assist.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt assist API key: %w", err)
		}
		stored.Assist.EncryptedAPIKey = enc
	}
	if cfg.Backends.Speech.APIKey != "" {
		enc, err := s.secret.Encrypt(cfg.Backends.Speech.APIKey)
		if err != nil {
			return fmt.Errorf("encrypt speech API key: %w", err)
		}
		stored.Speech.EncryptedAPIKey = enc
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	return s.repo.Put(settingsNamespace, settingsKey, raw)
}

// storedConfig is the persisted representation with encrypted fields
type storedConfig struct {
	Assist storedBackendConfig `json:"assist"`
	Speech storedBackendConfig `json:"speech"`
}

type storedBackendConfig struct {
	Mode            string `json:"mode"`
	RemoteURL       string `json:"remote_url"`
	EncryptedAPIKey string `json:"encrypted_api_key,omitempty"`
	DefaultModel    string `json:"default_model"`
}

func (c storedBackendConfig) settings() domain.BackendSettings {
	return domain.BackendSettings{
		Mode:         domain.BackendMode(c.Mode),
		RemoteURL:    c.RemoteURL,
		DefaultModel: c.DefaultModel,
	}
}

func isMasked(s string) bool {
	return len(s) >= 4 && s[:4] == "****"
}
