package domain

// BackendMode selects where processing happens.
// "simulated" keeps everything in-process with synthetic content; "remote"
// calls an external inference service over HTTP.
type BackendMode string

const (
	BackendModeSimulated BackendMode = "simulated"
	BackendModeRemote    BackendMode = "remote"
)

// BackendSettings configures one backend family.
type BackendSettings struct {
	Mode         BackendMode `json:"mode"`
	RemoteURL    string      `json:"remote_url"`
	APIKey       string      `json:"api_key"`
	DefaultModel string      `json:"default_model"`
}

// BackendConfig groups the two backend families: Assist covers chat, search
// and summarization; Speech covers transcription.
type BackendConfig struct {
	Assist BackendSettings `json:"assist"`
	Speech BackendSettings `json:"speech"`
}

// AppConfig is the persisted, user-editable application configuration.
type AppConfig struct {
	Backends BackendConfig `json:"backends"`
}

// DefaultConfig returns the out-of-the-box configuration: both backend
// families simulated, no remote endpoints.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Backends: BackendConfig{
			Assist: BackendSettings{Mode: BackendModeSimulated},
			Speech: BackendSettings{Mode: BackendModeSimulated},
		},
	}
}
