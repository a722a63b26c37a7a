package assist

import (
	"fmt"
	"strings"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
	"github.com/MickaelSuard/ComiaV2/internal/core/ports"
)

// Backends bundles the four processing backends the services consume.
type Backends struct {
	Chat          ports.ChatBackend
	Transcription ports.TranscriptionBackend
	Search        ports.SearchBackend
	Summary       ports.SummaryBackend
}

// Build creates the backends from app configuration. It hides the
// simulated/remote selection from callers: the assist family drives chat,
// search and summarization; the speech family drives transcription.
func Build(config *domain.AppConfig) (Backends, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}

	assist, err := build(config.Backends.Assist)
	if err != nil {
		return Backends{}, fmt.Errorf("assist backend: %w", err)
	}
	speech, err := build(config.Backends.Speech)
	if err != nil {
		return Backends{}, fmt.Errorf("speech backend: %w", err)
	}

	return Backends{
		Chat:          assist,
		Transcription: speech,
		Search:        assist,
		Summary:       assist,
	}, nil
}

// family is the intersection of all backend ports; both implementations
// satisfy it.
type family interface {
	ports.ChatBackend
	ports.TranscriptionBackend
	ports.SearchBackend
	ports.SummaryBackend
}

func build(settings domain.BackendSettings) (family, error) {
	mode := domain.BackendMode(strings.ToLower(strings.TrimSpace(string(settings.Mode))))
	switch mode {
	case "", domain.BackendModeSimulated:
		return NewSimulatedBackend(), nil
	case domain.BackendModeRemote:
		if strings.TrimSpace(settings.RemoteURL) == "" {
			return nil, fmt.Errorf("remote_url is required when mode=remote")
		}
		return NewRemoteBackend(
			strings.TrimSpace(settings.RemoteURL),
			strings.TrimSpace(settings.APIKey),
			strings.TrimSpace(settings.DefaultModel),
		), nil
	default:
		return nil, fmt.Errorf("unsupported backend mode: %s", settings.Mode)
	}
}
