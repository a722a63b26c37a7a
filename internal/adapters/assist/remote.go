package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

// RemoteBackend delegates processing to an OpenAI-compatible inference
// service. Works with: OpenAI, Azure OpenAI, Together AI, local Ollama /v1,
// etc.
type RemoteBackend struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewRemoteBackend creates a backend against the given base URL.
func NewRemoteBackend(baseURL, apiKey, model string) *RemoteBackend {
	if model == "" {
		model = "gpt-4"
	}
	return &RemoteBackend{
		client:  &http.Client{Timeout: 120 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// complete calls the chat completions endpoint with the given messages.
func (b *RemoteBackend) complete(ctx context.Context, messages []chatMessage) (string, error) {
	payload := map[string]any{
		"model":    b.model,
		"messages": messages,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

func (b *RemoteBackend) Complete(ctx context.Context, history []domain.Message, prompt domain.Prompt) (domain.Reply, error) {
	messages := make([]chatMessage, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt.Text})

	text, err := b.complete(ctx, messages)
	if err != nil {
		return domain.Reply{}, err
	}
	return domain.Reply{Text: text}, nil
}

func (b *RemoteBackend) Transcribe(ctx context.Context, upload domain.MediaUpload) (domain.Transcript, error) {
	prompt := fmt.Sprintf("Transcris le fichier média %s (%s, %d octets) et fournis un résumé en markdown.",
		upload.Filename, upload.MIMEType, upload.SizeBytes)
	text, err := b.complete(ctx, []chatMessage{
		{Role: "system", Content: "Tu es un service de transcription audio et vidéo."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return domain.Transcript{}, err
	}
	return domain.Transcript{
		Text:      text,
		Summary:   text,
		WordCount: len(strings.Fields(text)),
	}, nil
}

func (b *RemoteBackend) Index(ctx context.Context, serviceID domain.ServiceID, upload domain.DocumentUpload) (domain.IndexedDocument, error) {
	prompt := fmt.Sprintf("Prépare le document %s pour l'indexation du service %s et renvoie son contenu textuel.",
		upload.Filename, serviceID)
	text, err := b.complete(ctx, []chatMessage{
		{Role: "system", Content: "Tu es un service d'indexation documentaire."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return domain.IndexedDocument{}, err
	}
	return domain.IndexedDocument{Content: text, Chunks: 1 + len(text)/1000}, nil
}

func (b *RemoteBackend) Search(ctx context.Context, query domain.Query) ([]domain.SearchHit, error) {
	text, err := b.complete(ctx, []chatMessage{
		{Role: "system", Content: "Tu es un moteur de recherche documentaire. Réponds de façon concise."},
		{Role: "user", Content: query.Text},
	})
	if err != nil {
		return nil, err
	}
	return []domain.SearchHit{{
		Title:     query.Text,
		Content:   text,
		Source:    b.model,
		Relevance: 1,
	}}, nil
}

func (b *RemoteBackend) Analyze(ctx context.Context, upload domain.DocumentUpload) (domain.DocAnalysis, error) {
	prompt := fmt.Sprintf("Résume le document %s (%s).", upload.Filename, upload.MIMEType)
	text, err := b.complete(ctx, []chatMessage{
		{Role: "system", Content: "Tu es un service de synthèse documentaire."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return domain.DocAnalysis{}, err
	}
	return domain.DocAnalysis{Summary: text, WordCount: len(strings.Fields(text))}, nil
}

func (b *RemoteBackend) Answer(ctx context.Context, question domain.Question) (domain.Answer, error) {
	text, err := b.complete(ctx, []chatMessage{
		{Role: "system", Content: "Tu réponds aux questions sur un document analysé."},
		{Role: "user", Content: question.Text},
	})
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{Text: text}, nil
}
