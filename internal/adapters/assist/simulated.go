// Package assist provides the processing backends behind the assistant
// modules: a fully local simulated backend and a remote one speaking the
// OpenAI-compatible chat completions API.
package assist

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/MickaelSuard/ComiaV2/internal/core/domain"
)

var chatReplies = []string{
	"Excellente question ! Voici une analyse détaillée de votre demande...",
	"Je comprends votre besoin. Permettez-moi de vous expliquer les différentes approches possibles...",
	"C'est un sujet fascinant ! Voici ce que je peux vous dire à ce sujet...",
	"Parfait ! Je vais vous guider étape par étape pour résoudre ce problème...",
}

// SimulatedBackend produces synthetic results after a randomized delay, so
// the whole application works offline. It implements every backend port.
type SimulatedBackend struct {
	mu       sync.Mutex
	rng      *rand.Rand
	minDelay time.Duration
	maxDelay time.Duration
}

// NewSimulatedBackend uses the production delay window of 1.5 to 5 seconds.
func NewSimulatedBackend() *SimulatedBackend {
	return newSimulated(1500*time.Millisecond, 5*time.Second)
}

// NewInstantBackend skips the processing delay. Intended for tests.
func NewInstantBackend() *SimulatedBackend {
	return newSimulated(0, 0)
}

func newSimulated(min, max time.Duration) *SimulatedBackend {
	return &SimulatedBackend{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		minDelay: min,
		maxDelay: max,
	}
}

// sleep waits the randomized processing delay, honoring cancellation.
func (b *SimulatedBackend) sleep(ctx context.Context) error {
	if b.maxDelay <= 0 {
		return ctx.Err()
	}
	b.mu.Lock()
	delay := b.minDelay + time.Duration(b.rng.Int63n(int64(b.maxDelay-b.minDelay)+1))
	b.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *SimulatedBackend) intn(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Intn(n)
}

func (b *SimulatedBackend) Complete(ctx context.Context, history []domain.Message, prompt domain.Prompt) (domain.Reply, error) {
	if err := b.sleep(ctx); err != nil {
		return domain.Reply{}, err
	}
	reply := chatReplies[b.intn(len(chatReplies))] +
		" Dans une implémentation réelle, cette réponse serait générée par votre modèle IA backend."
	return domain.Reply{Text: reply}, nil
}

func (b *SimulatedBackend) Transcribe(ctx context.Context, upload domain.MediaUpload) (domain.Transcript, error) {
	if err := b.sleep(ctx); err != nil {
		return domain.Transcript{}, err
	}

	text := fmt.Sprintf("Transcription automatique pour %s.\n\n"+
		"Ceci est un exemple de transcription générée par votre service IA. "+
		"Le texte serait ici converti à partir du contenu audio ou vidéo du fichier.\n\n"+
		"Dans une implémentation réelle, cette transcription contiendrait le contenu exact "+
		"de votre fichier média, avec une précision élevée et une ponctuation appropriée.\n\n"+
		"Le système peut également identifier différents locuteurs, ajouter des timestamps, "+
		"et formater le texte de manière lisible.", upload.Filename)

	kind := "Audio"
	if strings.HasPrefix(upload.MIMEType, "video/") {
		kind = "Vidéo"
	}
	minutes := b.intn(10) + 1
	seconds := b.intn(60)
	words := b.intn(2000) + 500
	confidence := 0.7 + 0.3*float64(b.intn(100))/100

	summary := fmt.Sprintf(`## Résumé de la Transcription - %s

### Informations Générales
- **Fichier source** : %s
- **Durée** : %d:%02d
- **Type** : %s
- **Date de traitement** : %s

### Points Clés
1. **Contenu principal** - Analyse du sujet traité
2. **Éléments importants** - Points saillants identifiés
3. **Conclusions** - Résumé des décisions ou actions

### Métriques
- **Mots transcrits** : ~%d mots
- **Confiance moyenne** : %d%%
`,
		upload.Filename, upload.Filename, minutes, seconds, kind,
		time.Now().Format("02/01/2006"), words, int(confidence*100))

	return domain.Transcript{
		Text:            text,
		Summary:         summary,
		DurationSeconds: minutes*60 + seconds,
		WordCount:       words,
		Confidence:      confidence,
	}, nil
}

func (b *SimulatedBackend) Index(ctx context.Context, serviceID domain.ServiceID, upload domain.DocumentUpload) (domain.IndexedDocument, error) {
	if err := b.sleep(ctx); err != nil {
		return domain.IndexedDocument{}, err
	}
	content := fmt.Sprintf("Contenu indexé de %s. Le document a été découpé et vectorisé "+
		"pour la recherche sémantique.", upload.Filename)
	return domain.IndexedDocument{
		Content: content,
		Chunks:  b.intn(40) + 5,
	}, nil
}

func (b *SimulatedBackend) Search(ctx context.Context, query domain.Query) ([]domain.SearchHit, error) {
	if err := b.sleep(ctx); err != nil {
		return nil, err
	}
	return []domain.SearchHit{
		{
			Title:     "Configuration du serveur de production",
			Content:   "Pour configurer le serveur de production, suivez ces étapes essentielles. Assurez-vous d'avoir les bonnes permissions et les certificats SSL à jour...",
			Source:    "Documentation Technique",
			Relevance: 0.95,
		},
		{
			Title:     "Spécifications du produit XYZ-2024",
			Content:   "Le produit XYZ-2024 présente des caractéristiques techniques avancées avec une performance optimisée pour les environnements cloud...",
			Source:    "Base Produits",
			Relevance: 0.87,
		},
		{
			Title:     "Recherche : " + query.Text,
			Content:   fmt.Sprintf("Résultats correspondant à « %s » dans les services sélectionnés.", query.Text),
			Source:    "Recherche Globale",
			Relevance: 0.75,
		},
	}, nil
}

func (b *SimulatedBackend) Analyze(ctx context.Context, upload domain.DocumentUpload) (domain.DocAnalysis, error) {
	if err := b.sleep(ctx); err != nil {
		return domain.DocAnalysis{}, err
	}
	pages := b.intn(50) + 10
	summary := fmt.Sprintf("Résumé automatique de %s : ce document présente les points "+
		"essentiels du sujet traité, structurés en sections claires. "+
		"Les conclusions principales sont mises en avant pour une lecture rapide.",
		upload.Filename)
	return domain.DocAnalysis{
		Summary:   summary,
		Pages:     pages,
		WordCount: b.intn(5000) + 2000,
	}, nil
}

func (b *SimulatedBackend) Answer(ctx context.Context, question domain.Question) (domain.Answer, error) {
	if err := b.sleep(ctx); err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{
		Text: fmt.Sprintf("D'après le document, voici la réponse à « %s » : "+
			"les éléments pertinents se trouvent dans la section correspondante du document analysé.",
			question.Text),
		PageRef: b.intn(10) + 1,
	}, nil
}
