package response

import (
	"service-dispatch/internal/common/textnorm"
	"service-dispatch/internal/models"
)

// Classifier maps a provider's free-text reply to a decision.
type Classifier interface {
	Classify(text string) models.ReplyDecision
}

var (
	DefaultAcceptPhrases = []string{"oui", "yes", "ok", "okay", "d'accord", "accepte", "accepté", "j'accepte"}
	DefaultRejectPhrases = []string{"non", "no", "refuse", "refusé", "pas disponible", "indisponible"}
)

// KeywordClassifier matches whole-word phrases after case and accent folding.
// Reject phrases win when both kinds appear, so "ok mais pas disponible" is a reject.
type KeywordClassifier struct {
	accept []string
	reject []string
}

func NewKeywordClassifier() *KeywordClassifier {
	return NewKeywordClassifierWith(DefaultAcceptPhrases, DefaultRejectPhrases)
}

func NewKeywordClassifierWith(accept, reject []string) *KeywordClassifier {
	return &KeywordClassifier{
		accept: fold(accept),
		reject: fold(reject),
	}
}

func (k *KeywordClassifier) Classify(text string) models.ReplyDecision {
	words := textnorm.Words(text)
	for _, p := range k.reject {
		if textnorm.ContainsPhrase(words, p) {
			return models.DecisionReject
		}
	}
	for _, p := range k.accept {
		if textnorm.ContainsPhrase(words, p) {
			return models.DecisionAccept
		}
	}
	return models.DecisionUnknown
}

func fold(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if f := textnorm.Fold(p); f != "" {
			out = append(out, f)
		}
	}
	return out
}
