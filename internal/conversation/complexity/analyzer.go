// Package complexity decides when a conversation should be handed to a human
// agent. It reads conversation state only and never touches request dispatch
// state.
package complexity

import (
	"math"
	"strings"
	"unicode"

	"service-dispatch/internal/common/config"
	"service-dispatch/internal/common/textnorm"
	"service-dispatch/internal/models"
)

// Triggers recorded on an assessment that escalates.
const (
	TriggerHumanRequest = "human_request"
	TriggerScore        = "score"
)

type Weights struct {
	Frustration float64
	Technical   float64
	Turns       float64
	Urgency     float64
}

func DefaultWeights() Weights {
	return Weights{Frustration: 0.35, Technical: 0.25, Turns: 0.20, Urgency: 0.20}
}

type Config struct {
	Threshold float64
	MaxTurns  int
	Weights   Weights
}

func DefaultConfig() Config {
	return Config{Threshold: 0.6, MaxTurns: 10, Weights: DefaultWeights()}
}

// ConfigFromEscalation maps the escalation section of the application config.
func ConfigFromEscalation(e config.EscalationConfig) Config {
	cfg := Config{
		Threshold: e.Threshold,
		MaxTurns:  e.MaxTurns,
		Weights: Weights{
			Frustration: e.Weights.Frustration,
			Technical:   e.Weights.Technical,
			Turns:       e.Weights.Turns,
			Urgency:     e.Weights.Urgency,
		},
	}
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = def.MaxTurns
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	return cfg
}

// Assessment is the scored view of a conversation. Sub-scores are in [0,1].
type Assessment struct {
	ConversationID string  `json:"conversationId"`
	Frustration    float64 `json:"frustration"`
	Technical      float64 `json:"technical"`
	Turns          float64 `json:"turns"`
	Urgency        float64 `json:"urgency"`
	Score          float64 `json:"score"`
	HumanRequested bool    `json:"humanRequested"`
	Escalate       bool    `json:"escalate"`
	Trigger        string  `json:"trigger,omitempty"`
}

var (
	frustrationMarkers = []string{
		"nul", "inacceptable", "ras le bol", "marre", "toujours pas", "enerve", "frustre",
		"pas content", "pas normal", "scandale", "honte", "arnaque", "ca ne marche pas",
		"rien ne marche", "vous ne comprenez pas", "n importe quoi", "useless", "ridiculous",
	}

	technicalTerms = []string{
		"disjoncteur", "court circuit", "tableau electrique", "differentiel", "compteur",
		"tension", "volt", "volts", "ampere", "amperes", "phase", "neutre", "prise de terre",
		"canalisation", "siphon", "vanne", "pression", "chauffe eau", "ballon", "compresseur",
		"thermostat", "resistance", "joint", "raccord", "evacuation", "colonne", "fusible",
		"cablage", "surpresseur", "clapet",
	}

	urgencyMarkers = []string{
		"urgent", "urgence", "vite", "immediatement", "tout de suite", "danger", "dangereux",
		"inondation", "inonde", "fumee", "etincelles", "odeur de gaz", "fuite de gaz", "asap",
		"emergency",
	}

	humanRequestMarkers = []string{
		"humain", "un conseiller", "une conseillere", "un agent", "vraie personne",
		"une personne", "operateur", "service client", "human", "real person",
	}
)

type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze scores the user side of the conversation. An explicit request for a
// human escalates whatever the score.
func (a *Analyzer) Analyze(conv models.Conversation) Assessment {
	var (
		frustrationHits int
		urgencyHits     int
		technicalHits   int
		wordCount       int
		human           bool
	)

	for _, m := range conv.Messages {
		if m.Role != models.RoleUser {
			continue
		}
		words := textnorm.Words(m.Text)
		wordCount += len(strings.Fields(words))

		frustrationHits += countPhrases(words, frustrationMarkers)
		if shouting(m.Text) {
			frustrationHits++
		}
		urgencyHits += countPhrases(words, urgencyMarkers)
		technicalHits += countPhrases(words, technicalTerms)
		if countPhrases(words, humanRequestMarkers) > 0 {
			human = true
		}
	}

	as := Assessment{
		ConversationID: conv.ID,
		Frustration:    ratio(float64(frustrationHits), 3),
		Urgency:        ratio(float64(urgencyHits), 2),
		Turns:          ratio(float64(conv.UserTurns()), float64(a.cfg.MaxTurns)),
		HumanRequested: human,
	}
	if wordCount > 0 {
		// one technical term in ten words saturates the score
		as.Technical = ratio(float64(technicalHits)*10, float64(wordCount))
	}

	w := a.cfg.Weights
	as.Score = round(math.Min(1, w.Frustration*as.Frustration+w.Technical*as.Technical+w.Turns*as.Turns+w.Urgency*as.Urgency))

	switch {
	case human:
		as.Escalate, as.Trigger = true, TriggerHumanRequest
	case as.Score >= a.cfg.Threshold:
		as.Escalate, as.Trigger = true, TriggerScore
	}
	return as
}

func countPhrases(words string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if textnorm.ContainsPhrase(words, p) {
			n++
		}
	}
	return n
}

// shouting reports repeated exclamation marks or a message written in capitals.
func shouting(text string) bool {
	if strings.Contains(text, "!!") {
		return true
	}
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 8 && upper*10 >= letters*8
}

func ratio(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Min(1, v/limit)
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
