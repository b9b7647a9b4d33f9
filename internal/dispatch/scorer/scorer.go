// Package scorer ranks eligible providers for a service request.
package scorer

import (
	"math"
	"sort"
	"time"

	"service-dispatch/internal/common/config"
	"service-dispatch/internal/dispatch/directory"
	"service-dispatch/internal/models"
)

const (
	// NeutralResponseScore is used when no provider in the population has history.
	NeutralResponseScore = 0.5

	// PrimarySpecialization and SecondarySpecialization score the requested
	// service's position in the provider's offering.
	PrimarySpecialization   = 1.0
	SecondarySpecialization = 0.6

	// totals are compared on this grid so float noise cannot break ties
	totalResolution = 1e9
)

type Weights struct {
	Rating         float64
	Proximity      float64
	ResponseTime   float64
	Specialization float64
	Availability   float64
}

func DefaultWeights() Weights {
	return Weights{Rating: 0.4, Proximity: 0.3, ResponseTime: 0.2, Specialization: 0.1, Availability: 0.0}
}

// WeightsFromConfig maps the dispatch.weights section, falling back to the
// defaults when it is empty.
func WeightsFromConfig(w config.ScoreWeights) Weights {
	if w.IsZero() {
		return DefaultWeights()
	}
	return Weights{
		Rating:         w.Rating,
		Proximity:      w.Proximity,
		ResponseTime:   w.ResponseTime,
		Specialization: w.Specialization,
		Availability:   w.Availability,
	}
}

// ResponseTimeIndex holds response-time scores for one dispatch population.
type ResponseTimeIndex struct {
	scores   map[string]float64
	fallback float64
}

// NewResponseTimeIndex converts average acceptance latencies into scores in [0,1]
// against ceiling. Providers missing from latencies get the population median, or
// NeutralResponseScore when nobody has history.
func NewResponseTimeIndex(latencies map[string]time.Duration, ceiling time.Duration) *ResponseTimeIndex {
	idx := &ResponseTimeIndex{scores: make(map[string]float64, len(latencies)), fallback: NeutralResponseScore}
	if ceiling <= 0 {
		return idx
	}

	values := make([]float64, 0, len(latencies))
	for id, avg := range latencies {
		s := clamp01(1 - float64(avg)/float64(ceiling))
		idx.scores[id] = s
		values = append(values, s)
	}
	if len(values) > 0 {
		idx.fallback = median(values)
	}
	return idx
}

// Score returns the provider's response-time score.
func (i *ResponseTimeIndex) Score(providerID string) float64 {
	if i == nil {
		return NeutralResponseScore
	}
	if s, ok := i.scores[providerID]; ok {
		return s
	}
	return i.fallback
}

func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

type Scorer struct {
	weights Weights
}

func New(w Weights) *Scorer {
	return &Scorer{weights: w}
}

func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score builds the component breakdown for one candidate.
func (s *Scorer) Score(c directory.Candidate, req models.ServiceRequest, idx *ResponseTimeIndex) models.MatchCandidate {
	p := c.Provider

	spec := SecondarySpecialization
	if p.IsPrimary(req.ServiceType) {
		spec = PrimarySpecialization
	}

	availability := 0.0
	if p.IsAvailable && p.IsActive {
		availability = 1.0
	}

	mc := models.MatchCandidate{
		Provider:       p,
		Proximity:      c.Zone.Proximity(),
		Rating:         clamp01(p.Rating / 5),
		ResponseTime:   idx.Score(p.ID),
		Specialization: spec,
		Availability:   availability,
	}
	mc.Total = s.weights.Rating*mc.Rating +
		s.weights.Proximity*mc.Proximity +
		s.weights.ResponseTime*mc.ResponseTime +
		s.weights.Specialization*mc.Specialization +
		s.weights.Availability*mc.Availability
	return mc
}

// Rank scores every candidate and orders them by total desc, totalJobs asc, id asc.
func (s *Scorer) Rank(candidates []directory.Candidate, req models.ServiceRequest, idx *ResponseTimeIndex) []models.MatchCandidate {
	out := make([]models.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, s.Score(c, req, idx))
	}
	Sort(out)
	return out
}

// Sort applies the deterministic ranking order in place.
func Sort(ranked []models.MatchCandidate) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		ta, tb := math.Round(a.Total*totalResolution), math.Round(b.Total*totalResolution)
		if ta != tb {
			return ta > tb
		}
		if a.Provider.TotalJobs != b.Provider.TotalJobs {
			return a.Provider.TotalJobs < b.Provider.TotalJobs
		}
		return a.Provider.ID < b.Provider.ID
	})
}

// Top returns at most n leading candidates.
func Top(ranked []models.MatchCandidate, n int) []models.MatchCandidate {
	if n < 0 {
		n = 0
	}
	if len(ranked) < n {
		n = len(ranked)
	}
	return ranked[:n]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
