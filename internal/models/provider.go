// internal/models/provider.go
package models

import "time"

// ServiceType identifies a trade a provider can be dispatched for.
type ServiceType string

const (
	ServicePlumbing        ServiceType = "plumbing"
	ServiceElectrical      ServiceType = "electrical"
	ServiceApplianceRepair ServiceType = "appliance_repair"
)

// Provider is a field provider that can be notified about service requests.
// Services is ordered: the first entry is the provider's primary offering.
type Provider struct {
	ID            string        `json:"id"`
	DisplayName   string        `json:"displayName"`
	ChannelID     string        `json:"channelId"`
	Phone         string        `json:"phone"`
	Services      []ServiceType `json:"services"`
	CoverageAreas []string      `json:"coverageAreas"`
	IsAvailable   bool          `json:"isAvailable"`
	IsActive      bool          `json:"isActive"`
	Rating        float64       `json:"rating"`
	RatingCount   int           `json:"ratingCount"`
	TotalJobs     int           `json:"totalJobs"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Offers reports whether the provider lists the given service.
func (p Provider) Offers(st ServiceType) bool {
	for _, s := range p.Services {
		if s == st {
			return true
		}
	}
	return false
}

// IsPrimary reports whether st is the provider's sole or first-listed service.
func (p Provider) IsPrimary(st ServiceType) bool {
	return len(p.Services) > 0 && p.Services[0] == st
}

// ApplyRating folds a new 0-5 score into the running average.
func (p *Provider) ApplyRating(score float64) {
	if score < 0 {
		score = 0
	}
	if score > 5 {
		score = 5
	}
	p.Rating = (p.Rating*float64(p.RatingCount) + score) / float64(p.RatingCount+1)
	p.RatingCount++
}
