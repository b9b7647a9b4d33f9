// Package directory answers eligibility queries over the provider pool.
package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/models"
	"service-dispatch/internal/store"
)

// Candidate is an eligible provider with its zone grade for the request location.
type Candidate struct {
	Provider models.Provider
	Zone     ZoneMatch
}

type Directory struct {
	providers  store.ProviderStore
	zones      *ZoneMatcher
	retryDelay time.Duration
	logger     logger.Logger
}

func New(providers store.ProviderStore, zones *ZoneMatcher, log logger.Logger) *Directory {
	return &Directory{
		providers:  providers,
		zones:      zones,
		retryDelay: 200 * time.Millisecond,
		logger:     log.WithFields(map[string]interface{}{"component": "directory"}),
	}
}

// WithRetryDelay overrides the pause before the single retry.
func (d *Directory) WithRetryDelay(delay time.Duration) *Directory {
	d.retryDelay = delay
	return d
}

// FindCandidates returns active, available providers offering serviceType whose
// coverage matches location, exact zone matches first. No match is an empty slice.
// A store failure is retried once, then reported as ErrDirectoryUnavailable.
func (d *Directory) FindCandidates(ctx context.Context, serviceType models.ServiceType, location string) ([]Candidate, error) {
	providers, err := d.providers.ListEligible(ctx, serviceType)
	if err != nil {
		d.logger.Warn("provider query failed, retrying once", map[string]interface{}{
			"serviceType": serviceType,
			"error":       err,
		})
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", apperrors.ErrDirectoryUnavailable, ctx.Err())
		case <-time.After(d.retryDelay):
		}
		providers, err = d.providers.ListEligible(ctx, serviceType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrDirectoryUnavailable, err)
		}
	}

	out := make([]Candidate, 0, len(providers))
	for _, p := range providers {
		// the store filters already; re-check so a lax backend cannot leak
		if !p.IsActive || !p.IsAvailable || !p.Offers(serviceType) {
			continue
		}
		zone := d.zones.Match(location, p.CoverageAreas)
		if zone == ZoneNone {
			continue
		}
		out = append(out, Candidate{Provider: p, Zone: zone})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Zone != out[j].Zone {
			return out[i].Zone > out[j].Zone
		}
		return out[i].Provider.ID < out[j].Provider.ID
	})

	d.logger.Debug("candidates found", map[string]interface{}{
		"serviceType": serviceType,
		"location":    location,
		"count":       len(out),
	})
	return out, nil
}

// Register onboards a provider, active and available by default.
func (d *Directory) Register(ctx context.Context, p *models.Provider) error {
	if err := validateProvider(p); err != nil {
		return err
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.IsActive = true
	return d.providers.SaveProvider(ctx, p)
}

func (d *Directory) SetAvailability(ctx context.Context, providerID string, available bool) error {
	return d.providers.SetAvailability(ctx, providerID, available)
}

// Deactivate removes the provider from future queries; history is kept.
func (d *Directory) Deactivate(ctx context.Context, providerID string) error {
	return d.providers.Deactivate(ctx, providerID)
}

func (d *Directory) Get(ctx context.Context, providerID string) (*models.Provider, error) {
	return d.providers.GetProvider(ctx, providerID)
}

func (d *Directory) GetByChannel(ctx context.Context, channelID string) (*models.Provider, error) {
	return d.providers.GetProviderByChannel(ctx, channelID)
}

func validateProvider(p *models.Provider) error {
	var problems []string
	if p.ID == "" {
		problems = append(problems, "id is required")
	}
	if p.ChannelID == "" {
		problems = append(problems, "channelId is required")
	}
	if len(p.Services) == 0 {
		problems = append(problems, "at least one service is required")
	}
	if len(p.CoverageAreas) == 0 {
		problems = append(problems, "at least one coverage area is required")
	}
	if p.Rating < 0 || p.Rating > 5 {
		problems = append(problems, "rating must be within [0,5]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: provider %s: %s", apperrors.ErrInvalidRequest, p.ID, strings.Join(problems, "; "))
	}
	return nil
}
