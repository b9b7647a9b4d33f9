package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/models"

	"github.com/lib/pq"
)

const providerColumns = `id, display_name, channel_id, phone, services, coverage_areas, is_available,
	is_active, rating, rating_count, total_jobs, created_at, updated_at`

func (s *Store) SaveProvider(ctx context.Context, p *models.Provider) error {
	services := make([]string, len(p.Services))
	for i, st := range p.Services {
		services[i] = string(st)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO providers (`+providerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name, channel_id = EXCLUDED.channel_id, phone = EXCLUDED.phone,
			services = EXCLUDED.services, coverage_areas = EXCLUDED.coverage_areas,
			is_available = EXCLUDED.is_available, is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.DisplayName, p.ChannelID, p.Phone, pq.Array(services), pq.Array(p.CoverageAreas),
		p.IsAvailable, p.IsActive, p.Rating, p.RatingCount, p.TotalJobs, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("save_provider", err)
	}
	return nil
}

func (s *Store) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	return s.getProviderBy(ctx, "id", id)
}

func (s *Store) GetProviderByChannel(ctx context.Context, channelID string) (*models.Provider, error) {
	return s.getProviderBy(ctx, "channel_id", channelID)
}

func (s *Store) getProviderBy(ctx context.Context, column, value string) (*models.Provider, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE `+column+` = $1`, value)

	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", apperrors.ErrProviderNotFound, column, value)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_provider", err)
	}
	return p, nil
}

func (s *Store) ListEligible(ctx context.Context, serviceType models.ServiceType) ([]models.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+providerColumns+` FROM providers
		WHERE is_active AND is_available AND $1 = ANY(services)
		ORDER BY id`, string(serviceType))
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_eligible", err)
	}
	defer rows.Close()

	out := make([]models.Provider, 0)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("list_eligible", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_eligible", err)
	}
	return out, nil
}

func (s *Store) SetAvailability(ctx context.Context, id string, available bool) error {
	return s.execProvider(ctx, "set_availability", id,
		`UPDATE providers SET is_available = $2, updated_at = NOW() WHERE id = $1`, available)
}

func (s *Store) Deactivate(ctx context.Context, id string) error {
	return s.execProvider(ctx, "deactivate", id,
		`UPDATE providers SET is_active = FALSE, updated_at = NOW() WHERE id = $1`)
}

func (s *Store) IncrementJobs(ctx context.Context, id string) error {
	return s.execProvider(ctx, "increment_jobs", id,
		`UPDATE providers SET total_jobs = total_jobs + 1, updated_at = NOW() WHERE id = $1`)
}

// ApplyRating folds the score into the running average in a single statement.
func (s *Store) ApplyRating(ctx context.Context, id string, score float64) error {
	if score < 0 {
		score = 0
	}
	if score > 5 {
		score = 5
	}
	return s.execProvider(ctx, "apply_rating", id, `
		UPDATE providers
		SET rating = (rating * rating_count + $2) / (rating_count + 1),
		    rating_count = rating_count + 1, updated_at = NOW()
		WHERE id = $1`, score)
}

func (s *Store) execProvider(ctx context.Context, op, id, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewQueryExecutionFailedError(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrProviderNotFound, id)
	}
	return nil
}

func scanProvider(row scanner) (*models.Provider, error) {
	var (
		p        models.Provider
		services pq.StringArray
		coverage pq.StringArray
	)
	err := row.Scan(&p.ID, &p.DisplayName, &p.ChannelID, &p.Phone, &services, &coverage, &p.IsAvailable,
		&p.IsActive, &p.Rating, &p.RatingCount, &p.TotalJobs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Services = make([]models.ServiceType, len(services))
	for i, st := range services {
		p.Services[i] = models.ServiceType(st)
	}
	p.CoverageAreas = []string(coverage)
	return &p, nil
}
