package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
)

// GetSettings returns the single branding row. A missing row yields a zero
// value; defaults are applied by the settings package.
func (s *Store) GetSettings(ctx context.Context) (models.AppSettings, error) {
	var logoURL, courtLogoURL, lbhName, courtName, posbakumName sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT logo_url, court_logo_url, lbh_name, court_name, posbakum_name
		FROM app_settings
		LIMIT 1
	`)
	if err := row.Scan(&logoURL, &courtLogoURL, &lbhName, &courtName, &posbakumName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AppSettings{}, nil
		}
		return models.AppSettings{}, err
	}
	return models.AppSettings{
		LogoURL:      logoURL.String,
		CourtLogoURL: courtLogoURL.String,
		LBHName:      lbhName.String,
		CourtName:    courtName.String,
		PosbakumName: posbakumName.String,
	}, nil
}
