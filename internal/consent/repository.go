// Package consent is C3, the Consent Manager: per-(subject, type) consent
// state machine with grant/withdraw/expire transitions (spec.md §4.3).
//
// Repository grounded on
// services/user-service/internal/repository/user_repository.go's raw-pgx,
// transaction-scoped, upsert/dynamic-update idiom. Business rules grounded
// on original_source/compliance/gdpr/consent_manager.py.
package consent

import (
	"context"
	"fmt"
	"time"

	"gdprengine/internal/dbexec"
	"gdprengine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Repository interface {
	GetByEmailAndType(ctx context.Context, exec dbexec.Execer, email string, consentType models.ConsentType) (*models.Consent, error)
	ListByEmail(ctx context.Context, exec dbexec.Execer, email string) ([]models.Consent, error)
	Grant(ctx context.Context, exec dbexec.Execer, c *models.Consent) error
	MarkWithdrawn(ctx context.Context, exec dbexec.Execer, email string, consentType models.ConsentType, at time.Time) (bool, error)
	ListExpiredGranted(ctx context.Context, exec dbexec.Execer, now time.Time) ([]models.Consent, error)
	MarkExpired(ctx context.Context, exec dbexec.Execer, id string) error
	ExpiringWithin(ctx context.Context, exec dbexec.Execer, from, to time.Time) ([]models.Consent, error)
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

const consentColumns = `id, subject_email, type, status, granted_at, withdrawn_at, expires_at,
	ip_address, user_agent, consent_version, consent_text`

func scanConsent(row pgx.Row) (*models.Consent, error) {
	var c models.Consent
	var ip, ua, text *string
	err := row.Scan(
		&c.ID, &c.SubjectEmail, &c.Type, &c.Status, &c.GrantedAt, &c.WithdrawnAt, &c.ExpiresAt,
		&ip, &ua, &c.ConsentVersion, &text,
	)
	if err != nil {
		return nil, err
	}
	if ip != nil {
		c.IPAddress = *ip
	}
	if ua != nil {
		c.UserAgent = *ua
	}
	if text != nil {
		c.ConsentText = *text
	}
	return &c, nil
}

func (r *repository) GetByEmailAndType(ctx context.Context, exec dbexec.Execer, email string, consentType models.ConsentType) (*models.Consent, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_consents WHERE subject_email = $1 AND type = $2`, consentColumns)
	row := exec.QueryRow(ctx, query, email, consentType)
	c, err := scanConsent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return c, nil
}

func (r *repository) ListByEmail(ctx context.Context, exec dbexec.Execer, email string) ([]models.Consent, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_consents WHERE subject_email = $1`, consentColumns)
	rows, err := exec.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	var out []models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Grant upserts the (subject_email, type) row into GRANTED, per §4.3: if the
// row existed in any prior state, granted_at becomes now, withdrawn_at is
// cleared, and expires_at is overwritten.
func (r *repository) Grant(ctx context.Context, exec dbexec.Execer, c *models.Consent) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	query := `
		INSERT INTO gdpr_consents (
			id, subject_email, type, status, granted_at, withdrawn_at, expires_at,
			ip_address, user_agent, consent_version, consent_text
		) VALUES ($1, $2, $3, 'GRANTED', $4, NULL, $5, $6, $7, 1, $8)
		ON CONFLICT (subject_email, type) DO UPDATE SET
			status = 'GRANTED',
			granted_at = EXCLUDED.granted_at,
			withdrawn_at = NULL,
			expires_at = EXCLUDED.expires_at,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			consent_version = gdpr_consents.consent_version + 1,
			consent_text = EXCLUDED.consent_text
		RETURNING id, consent_version`

	return exec.QueryRow(ctx, query,
		c.ID, c.SubjectEmail, c.Type, c.GrantedAt, c.ExpiresAt,
		nullable(c.IPAddress), nullable(c.UserAgent), nullable(c.ConsentText),
	).Scan(&c.ID, &c.ConsentVersion)
}

// MarkWithdrawn implements the GRANTED -> WITHDRAWN transition. Returns
// false if no GRANTED row existed (NoActiveConsent, per §4.3).
func (r *repository) MarkWithdrawn(ctx context.Context, exec dbexec.Execer, email string, consentType models.ConsentType, at time.Time) (bool, error) {
	query := `
		UPDATE gdpr_consents
		SET status = 'WITHDRAWN', withdrawn_at = $3
		WHERE subject_email = $1 AND type = $2 AND status = 'GRANTED'`

	tag, err := exec.Exec(ctx, query, email, consentType, at)
	if err != nil {
		return false, fmt.Errorf("failed to withdraw consent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) ListExpiredGranted(ctx context.Context, exec dbexec.Execer, now time.Time) ([]models.Consent, error) {
	query := fmt.Sprintf(`SELECT %s FROM gdpr_consents WHERE status = 'GRANTED' AND expires_at IS NOT NULL AND expires_at < $1`, consentColumns)
	rows, err := exec.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired consents: %w", err)
	}
	defer rows.Close()

	var out []models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *repository) MarkExpired(ctx context.Context, exec dbexec.Execer, id string) error {
	_, err := exec.Exec(ctx, `UPDATE gdpr_consents SET status = 'EXPIRED' WHERE id = $1 AND status = 'GRANTED'`, id)
	if err != nil {
		return fmt.Errorf("failed to mark consent expired: %w", err)
	}
	return nil
}

// ExpiringWithin implements the pre-notice window of spec.md §4.9: every
// GRANTED consent with expires_at in (from, to].
func (r *repository) ExpiringWithin(ctx context.Context, exec dbexec.Execer, from, to time.Time) ([]models.Consent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM gdpr_consents
		WHERE status = 'GRANTED' AND expires_at IS NOT NULL AND expires_at > $1 AND expires_at <= $2`, consentColumns)
	rows, err := exec.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring consents: %w", err)
	}
	defer rows.Close()

	var out []models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
