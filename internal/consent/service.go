package consent

import (
	"context"
	"strings"
	"time"

	"gdprengine/internal/audit"
	"gdprengine/internal/cache"
	"gdprengine/internal/dberr"
	"gdprengine/internal/dbexec"
	"gdprengine/internal/events"
	"gdprengine/internal/logger"
	"gdprengine/internal/models"
)

// Manager is C3. Every public mutation runs inside its own transaction per
// spec.md §5; Check/Status read through a cache-aside layer over Redis.
type Manager struct {
	db                  dbexec.DB
	repo                Repository
	audit               *audit.Logger
	events              events.Publisher
	cache               cache.CacheInterface
	cacheTTL            time.Duration
	defaultExpiryDays   int
}

func NewManager(db dbexec.DB, repo Repository, auditLogger *audit.Logger, publisher events.Publisher, c cache.CacheInterface, cacheTTL time.Duration, defaultExpiryDays int) *Manager {
	return &Manager{
		db:                db,
		repo:              repo,
		audit:             auditLogger,
		events:            publisher,
		cache:             c,
		cacheTTL:          cacheTTL,
		defaultExpiryDays: defaultExpiryDays,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Grant implements §4.3's grant operation.
func (m *Manager) Grant(ctx context.Context, actor models.Actor, email string, consentType models.ConsentType, expiresInDays *int) (*models.Consent, error) {
	email = normalizeEmail(email)
	if !consentType.Valid() {
		return nil, dberr.InvalidArgument("unknown consent type: " + string(consentType))
	}

	days := m.defaultExpiryDays
	if expiresInDays != nil {
		days = *expiresInDays
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if days > 0 {
		t := now.AddDate(0, 0, days)
		expiresAt = &t
	}

	c := &models.Consent{
		SubjectEmail: email,
		Type:         consentType,
		GrantedAt:    now,
		ExpiresAt:    expiresAt,
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return nil, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := m.repo.Grant(ctx, tx, c); err != nil {
		return nil, dberr.Internal("failed to grant consent", err)
	}
	c.Status = models.ConsentStatusGranted
	c.WithdrawnAt = nil

	if err := m.audit.ConsentGranted(ctx, tx, actor, email, string(consentType), expiresAt); err != nil {
		return nil, dberr.Internal("failed to write audit entry", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dberr.Internal("failed to commit transaction", err)
	}

	m.invalidateStatusCache(ctx, email)
	_ = m.events.Publish(ctx, string(models.EventConsentGranted), email, c)

	logger.WithContext(ctx).WithField("subject_email", email).WithField("consent_type", consentType).Info("consent granted")
	return c, nil
}

// Withdraw implements §4.3's withdraw operation: only GRANTED -> WITHDRAWN.
func (m *Manager) Withdraw(ctx context.Context, actor models.Actor, email string, consentType models.ConsentType) (time.Time, error) {
	email = normalizeEmail(email)
	if !consentType.Valid() {
		return time.Time{}, dberr.InvalidArgument("unknown consent type: " + string(consentType))
	}

	now := time.Now().UTC()

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return time.Time{}, dberr.Internal("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	ok, err := m.repo.MarkWithdrawn(ctx, tx, email, consentType, now)
	if err != nil {
		return time.Time{}, dberr.Internal("failed to withdraw consent", err)
	}
	if !ok {
		return time.Time{}, dberr.PreconditionFailed("no active consent to withdraw")
	}

	if err := m.audit.ConsentWithdrawn(ctx, tx, actor, email, string(consentType)); err != nil {
		return time.Time{}, dberr.Internal("failed to write audit entry", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, dberr.Internal("failed to commit transaction", err)
	}

	m.invalidateStatusCache(ctx, email)
	_ = m.events.Publish(ctx, string(models.EventConsentWithdrawn), email, map[string]interface{}{
		"consent_type": consentType, "withdrawn_at": now,
	})

	return now, nil
}

// WithdrawAll implements §4.3: per-type withdraw, ignoring non-GRANTED rows.
func (m *Manager) WithdrawAll(ctx context.Context, actor models.Actor, email string) (int, error) {
	email = normalizeEmail(email)
	count := 0
	for _, t := range models.AllConsentTypes() {
		_, err := m.Withdraw(ctx, actor, email, t)
		if err == nil {
			count++
			continue
		}
		if dberr.KindOf(err) == dberr.KindPreconditionFailed {
			continue
		}
		return count, err
	}
	return count, nil
}

// Check implements §4.3's check(email, type) -> bool.
func (m *Manager) Check(ctx context.Context, email string, consentType models.ConsentType) (bool, error) {
	status, err := m.Status(ctx, email)
	if err != nil {
		return false, err
	}
	view, ok := status[consentType]
	if !ok {
		return false, nil
	}
	return view.Status == models.ConsentStatusGranted, nil
}

// Status implements §4.3's status(email) map, reading through a cache-aside
// layer (the teacher's CacheInterface pattern) since this is the hottest
// read path in the engine.
func (m *Manager) Status(ctx context.Context, email string) (map[models.ConsentType]models.ConsentView, error) {
	email = normalizeEmail(email)
	key := cache.ConsentStatusKey(email)

	var cached map[models.ConsentType]models.ConsentView
	if m.cache != nil {
		if err := m.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	rows, err := m.repo.ListByEmail(ctx, m.db, email)
	if err != nil {
		return nil, dberr.Internal("failed to list consents", err)
	}

	now := time.Now().UTC()
	out := make(map[models.ConsentType]models.ConsentView, len(models.AllConsentTypes()))
	for _, t := range models.AllConsentTypes() {
		out[t] = models.ConsentView{Status: models.ConsentStatusNotGiven}
	}
	for _, c := range rows {
		status := c.Status
		if status == models.ConsentStatusGranted && !c.IsValid(now) {
			status = models.ConsentStatusExpired
		}
		out[c.Type] = models.ConsentView{
			Status:      status,
			GrantedAt:   &c.GrantedAt,
			ExpiresAt:   c.ExpiresAt,
			WithdrawnAt: c.WithdrawnAt,
			Version:     c.ConsentVersion,
		}
	}

	if m.cache != nil {
		_ = m.cache.Set(ctx, key, out, m.cacheTTL)
	}
	return out, nil
}

// ExpireOld implements §4.3's scheduled sweep: flips every GRANTED row past
// expires_at to EXPIRED, writing one CONSENT_EXPIRED audit row per row and
// returning the number transitioned.
func (m *Manager) ExpireOld(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	expired, err := m.repo.ListExpiredGranted(ctx, m.db, now)
	if err != nil {
		return 0, dberr.Internal("failed to list expired consents", err)
	}

	count := 0
	for _, c := range expired {
		if err := m.expireOne(ctx, c); err != nil {
			logger.GetLogger().WithError(err).WithField("subject_email", c.SubjectEmail).Error("failed to expire consent")
			continue
		}
		count++
	}
	return count, nil
}

// ExpiringWithin implements the lookup C9's consent pre-notice digest needs:
// every GRANTED consent with expires_at in (from, to].
func (m *Manager) ExpiringWithin(ctx context.Context, from, to time.Time) ([]models.Consent, error) {
	rows, err := m.repo.ExpiringWithin(ctx, m.db, from, to)
	if err != nil {
		return nil, dberr.Internal("failed to list expiring consents", err)
	}
	return rows, nil
}

func (m *Manager) expireOne(ctx context.Context, c models.Consent) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := m.repo.MarkExpired(ctx, tx, c.ID); err != nil {
		return err
	}
	if err := m.audit.ConsentExpired(ctx, tx, c.SubjectEmail, string(c.Type)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	m.invalidateStatusCache(ctx, c.SubjectEmail)
	_ = m.events.Publish(ctx, string(models.EventConsentExpired), c.SubjectEmail, map[string]interface{}{"consent_type": c.Type})
	return nil
}

func (m *Manager) invalidateStatusCache(ctx context.Context, email string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, cache.ConsentStatusKey(email)); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("failed to invalidate consent status cache")
	}
}
