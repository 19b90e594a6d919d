// Package postgres implements the authcore directory boundary over the
// platform's PostgreSQL schema using pgx.
//
// Schema expectations: users joined to tenants for principal lookups, one
// mfa_enrollments row per user with the encrypted secret blob and a text[]
// of backup code hashes, and an append-only security_audit table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	authcore "github.com/beautystack/authcore"
)

// Directory is a pgx-backed [authcore.DirectoryProvider].
type Directory struct {
	db *pgxpool.Pool
}

// NewDirectory wraps an existing connection pool. The pool's lifecycle
// stays with the caller.
func NewDirectory(db *pgxpool.Pool) *Directory {
	return &Directory{db: db}
}

const principalColumns = `
	u.id, u.email, u.first_name, u.last_name, u.password_hash, u.role,
	COALESCE(u.tenant_id::text, ''), COALESCE(t.slug, ''),
	u.is_active, COALESCE(t.is_active, true), u.mfa_enabled`

func (d *Directory) GetPrincipalByEmail(ctx context.Context, email string) (authcore.PrincipalRecord, error) {
	query := `
		SELECT ` + principalColumns + `
		FROM users u
		LEFT JOIN tenants t ON t.id = u.tenant_id
		WHERE lower(u.email) = lower($1)`
	return d.scanPrincipal(d.db.QueryRow(ctx, query, email))
}

func (d *Directory) GetPrincipalByID(ctx context.Context, id string) (authcore.PrincipalRecord, error) {
	query := `
		SELECT ` + principalColumns + `
		FROM users u
		LEFT JOIN tenants t ON t.id = u.tenant_id
		WHERE u.id = $1`
	return d.scanPrincipal(d.db.QueryRow(ctx, query, id))
}

func (d *Directory) scanPrincipal(row pgx.Row) (authcore.PrincipalRecord, error) {
	var p authcore.PrincipalRecord
	err := row.Scan(
		&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.PasswordHash, &p.Role,
		&p.TenantID, &p.TenantSlug, &p.Active, &p.TenantActive, &p.MFAEnabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.PrincipalRecord{}, authcore.ErrPrincipalNotFound
		}
		return authcore.PrincipalRecord{}, fmt.Errorf("query principal: %w", err)
	}
	return p, nil
}

func (d *Directory) GetEnrollment(ctx context.Context, principalID string) (*authcore.EnrollmentRecord, error) {
	query := `
		SELECT user_id, secret_blob, enabled, method, backup_code_hashes,
		       enrolled_at, COALESCE(last_verified_at, 'epoch'::timestamptz)
		FROM mfa_enrollments
		WHERE user_id = $1`
	rec := &authcore.EnrollmentRecord{}
	err := d.db.QueryRow(ctx, query, principalID).Scan(
		&rec.PrincipalID, &rec.SecretBlob, &rec.Enabled, &rec.Method,
		&rec.BackupCodeHashes, &rec.EnrolledAt, &rec.LastVerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query enrollment: %w", err)
	}
	return rec, nil
}

// PutEnrollment writes the full enrollment row in one upsert and moves
// users.mfa_enabled in the same transaction, so the enrollment and the
// principal flag never disagree.
func (d *Directory) PutEnrollment(ctx context.Context, record authcore.EnrollmentRecord) error {
	tx, err := d.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO mfa_enrollments
			(user_id, secret_blob, enabled, method, backup_code_hashes, enrolled_at, last_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			secret_blob = EXCLUDED.secret_blob,
			enabled = EXCLUDED.enabled,
			method = EXCLUDED.method,
			backup_code_hashes = EXCLUDED.backup_code_hashes,
			enrolled_at = EXCLUDED.enrolled_at,
			last_verified_at = EXCLUDED.last_verified_at`
	_, err = tx.Exec(ctx, query,
		record.PrincipalID, record.SecretBlob, record.Enabled, record.Method,
		record.BackupCodeHashes, record.EnrolledAt, record.LastVerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE users SET mfa_enabled = $2, updated_at = now() WHERE id = $1`,
		record.PrincipalID, record.Enabled,
	)
	if err != nil {
		return fmt.Errorf("update mfa flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrPrincipalNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

// DeleteEnrollment drops the enrollment row and clears users.mfa_enabled
// together.
func (d *Directory) DeleteEnrollment(ctx context.Context, principalID string) error {
	tx, err := d.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM mfa_enrollments WHERE user_id = $1`, principalID); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET mfa_enabled = false, updated_at = now() WHERE id = $1`,
		principalID,
	); err != nil {
		return fmt.Errorf("update mfa flag: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

func (d *Directory) ReplaceBackupCodes(ctx context.Context, principalID string, hashes []string) error {
	tag, err := d.db.Exec(ctx,
		`UPDATE mfa_enrollments SET backup_code_hashes = $2 WHERE user_id = $1`,
		principalID, hashes,
	)
	if err != nil {
		return fmt.Errorf("replace backup codes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrMFANotEnrolled
	}
	return nil
}

// ConsumeBackupCode removes one stored hash only if it is still present.
// The WHERE clause makes the removal conditional, so two concurrent
// attempts with the same code cannot both report success.
func (d *Directory) ConsumeBackupCode(ctx context.Context, principalID, hash string) (bool, error) {
	tag, err := d.db.Exec(ctx, `
		UPDATE mfa_enrollments
		SET backup_code_hashes = array_remove(backup_code_hashes, $2)
		WHERE user_id = $1 AND $2 = ANY(backup_code_hashes)`,
		principalID, hash,
	)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (d *Directory) TouchLastVerified(ctx context.Context, principalID string, at time.Time) error {
	if _, err := d.db.Exec(ctx,
		`UPDATE mfa_enrollments SET last_verified_at = $2 WHERE user_id = $1`,
		principalID, at,
	); err != nil {
		return fmt.Errorf("touch last verified: %w", err)
	}
	return nil
}

func (d *Directory) AppendAudit(ctx context.Context, entry authcore.AuditEntry) error {
	query := `
		INSERT INTO security_audit
			(occurred_at, action, user_id, tenant_id, role, ip, user_agent, detail)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8)`
	_, err := d.db.Exec(ctx, query,
		entry.Timestamp, entry.Action, entry.PrincipalID, entry.TenantID,
		entry.Role, entry.IP, entry.UserAgent, entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
