package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/idmkit/credential/pkg/domain"
)

// Persistence errors
var (
	ErrCredentialNotFound      = errors.New("credential not found")
	ErrConcurrentModification  = errors.New("credential was modified concurrently")
	ErrCredentialAlreadyExists = errors.New("credential already exists")
)

// CredentialsRepository persists PersonCredential aggregates: one
// snapshot row per credential, child rows for authenticators, and an
// append-only event outbox. It implements auth.CredentialStore and
// domain.EmailUniqueness.
type CredentialsRepository struct {
	db *sql.DB
}

// NewCredentialsRepository creates a new credentials repository.
func NewCredentialsRepository(db *sql.DB) *CredentialsRepository {
	return &CredentialsRepository{db: db}
}

// Load materializes the aggregate for a user.
func (r *CredentialsRepository) Load(ctx context.Context, userID uuid.UUID) (*domain.PersonCredential, error) {
	query := `
		SELECT user_id, version, event_seq, email, display_name, invitation_email, invited_at,
		       verification_state, verification_token, verification_expires_at,
		       password_hash, reset_token, reset_expires_at, reset_initiated,
		       failed_attempts, locked_until,
		       mfa_enabled, mfa_can_be_disabled, mfa_session_token, mfa_session_initiated_at
		FROM person_credentials
		WHERE user_id = $1
	`
	var snap domain.Snapshot
	var verState string
	var email, displayName, invitationEmail, verToken, passwordHash, resetToken, sessionToken sql.NullString
	var invitedAt, verExpiresAt, resetExpiresAt, lockedUntil, sessionInitiated sql.NullTime
	var resetInitiated sql.NullBool
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&snap.UserID, &snap.Version, &snap.EventSeq, &email, &displayName, &invitationEmail, &invitedAt,
		&verState, &verToken, &verExpiresAt,
		&passwordHash, &resetToken, &resetExpiresAt, &resetInitiated,
		&snap.Login.FailedAttempts, &lockedUntil,
		&snap.MFA.Enabled, &snap.MFA.CanBeDisabled, &sessionToken, &sessionInitiated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}

	if email.Valid {
		snap.Registration = &domain.Registration{
			EmailAddress: email.String,
			DisplayName:  displayName.String,
		}
	}
	if invitationEmail.Valid {
		snap.GuestInvitation = &domain.GuestInvitation{
			EmailAddress: invitationEmail.String,
			InvitedAt:    invitedAt.Time,
		}
	}
	snap.Verification = domain.RegistrationVerification{
		State:     domain.VerificationState(verState),
		Token:     verToken.String,
		ExpiresAt: verExpiresAt.Time,
	}
	if passwordHash.Valid {
		snap.Password = &domain.PasswordSnapshot{
			Hash:           passwordHash.String,
			ResetToken:     resetToken.String,
			ResetExpiresAt: resetExpiresAt.Time,
			ResetInitiated: resetInitiated.Bool,
		}
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		snap.Login.LockedUntil = &t
	}
	snap.MFA.AuthenticationToken = sessionToken.String
	if sessionInitiated.Valid {
		t := sessionInitiated.Time
		snap.MFA.AuthenticationInitiatedAt = &t
	}

	auths, err := r.loadAuthenticators(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.Authenticators = auths

	return domain.Restore(snap), nil
}

func (r *CredentialsRepository) loadAuthenticators(ctx context.Context, userID uuid.UUID) ([]domain.AuthenticatorSnapshot, error) {
	query := `
		SELECT id, type, state, challenged, secret, channel_value, oob_code
		FROM mfa_authenticators
		WHERE user_id = $1
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auths []domain.AuthenticatorSnapshot
	for rows.Next() {
		var a domain.AuthenticatorSnapshot
		var secret, channelValue, oobCode sql.NullString
		if err := rows.Scan(&a.ID, &a.Type, &a.State, &a.Challenged, &secret, &channelValue, &oobCode); err != nil {
			return nil, err
		}
		a.Secret = secret.String
		a.ChannelValue = channelValue.String
		a.OOBCode = oobCode.String
		auths = append(auths, a)
	}
	return auths, rows.Err()
}

// Create inserts a brand-new credential and its creation events.
func (r *CredentialsRepository) Create(ctx context.Context, cred *domain.PersonCredential, events []domain.Event) error {
	snap := cred.Snapshot()
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO person_credentials (user_id, version, event_seq, verification_state, mfa_can_be_disabled, created_at)
			VALUES ($1, 1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO NOTHING
		`
		res, err := tx.ExecContext(ctx, query, snap.UserID, snap.EventSeq, snap.Verification.State, snap.MFA.CanBeDisabled, time.Now())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrCredentialAlreadyExists
		}
		return r.appendEvents(ctx, tx, events)
	})
}

// Save writes the snapshot back and appends the drained events. The
// version column detects concurrent writers.
func (r *CredentialsRepository) Save(ctx context.Context, cred *domain.PersonCredential, events []domain.Event) error {
	snap := cred.Snapshot()
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			UPDATE person_credentials SET
				version = version + 1,
				event_seq = $3,
				email = $4, display_name = $5, invitation_email = $6, invited_at = $7,
				verification_state = $8, verification_token = $9, verification_expires_at = $10,
				password_hash = $11, reset_token = $12, reset_expires_at = $13, reset_initiated = $14,
				failed_attempts = $15, locked_until = $16,
				mfa_enabled = $17, mfa_can_be_disabled = $18,
				mfa_session_token = $19, mfa_session_initiated_at = $20,
				updated_at = $21
			WHERE user_id = $1 AND version = $2
		`
		var email, displayName, invitationEmail sql.NullString
		var invitedAt, verExpiresAt, resetExpiresAt sql.NullTime
		var verToken, passwordHash, resetToken, sessionToken sql.NullString
		var lockedUntil, sessionInitiatedAt sql.NullTime
		var resetInitiated bool
		if snap.Registration != nil {
			email = sql.NullString{String: snap.Registration.EmailAddress, Valid: true}
			displayName = sql.NullString{String: snap.Registration.DisplayName, Valid: true}
		}
		if snap.GuestInvitation != nil {
			invitationEmail = sql.NullString{String: snap.GuestInvitation.EmailAddress, Valid: true}
			invitedAt = sql.NullTime{Time: snap.GuestInvitation.InvitedAt, Valid: true}
		}
		if snap.Verification.Token != "" {
			verToken = sql.NullString{String: snap.Verification.Token, Valid: true}
			verExpiresAt = sql.NullTime{Time: snap.Verification.ExpiresAt, Valid: true}
		}
		if snap.Password != nil {
			passwordHash = sql.NullString{String: snap.Password.Hash, Valid: true}
			if snap.Password.ResetToken != "" {
				resetToken = sql.NullString{String: snap.Password.ResetToken, Valid: true}
				resetExpiresAt = sql.NullTime{Time: snap.Password.ResetExpiresAt, Valid: true}
			}
			resetInitiated = snap.Password.ResetInitiated
		}
		if snap.Login.LockedUntil != nil {
			lockedUntil = sql.NullTime{Time: *snap.Login.LockedUntil, Valid: true}
		}
		if snap.MFA.AuthenticationToken != "" {
			sessionToken = sql.NullString{String: snap.MFA.AuthenticationToken, Valid: true}
		}
		if snap.MFA.AuthenticationInitiatedAt != nil {
			sessionInitiatedAt = sql.NullTime{Time: *snap.MFA.AuthenticationInitiatedAt, Valid: true}
		}

		res, err := tx.ExecContext(ctx, query,
			snap.UserID, snap.Version, snap.EventSeq,
			email, displayName, invitationEmail, invitedAt,
			snap.Verification.State, verToken, verExpiresAt,
			passwordHash, resetToken, resetExpiresAt, resetInitiated,
			snap.Login.FailedAttempts, lockedUntil,
			snap.MFA.Enabled, snap.MFA.CanBeDisabled,
			sessionToken, sessionInitiatedAt,
			time.Now(),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrConcurrentModification
		}

		if err := r.saveAuthenticators(ctx, tx, snap); err != nil {
			return err
		}
		return r.appendEvents(ctx, tx, events)
	})
}

func (r *CredentialsRepository) saveAuthenticators(ctx context.Context, tx *sql.Tx, snap domain.Snapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM mfa_authenticators WHERE user_id = $1`, snap.UserID); err != nil {
		return err
	}
	query := `
		INSERT INTO mfa_authenticators (id, user_id, position, type, state, challenged, secret, channel_value, oob_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i, a := range snap.Authenticators {
		_, err := tx.ExecContext(ctx, query,
			a.ID, snap.UserID, i, a.Type, a.State, a.Challenged,
			nullable(a.Secret), nullable(a.ChannelValue), nullable(a.OOBCode),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *CredentialsRepository) appendEvents(ctx context.Context, tx *sql.Tx, events []domain.Event) error {
	query := `
		INSERT INTO credential_events (user_id, seq, name, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.Name(), err)
		}
		env := ev.Meta()
		if _, err := tx.ExecContext(ctx, query, env.UserID, env.Seq, ev.Name(), env.OccurredAt, payload); err != nil {
			return err
		}
	}
	return nil
}

// Check reports whether an email address is free, ignoring the given
// credential. Implements domain.EmailUniqueness.
func (r *CredentialsRepository) Check(ctx context.Context, email string, excludedUserID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM person_credentials
			WHERE email = $1 AND user_id <> $2
		)
	`
	var taken bool
	if err := r.db.QueryRowContext(ctx, query, email, excludedUserID).Scan(&taken); err != nil {
		return false, err
	}
	return !taken, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
