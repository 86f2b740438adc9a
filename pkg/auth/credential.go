package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/idmkit/credential/pkg/domain"
)

// ErrInvalidCredentials is returned by Login when the password does not
// match. It deliberately hides whether the account exists or is simply
// wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialStore loads and saves person credentials. Save persists the
// snapshot and appends the drained events in one transaction, with
// optimistic concurrency on the aggregate version.
type CredentialStore interface {
	Load(ctx context.Context, userID uuid.UUID) (*domain.PersonCredential, error)
	Create(ctx context.Context, cred *domain.PersonCredential, events []domain.Event) error
	Save(ctx context.Context, cred *domain.PersonCredential, events []domain.Event) error
}

// Notifier delivers the messages the credential lifecycle produces.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
	VerificationCreated(ctx context.Context, email, token string) error
	PasswordResetInitiated(ctx context.Context, email, token string) error
}

// TokenPair is the access/refresh pair issued after authentication.
type TokenPair struct {
	AccessToken  domain.Token
	RefreshToken domain.Token
}

// LoginResult reports the outcome of a password login. When MFA is
// enabled the tokens are withheld and MFAToken carries the session
// token for the second-factor round.
type LoginResult struct {
	MFARequired bool
	MFAToken    domain.Token
	Tokens      *TokenPair
}

// CredentialServiceConfig wires the service's collaborators.
type CredentialServiceConfig struct {
	Store      CredentialStore
	Hasher     domain.PasswordHasher
	Codes      domain.MFACodeService
	Cipher     domain.SecretCipher
	Tokens     *TokenService
	Uniqueness domain.EmailUniqueness
	Notifier   Notifier
	Lockout    domain.LockoutPolicy
	Logger     *slog.Logger
}

// CredentialService drives the PersonCredential aggregate: one
// load/mutate/save cycle per command, events drained into the store's
// outbox on every save.
type CredentialService struct {
	store      CredentialStore
	hasher     domain.PasswordHasher
	codes      domain.MFACodeService
	cipher     domain.SecretCipher
	tokens     *TokenService
	uniqueness domain.EmailUniqueness
	notifier   Notifier
	lockout    domain.LockoutPolicy
	logger     *slog.Logger
}

// NewCredentialService creates the service.
func NewCredentialService(cfg CredentialServiceConfig) *CredentialService {
	if cfg.Lockout.MaxFailedAttempts == 0 {
		cfg.Lockout = domain.DefaultLockoutPolicy
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CredentialService{
		store:      cfg.Store,
		hasher:     cfg.Hasher,
		codes:      cfg.Codes,
		cipher:     cfg.Cipher,
		tokens:     cfg.Tokens,
		uniqueness: cfg.Uniqueness,
		notifier:   cfg.Notifier,
		lockout:    cfg.Lockout,
		logger:     cfg.Logger,
	}
}

// CreateCredential creates the credential for a new platform user.
func (s *CredentialService) CreateCredential(ctx context.Context, userID uuid.UUID) error {
	cred := domain.New(userID, domain.WithLockoutPolicy(s.lockout))
	if err := s.store.Create(ctx, cred, cred.DrainEvents()); err != nil {
		return err
	}
	s.logger.Info("credential created", "user_id", userID)
	return nil
}

func (s *CredentialService) load(ctx context.Context, userID uuid.UUID) (*domain.PersonCredential, error) {
	return s.store.Load(ctx, userID)
}

func (s *CredentialService) save(ctx context.Context, cred *domain.PersonCredential) error {
	events := cred.DrainEvents()
	if err := s.store.Save(ctx, cred, events); err != nil {
		return err
	}
	for _, ev := range events {
		s.logger.Info("credential event", "event", ev.Name(), "user_id", ev.Meta().UserID)
	}
	return nil
}

// ChangeRegistration sets or updates the registered email and display name.
func (s *CredentialService) ChangeRegistration(ctx context.Context, userID uuid.UUID, email, displayName string) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.ChangeRegistration(ctx, s.uniqueness, email, displayName); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// InviteGuest records a guest invitation for an unregistered person.
func (s *CredentialService) InviteGuest(ctx context.Context, userID uuid.UUID, email string) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.InviteGuest(email); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// RedeemGuestInvitation completes an outstanding guest invitation.
func (s *CredentialService) RedeemGuestInvitation(ctx context.Context, userID uuid.UUID, displayName string) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.RedeemGuestInvitation(ctx, s.uniqueness, displayName); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// InitiateRegistrationVerification mints a verification token and mails
// the verification link.
func (s *CredentialService) InitiateRegistrationVerification(ctx context.Context, userID uuid.UUID) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	tok, err := cred.InitiateRegistrationVerification(s.tokens)
	if err != nil {
		return err
	}
	if err := s.save(ctx, cred); err != nil {
		return err
	}
	reg, _ := cred.Registration()
	return s.notifier.VerificationCreated(ctx, reg.EmailAddress, tok.Value)
}

// VerifyRegistration consumes a verification token.
func (s *CredentialService) VerifyRegistration(ctx context.Context, userID uuid.UUID, token string) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.VerifyRegistration(token); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// SetPassword stores a freshly hashed password.
func (s *CredentialService) SetPassword(ctx context.Context, userID uuid.UUID, plaintext string) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.SetCredentials(s.hasher, plaintext); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// Login verifies the password. With MFA disabled a matching password
// yields the access/refresh pair directly; with MFA enabled the result
// carries the authentication session token instead and the caller must
// complete a second factor before tokens are issued.
func (s *CredentialService) Login(ctx context.Context, userID uuid.UUID, password string) (*LoginResult, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	match, err := cred.VerifyPassword(s.hasher, password)
	if err != nil {
		// Failed attempts and lockouts still have to be persisted.
		if saveErr := s.save(ctx, cred); saveErr != nil {
			return nil, saveErr
		}
		return nil, err
	}
	if !match {
		if err := s.save(ctx, cred); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if cred.MFA().Enabled {
		tok, err := cred.InitiateMFAAuthentication(s.tokens)
		if err != nil {
			return nil, err
		}
		if err := s.save(ctx, cred); err != nil {
			return nil, err
		}
		return &LoginResult{MFARequired: true, MFAToken: tok}, nil
	}

	if err := s.save(ctx, cred); err != nil {
		return nil, err
	}
	pair, err := s.issueTokens(userID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Tokens: pair}, nil
}

func (s *CredentialService) issueTokens(userID uuid.UUID) (*TokenPair, error) {
	access, err := s.tokens.MintAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.MintRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// InitiatePasswordReset mints a reset token and mails the reset link.
func (s *CredentialService) InitiatePasswordReset(ctx context.Context, userID uuid.UUID) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	tok, err := cred.InitiatePasswordReset(s.tokens)
	if err != nil {
		return err
	}
	if err := s.save(ctx, cred); err != nil {
		return err
	}
	reg, _ := cred.Registration()
	return s.notifier.PasswordResetInitiated(ctx, reg.EmailAddress, tok.Value)
}

// CompletePasswordReset consumes a reset token and stores the new password.
func (s *CredentialService) CompletePasswordReset(ctx context.Context, userID uuid.UUID, token, newPassword string) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.CompletePasswordReset(s.hasher, token, newPassword); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// ChangeMFAEnabled turns MFA on or off for the owner.
func (s *CredentialService) ChangeMFAEnabled(ctx context.Context, caller domain.Caller, userID uuid.UUID, enabled bool) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.ChangeMFAEnabled(caller, enabled); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// ResetMFA wipes a person's MFA state on behalf of an operator.
func (s *CredentialService) ResetMFA(ctx context.Context, caller domain.Caller, userID uuid.UUID) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.ResetMFA(caller); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// InitiateMFAAuthentication starts an authentication session and
// returns its token.
func (s *CredentialService) InitiateMFAAuthentication(ctx context.Context, userID uuid.UUID) (domain.Token, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return domain.Token{}, err
	}
	tok, err := cred.InitiateMFAAuthentication(s.tokens)
	if err != nil {
		return domain.Token{}, err
	}
	if err := s.save(ctx, cred); err != nil {
		return domain.Token{}, err
	}
	return tok, nil
}

// AssociateAuthenticator enrolls a new factor for the owner.
func (s *CredentialService) AssociateAuthenticator(ctx context.Context, caller domain.Caller, userID uuid.UUID, req domain.AssociationRequest) (*domain.AssociationResult, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	result, err := cred.AssociateAuthenticator(ctx, caller, s.codes, s.cipher, req, s.notifier.Notify)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, cred); err != nil {
		return nil, err
	}
	return result, nil
}

// ConfirmAuthenticator confirms a pending enrollment.
func (s *CredentialService) ConfirmAuthenticator(ctx context.Context, caller domain.Caller, userID uuid.UUID, typ domain.AuthenticatorType, oobCode, confirmationCode string) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.ConfirmAuthenticatorAssociation(caller, s.codes, s.cipher, typ, oobCode, confirmationCode); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// ChallengeAuthenticator readies a factor for verification, dispatching
// a fresh OOB code where one applies.
func (s *CredentialService) ChallengeAuthenticator(ctx context.Context, caller domain.Caller, userID, authenticatorID uuid.UUID) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.ChallengeAuthenticator(ctx, caller, s.codes, authenticatorID, s.notifier.Notify); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// VerifyAuthenticator completes the second-factor round and issues the
// access/refresh pair.
func (s *CredentialService) VerifyAuthenticator(ctx context.Context, caller domain.Caller, userID uuid.UUID, typ domain.AuthenticatorType, oobCode, confirmationCode string) (*TokenPair, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := cred.VerifyAuthenticator(caller, s.codes, s.cipher, typ, oobCode, confirmationCode); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cred); err != nil {
		return nil, err
	}
	return s.issueTokens(userID)
}

// DisassociateAuthenticator removes an enrolled factor.
func (s *CredentialService) DisassociateAuthenticator(ctx context.Context, caller domain.Caller, userID, authenticatorID uuid.UUID) error {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := cred.DisassociateAuthenticator(caller, authenticatorID); err != nil {
		return err
	}
	return s.save(ctx, cred)
}

// ListAuthenticators returns the owner's ordered authenticator collection.
func (s *CredentialService) ListAuthenticators(ctx context.Context, caller domain.Caller, userID uuid.UUID) ([]domain.MFAAuthenticator, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cred.Authenticators(caller)
}
