package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"github.com/idmkit/credential/pkg/domain"
)

// memStore keeps snapshots in memory. It implements CredentialStore and
// domain.EmailUniqueness the way the repository does, so service tests
// exercise the full load/mutate/save cycle.
type memStore struct {
	snaps  map[uuid.UUID]domain.Snapshot
	events []domain.Event
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[uuid.UUID]domain.Snapshot)}
}

func (m *memStore) Load(_ context.Context, userID uuid.UUID) (*domain.PersonCredential, error) {
	snap, ok := m.snaps[userID]
	if !ok {
		return nil, errors.New("credential not found")
	}
	return domain.Restore(snap), nil
}

func (m *memStore) Create(_ context.Context, cred *domain.PersonCredential, events []domain.Event) error {
	if _, ok := m.snaps[cred.UserID()]; ok {
		return errors.New("credential already exists")
	}
	m.snaps[cred.UserID()] = cred.Snapshot()
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) Save(_ context.Context, cred *domain.PersonCredential, events []domain.Event) error {
	m.snaps[cred.UserID()] = cred.Snapshot()
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) Check(_ context.Context, email string, excluded uuid.UUID) (bool, error) {
	for id, snap := range m.snaps {
		if id != excluded && snap.Registration != nil && snap.Registration.EmailAddress == email {
			return false, nil
		}
	}
	return true, nil
}

// fakeNotifier records deliveries instead of sending them.
type fakeNotifier struct {
	notifications []domain.Notification
	verifyToken   string
	resetToken    string
}

func (n *fakeNotifier) Notify(_ context.Context, notification domain.Notification) error {
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *fakeNotifier) VerificationCreated(_ context.Context, email, token string) error {
	n.verifyToken = token
	return nil
}

func (n *fakeNotifier) PasswordResetInitiated(_ context.Context, email, token string) error {
	n.resetToken = token
	return nil
}

func newTestService(t *testing.T) (*CredentialService, *memStore, *fakeNotifier) {
	t.Helper()
	store := newMemStore()
	notifier := &fakeNotifier{}
	cipher, err := NewSecretCipher(testKey())
	if err != nil {
		t.Fatalf("NewSecretCipher() error = %v", err)
	}
	service := NewCredentialService(CredentialServiceConfig{
		Store:      store,
		Hasher:     NewArgon2Hasher(nil),
		Codes:      NewOTPService("credential-test"),
		Cipher:     cipher,
		Tokens:     newTestTokenService(),
		Uniqueness: store,
		Notifier:   notifier,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return service, store, notifier
}

// registerAndVerify drives a fresh credential to the verified state with
// a password set.
func registerAndVerify(t *testing.T, service *CredentialService, notifier *fakeNotifier, userID uuid.UUID, email string) {
	t.Helper()
	ctx := context.Background()
	if err := service.CreateCredential(ctx, userID); err != nil {
		t.Fatalf("CreateCredential() error = %v", err)
	}
	if err := service.ChangeRegistration(ctx, userID, email, "A Person"); err != nil {
		t.Fatalf("ChangeRegistration() error = %v", err)
	}
	if err := service.InitiateRegistrationVerification(ctx, userID); err != nil {
		t.Fatalf("InitiateRegistrationVerification() error = %v", err)
	}
	if err := service.VerifyRegistration(ctx, userID, notifier.verifyToken); err != nil {
		t.Fatalf("VerifyRegistration() error = %v", err)
	}
	if err := service.SetPassword(ctx, userID, "correct horse battery staple"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
}

func TestCredentialService_RegistrationAndLogin(t *testing.T) {
	ctx := context.Background()
	service, _, notifier := newTestService(t)
	userID := uuid.New()
	registerAndVerify(t, service, notifier, userID, "person@example.com")

	result, err := service.Login(ctx, userID, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.MFARequired {
		t.Error("MFA must not be required")
	}
	if result.Tokens == nil {
		t.Fatal("expected an access/refresh pair")
	}
	claims, err := service.tokens.ParseToken(result.Tokens.AccessToken.Value)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != userID.String() {
		t.Errorf("Subject = %q, want %q", claims.Subject, userID)
	}
}

func TestCredentialService_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)

	first := uuid.New()
	if err := service.CreateCredential(ctx, first); err != nil {
		t.Fatalf("CreateCredential() error = %v", err)
	}
	if err := service.ChangeRegistration(ctx, first, "person@example.com", "First"); err != nil {
		t.Fatalf("ChangeRegistration() error = %v", err)
	}

	second := uuid.New()
	if err := service.CreateCredential(ctx, second); err != nil {
		t.Fatalf("CreateCredential() error = %v", err)
	}
	err := service.ChangeRegistration(ctx, second, "person@example.com", "Second")
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("error = %v, want ErrEmailTaken", err)
	}
}

func TestCredentialService_LoginFailuresPersist(t *testing.T) {
	ctx := context.Background()
	service, store, notifier := newTestService(t)
	userID := uuid.New()
	registerAndVerify(t, service, notifier, userID, "person@example.com")

	_, err := service.Login(ctx, userID, "wrong password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
	if got := store.snaps[userID].Login.FailedAttempts; got != 1 {
		t.Errorf("persisted FailedAttempts = %d, want 1", got)
	}

	for i := 0; i < domain.DefaultLockoutPolicy.MaxFailedAttempts-1; i++ {
		if _, err := service.Login(ctx, userID, "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("error = %v, want ErrInvalidCredentials", err)
		}
	}
	if store.snaps[userID].Login.LockedUntil == nil {
		t.Fatal("expected the lock to be persisted")
	}

	// Locked out even with the correct password.
	_, err = service.Login(ctx, userID, "correct horse battery staple")
	if !errors.Is(err, domain.ErrAccountLocked) {
		t.Errorf("error = %v, want ErrAccountLocked", err)
	}
}

func TestCredentialService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	service, _, notifier := newTestService(t)
	userID := uuid.New()
	registerAndVerify(t, service, notifier, userID, "person@example.com")

	if err := service.InitiatePasswordReset(ctx, userID); err != nil {
		t.Fatalf("InitiatePasswordReset() error = %v", err)
	}
	if notifier.resetToken == "" {
		t.Fatal("expected the reset token to be delivered")
	}
	if err := service.CompletePasswordReset(ctx, userID, notifier.resetToken, "a brand new password"); err != nil {
		t.Fatalf("CompletePasswordReset() error = %v", err)
	}

	if _, err := service.Login(ctx, userID, "correct horse battery staple"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("error = %v, want the old password rejected", err)
	}
	if _, err := service.Login(ctx, userID, "a brand new password"); err != nil {
		t.Errorf("Login() with the new password error = %v", err)
	}
}

func TestCredentialService_MFALoginFlow(t *testing.T) {
	ctx := context.Background()
	service, _, notifier := newTestService(t)
	userID := uuid.New()
	registerAndVerify(t, service, notifier, userID, "person@example.com")
	owner := domain.Caller{UserID: userID}

	if err := service.ChangeMFAEnabled(ctx, owner, userID, true); err != nil {
		t.Fatalf("ChangeMFAEnabled() error = %v", err)
	}

	result, err := service.Login(ctx, userID, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !result.MFARequired {
		t.Fatal("expected MFA to be required")
	}
	if result.Tokens != nil {
		t.Fatal("tokens must be withheld until the second factor verifies")
	}
	caller := domain.Caller{UserID: userID, SessionToken: result.MFAToken.Value}

	enrollment, err := service.AssociateAuthenticator(ctx, caller, userID, domain.AssociationRequest{Type: domain.AuthenticatorTOTP})
	if err != nil {
		t.Fatalf("AssociateAuthenticator() error = %v", err)
	}
	if enrollment.TOTP == nil {
		t.Fatal("expected TOTP key material")
	}
	if len(enrollment.RecoveryCodes) == 0 {
		t.Fatal("expected recovery codes with the first enrollment")
	}

	code, err := totp.GenerateCode(enrollment.TOTP.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	if err := service.ConfirmAuthenticator(ctx, caller, userID, domain.AuthenticatorTOTP, "", code); err != nil {
		t.Fatalf("ConfirmAuthenticator() error = %v", err)
	}

	auths, err := service.ListAuthenticators(ctx, caller, userID)
	if err != nil {
		t.Fatalf("ListAuthenticators() error = %v", err)
	}
	if len(auths) != 2 {
		t.Fatalf("expected totp plus recovery codes, got %d", len(auths))
	}
	var totpID uuid.UUID
	for _, a := range auths {
		if a.Type == domain.AuthenticatorTOTP {
			totpID = a.ID
		}
		if a.State != domain.AuthenticatorConfirmed {
			t.Errorf("%s State = %s, want confirmed", a.Type, a.State)
		}
	}

	if err := service.ChallengeAuthenticator(ctx, caller, userID, totpID); err != nil {
		t.Fatalf("ChallengeAuthenticator() error = %v", err)
	}
	code, err = totp.GenerateCode(enrollment.TOTP.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	pair, err := service.VerifyAuthenticator(ctx, caller, userID, domain.AuthenticatorTOTP, "", code)
	if err != nil {
		t.Fatalf("VerifyAuthenticator() error = %v", err)
	}
	if pair == nil || pair.AccessToken.Value == "" {
		t.Fatal("expected an access token after the second factor")
	}

	// The session was consumed; the stale token no longer operates.
	if _, err := service.ListAuthenticators(ctx, caller, userID); !errors.Is(err, domain.ErrMFASessionNotInitiated) {
		t.Errorf("error = %v, want ErrMFASessionNotInitiated", err)
	}
}

func TestCredentialService_OOBChallengeDispatch(t *testing.T) {
	ctx := context.Background()
	service, _, notifier := newTestService(t)
	userID := uuid.New()
	registerAndVerify(t, service, notifier, userID, "person@example.com")
	owner := domain.Caller{UserID: userID}

	if err := service.ChangeMFAEnabled(ctx, owner, userID, true); err != nil {
		t.Fatalf("ChangeMFAEnabled() error = %v", err)
	}
	tok, err := service.InitiateMFAAuthentication(ctx, userID)
	if err != nil {
		t.Fatalf("InitiateMFAAuthentication() error = %v", err)
	}
	caller := domain.Caller{UserID: userID, SessionToken: tok.Value}

	if _, err := service.AssociateAuthenticator(ctx, caller, userID, domain.AssociationRequest{
		Type:        domain.AuthenticatorOOBSMS,
		PhoneNumber: "+6498876986",
	}); err != nil {
		t.Fatalf("AssociateAuthenticator() error = %v", err)
	}
	if len(notifier.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.notifications))
	}
	delivered := notifier.notifications[0]
	if delivered.Channel != domain.ChannelSMS || delivered.Recipient != "+6498876986" {
		t.Errorf("notification = %+v", delivered)
	}
	if err := service.ConfirmAuthenticator(ctx, caller, userID, domain.AuthenticatorOOBSMS, delivered.Code, ""); err != nil {
		t.Fatalf("ConfirmAuthenticator() error = %v", err)
	}
}
