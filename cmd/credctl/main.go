// credctl drives the person-credential service from the command line:
// registration, verification, password lifecycle, and MFA enrollment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/idmkit/credential/internal/config"
	"github.com/idmkit/credential/internal/notification"
	"github.com/idmkit/credential/pkg/auth"
	"github.com/idmkit/credential/pkg/domain"
	"github.com/idmkit/credential/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	encryptionKey, err := cfg.DecodeEncryptionKey()
	if err != nil {
		logger.Error("invalid encryption key", "error", err)
		os.Exit(1)
	}
	cipher, err := auth.NewSecretCipher(encryptionKey)
	if err != nil {
		logger.Error("failed to create secret cipher", "error", err)
		os.Exit(1)
	}

	repo := repository.NewCredentialsRepository(db)
	policy := &auth.PasswordPolicy{
		MinLength:        cfg.PasswordPolicy.MinLength,
		RequireUppercase: cfg.PasswordPolicy.RequireUppercase,
		RequireLowercase: cfg.PasswordPolicy.RequireLowercase,
		RequireNumber:    cfg.PasswordPolicy.RequireNumber,
		RequireSpecial:   cfg.PasswordPolicy.RequireSpecial,
	}

	var emailService *notification.EmailService
	if cfg.HasSMTP() {
		emailService = notification.NewEmailService(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
	}

	service := auth.NewCredentialService(auth.CredentialServiceConfig{
		Store:  repo,
		Hasher: auth.NewArgon2Hasher(policy),
		Codes:  auth.NewOTPService(cfg.JWTIssuer),
		Cipher: cipher,
		Tokens: auth.NewTokenService(auth.TokenConfig{
			JWTSecret:            []byte(cfg.JWTSecret),
			Issuer:               cfg.JWTIssuer,
			VerificationTokenTTL: cfg.VerificationTokenTTL,
			ResetTokenTTL:        cfg.ResetTokenTTL,
			MFASessionTTL:        cfg.MFASessionTTL,
			AccessTokenTTL:       cfg.AccessTokenTTL,
			RefreshTokenTTL:      cfg.RefreshTokenTTL,
		}),
		Uniqueness: repo,
		Notifier:   notification.NewDispatcher(emailService, cfg.PublicBaseURL, logger),
		Lockout: domain.LockoutPolicy{
			MaxFailedAttempts: cfg.MaxFailedAttempts,
			Cooldown:          cfg.LockoutCooldown,
		},
		Logger: logger,
	})

	if err := run(context.Background(), service, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, service *auth.CredentialService, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	user := fs.String("user", "", "user id (uuid)")
	email := fs.String("email", "", "email address")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "password")
	token := fs.String("token", "", "token value")
	session := fs.String("session", "", "MFA session token")
	typ := fs.String("type", "", "authenticator type (totp|oob_sms|oob_email|recovery_codes)")
	phone := fs.String("phone", "", "phone number for oob_sms")
	code := fs.String("code", "", "OOB or confirmation code")
	id := fs.String("id", "", "authenticator id (uuid)")
	operator := fs.Bool("operator", false, "act with the operator role")
	authenticated := fs.Bool("authenticated", false, "caller already holds an authenticated session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	userID, err := uuid.Parse(*user)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}
	caller := domain.Caller{
		UserID:        userID,
		SessionToken:  *session,
		Authenticated: *authenticated,
	}
	if *operator {
		caller.Roles = append(caller.Roles, domain.RoleOperator)
	}

	switch command {
	case "create":
		return service.CreateCredential(ctx, userID)
	case "register":
		return service.ChangeRegistration(ctx, userID, *email, *name)
	case "invite-guest":
		return service.InviteGuest(ctx, userID, *email)
	case "redeem-invitation":
		return service.RedeemGuestInvitation(ctx, userID, *name)
	case "initiate-verification":
		return service.InitiateRegistrationVerification(ctx, userID)
	case "verify":
		return service.VerifyRegistration(ctx, userID, *token)
	case "set-password":
		return service.SetPassword(ctx, userID, *password)
	case "login":
		result, err := service.Login(ctx, userID, *password)
		if err != nil {
			return err
		}
		if result.MFARequired {
			fmt.Printf("mfa required, session token: %s\n", result.MFAToken.Value)
			return nil
		}
		fmt.Printf("access token: %s\n", result.Tokens.AccessToken.Value)
		return nil
	case "initiate-reset":
		return service.InitiatePasswordReset(ctx, userID)
	case "complete-reset":
		return service.CompletePasswordReset(ctx, userID, *token, *password)
	case "mfa-enable":
		return service.ChangeMFAEnabled(ctx, caller, userID, true)
	case "mfa-disable":
		return service.ChangeMFAEnabled(ctx, caller, userID, false)
	case "mfa-reset":
		return service.ResetMFA(ctx, caller, userID)
	case "mfa-init":
		tok, err := service.InitiateMFAAuthentication(ctx, userID)
		if err != nil {
			return err
		}
		fmt.Printf("session token: %s\n", tok.Value)
		return nil
	case "mfa-associate":
		result, err := service.AssociateAuthenticator(ctx, caller, userID, domain.AssociationRequest{
			Type:         domain.AuthenticatorType(*typ),
			PhoneNumber:  *phone,
			EmailAddress: *email,
		})
		if err != nil {
			return err
		}
		fmt.Printf("authenticator: %s\n", result.Authenticator.ID)
		if result.TOTP != nil {
			fmt.Printf("totp uri: %s\n", result.TOTP.URI)
		}
		for _, rc := range result.RecoveryCodes {
			fmt.Printf("recovery code: %s\n", rc)
		}
		return nil
	case "mfa-confirm":
		return service.ConfirmAuthenticator(ctx, caller, userID, domain.AuthenticatorType(*typ), *code, *code)
	case "mfa-challenge":
		authenticatorID, err := uuid.Parse(*id)
		if err != nil {
			return fmt.Errorf("invalid --id: %w", err)
		}
		return service.ChallengeAuthenticator(ctx, caller, userID, authenticatorID)
	case "mfa-verify":
		pair, err := service.VerifyAuthenticator(ctx, caller, userID, domain.AuthenticatorType(*typ), *code, *code)
		if err != nil {
			return err
		}
		fmt.Printf("access token: %s\n", pair.AccessToken.Value)
		return nil
	case "mfa-disassociate":
		authenticatorID, err := uuid.Parse(*id)
		if err != nil {
			return fmt.Errorf("invalid --id: %w", err)
		}
		return service.DisassociateAuthenticator(ctx, caller, userID, authenticatorID)
	case "mfa-list":
		auths, err := service.ListAuthenticators(ctx, caller, userID)
		if err != nil {
			return err
		}
		for _, a := range auths {
			fmt.Printf("%s  %-14s %-11s challenged=%v\n", a.ID, a.Type, a.State, a.Challenged)
		}
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: credctl <command> [flags]

commands:
  create                create the credential for a user
  register              set or change registration
  invite-guest          record a guest invitation
  redeem-invitation     redeem an outstanding guest invitation
  initiate-verification start registration verification
  verify                verify registration with a token
  set-password          set the password
  login                 verify the password and issue tokens
  initiate-reset        start a password reset
  complete-reset        complete a password reset
  mfa-enable            enable multi-factor authentication
  mfa-disable           disable multi-factor authentication
  mfa-reset             reset MFA state (operator)
  mfa-init              start an MFA authentication session
  mfa-associate         enroll an authenticator
  mfa-confirm           confirm a pending authenticator
  mfa-challenge         challenge an authenticator
  mfa-verify            verify a challenged authenticator
  mfa-disassociate      remove an authenticator
  mfa-list              list enrolled authenticators`)
}
