package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/idmkit/credential/pkg/domain"
)

const (
	// TOTP parameters
	totpDigits = 6
	totpPeriod = 30
	totpWindow = 1 // Allow ±30 seconds clock drift

	// OOB code parameters
	oobCodeLength = 6
	oobCodeChars  = "0123456789"

	// Recovery code parameters
	recoveryCodeLength = 12
	recoveryCodeCount  = 8
	recoveryCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // No ambiguous chars
)

// OTPService generates and verifies second-factor codes. It implements
// domain.MFACodeService.
type OTPService struct {
	issuer string
}

// NewOTPService creates an OTP service issuing keys under the given name.
func NewOTPService(issuer string) *OTPService {
	return &OTPService{issuer: issuer}
}

// GenerateTOTPSecret mints a fresh TOTP key for an account.
func (s *OTPService) GenerateTOTPSecret(accountName string) (domain.TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return domain.TOTPKey{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return domain.TOTPKey{Secret: key.Secret(), URI: key.URL()}, nil
}

// ValidateTOTP checks a code against a secret, allowing one time step
// of clock drift in either direction.
func (s *OTPService) ValidateTOTP(secret, code string) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpWindow,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP code: %w", err)
	}
	return valid, nil
}

// QRCodeDataURI renders the key URI as a PNG QR code data URI for
// authenticator app enrollment.
func (s *OTPService) QRCodeDataURI(key domain.TOTPKey) (string, error) {
	parsed, err := otp.NewKeyFromURL(key.URI)
	if err != nil {
		return "", fmt.Errorf("failed to parse key URI: %w", err)
	}
	img, err := parsed.Image(200, 200)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

// GenerateOOBCode mints a short numeric code for SMS or email delivery.
func (s *OTPService) GenerateOOBCode() (string, error) {
	return randomFromCharset(oobCodeChars, oobCodeLength)
}

// GenerateRecoveryCodes mints a fresh set of single-use recovery codes
// in XXXX-XXXX-XXXX format.
func (s *OTPService) GenerateRecoveryCodes() ([]string, error) {
	codes := make([]string, recoveryCodeCount)
	for i := range codes {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		codes[i] = code
	}
	return codes, nil
}

// generateRecoveryCode generates a random recovery code in format XXXX-XXXX-XXXX
func generateRecoveryCode() (string, error) {
	chars, err := randomFromCharset(recoveryCodeChars, recoveryCodeLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", chars[0:4], chars[4:8], chars[8:12]), nil
}

func randomFromCharset(charset string, length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = charset[int(buf[i])%len(charset)]
	}
	return string(buf), nil
}
