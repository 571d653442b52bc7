package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"image/png"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
)

const (
	// Issuer is the label shown in authenticator apps.
	Issuer = "tmbot"

	// qrSize is the rendered QR code edge in pixels.
	qrSize = 450

	totpPeriod uint = 30
	totpSkew   uint = 1
)

// codePattern accepts a 6-digit code, optionally sent as a /-prefixed
// pseudo-command.
var codePattern = regexp.MustCompile(`^/?(\d{6})$`)

// ExtractCode normalizes message text to a 6-digit TOTP code. Returns
// false when the text is not code-shaped.
func ExtractCode(text string) (string, bool) {
	m := codePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Authenticator derives per-user TOTP secrets from the configured salt and
// verifies codes against them. Derivation is deterministic, so enrolment
// QR codes stay valid across restarts.
type Authenticator struct {
	salt string
}

// NewAuthenticator creates an Authenticator over the configured salt.
func NewAuthenticator(salt string) *Authenticator {
	return &Authenticator{salt: salt}
}

// Secret returns the user's base32 TOTP secret: the first 20 bytes of
// HMAC-SHA-256(salt, "<user_id>:<username>").
func (a *Authenticator) Secret(userID int64, username string) string {
	mac := hmac.New(sha256.New, []byte(a.salt))
	fmt.Fprintf(mac, "%d:%s", userID, username)
	sum := mac.Sum(nil)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:20])
}

// Verify checks a 6-digit code against the user's secret at time now,
// tolerating one 30-second window of clock drift in either direction.
func (a *Authenticator) Verify(code string, userID int64, username string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, a.Secret(userID, username), now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// ProvisioningURI builds the otpauth:// URI encoded into the enrolment QR.
func (a *Authenticator) ProvisioningURI(userID int64, username string) string {
	account := username
	if account == "" {
		account = fmt.Sprintf("user%d", userID)
	}
	return fmt.Sprintf(
		"otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=6&period=%d",
		url.PathEscape(Issuer),
		url.PathEscape(account),
		a.Secret(userID, username),
		url.QueryEscape(Issuer),
		totpPeriod,
	)
}

// QRCode renders the provisioning URI as a PNG image.
func (a *Authenticator) QRCode(userID int64, username string) ([]byte, error) {
	code, err := qr.Encode(a.ProvisioningURI(userID, username), qr.M, qr.Auto)
	if err != nil {
		return nil, errs.New(errs.CodeQRCode, "encode provisioning URI", err)
	}
	scaled, err := barcode.Scale(code, qrSize, qrSize)
	if err != nil {
		return nil, errs.New(errs.CodeQRCode, "scale qr image", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, errs.New(errs.CodeQRCode, "render png", err)
	}
	return buf.Bytes(), nil
}
