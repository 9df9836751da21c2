package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
)

// ErrBadSignature is returned when a webhook signature does not verify.
var ErrBadSignature = fmt.Errorf("%w: invalid webhook signature", apperr.ErrUnauthorized)

// VerifySignature checks the x-signature header of a MercadoPago webhook.
// The header has the form "ts=<unix>,v1=<hex hmac>", and v1 is the
// HMAC-SHA256 of "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func VerifySignature(secret, header, requestID, dataID string) error {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return ErrBadSignature
	}

	want, err := hex.DecodeString(v1)
	if err != nil {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedManifest(dataID, requestID, ts)))
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the x-signature header MercadoPago would send.
func Sign(secret, requestID, dataID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedManifest(dataID, requestID, ts)))
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func signedManifest(dataID, requestID, ts string) string {
	// Alphanumeric ids are signed lower-cased.
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
}
