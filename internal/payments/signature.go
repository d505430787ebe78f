package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// manifest is the string Mercado Pago signs for a notification.
func manifest(dataID, requestID, ts string) string {
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
}

// Sign returns the hex v1 signature for a notification.
func Sign(secret, dataID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest(dataID, requestID, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an x-signature header of the form "ts=<ts>,v1=<hex>".
func VerifySignature(secret, header, requestID, dataID string) error {
	if header == "" {
		return ErrMissingSignature
	}
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return ErrMissingSignature
	}
	got, err := hex.DecodeString(v1)
	if err != nil {
		return ErrInvalidSignature
	}
	want, _ := hex.DecodeString(Sign(secret, dataID, requestID, ts))
	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	return nil
}
