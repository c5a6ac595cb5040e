package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed ids. The version suffix leaves room
// for changing the hashed shape later.
const (
	DomainMessage = "crossroads/message/v1"
	DomainBody    = "crossroads/body/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MessageID computes the content-addressed id of an outbound message
// recorded under a dispatch. Stable across replays given the same inputs.
func MessageID(dispatchID string, seq int64, rec MessageRecord) (string, error) {
	obj := IRObject{
		"dispatch_id": IRString(dispatchID),
		"seq":         IRInt(seq),
		"kind":        IRString(rec.Kind),
		"path":        IRString(rec.Path),
		"interface":   IRString(rec.Interface),
		"member":      IRString(rec.Member),
		"error_name":  IRString(rec.ErrorName),
		"body":        nonNil(rec.Body),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("MessageID: %w", err)
	}
	return hashWithDomain(DomainMessage, canonical), nil
}

// BodyHash fingerprints a body independent of where it was sent.
func BodyHash(body IRArray) (string, error) {
	canonical, err := MarshalCanonical(nonNil(body))
	if err != nil {
		return "", fmt.Errorf("BodyHash: %w", err)
	}
	return hashWithDomain(DomainBody, canonical), nil
}

// MustBodyHash is like BodyHash but panics on error. For tests and known
// good input.
func MustBodyHash(body IRArray) string {
	h, err := BodyHash(body)
	if err != nil {
		panic(err)
	}
	return h
}

func nonNil(a IRArray) IRArray {
	if a == nil {
		return IRArray{}
	}
	return a
}
