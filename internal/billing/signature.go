package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureHeaderName is the request header carrying the delivery signature.
	SignatureHeaderName = "Stripe-Signature"

	// DefaultSignatureTolerance bounds the age of a signed delivery.
	DefaultSignatureTolerance = 5 * time.Minute
)

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrInvalidSignature = errors.New("invalid signature header")
	ErrSignatureExpired = errors.New("signature timestamp outside tolerance")
	ErrNoValidSignature = errors.New("no signature matches payload")
)

// VerifySignature checks a header of the form "t=<unix>,v1=<hex>[,v1=<hex>...]".
// The signed content is "<t>.<payload>" under HMAC-SHA256 with secret.
func VerifySignature(payload []byte, header string, secret []byte, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}

	var (
		timestamp  int64
		haveTime   bool
		signatures [][]byte
	)

	for part := range strings.SplitSeq(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = ts
			haveTime = true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if !haveTime || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return ErrSignatureExpired
		}
	}

	expected := computeSignature(payload, timestamp, secret)
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}

	return ErrNoValidSignature
}

// SignatureHeader builds a signature header for payload at time t.
// Used by tests and local tooling that replays provider deliveries.
func SignatureHeader(payload []byte, secret []byte, t time.Time) string {
	sig := computeSignature(payload, t.Unix(), secret)
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), hex.EncodeToString(sig))
}

func computeSignature(payload []byte, timestamp int64, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write([]byte("."))
	h.Write(payload)
	return h.Sum(nil)
}
