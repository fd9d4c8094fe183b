package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{
			name:   "valid",
			header: SignatureHeader(payload, secret, now),
		},
		{
			name:   "valid among several signatures",
			header: SignatureHeader(payload, secret, now) + ",v1=deadbeef",
		},
		{
			name:    "missing header",
			header:  "",
			wantErr: ErrMissingSignature,
		},
		{
			name:    "no timestamp",
			header:  "v1=abcd",
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "no signature",
			header:  "t=1700000000",
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "wrong secret",
			header:  SignatureHeader(payload, []byte("other"), now),
			wantErr: ErrNoValidSignature,
		},
		{
			name:    "too old",
			header:  SignatureHeader(payload, secret, now.Add(-10*time.Minute)),
			wantErr: ErrSignatureExpired,
		},
		{
			name:    "too far in the future",
			header:  SignatureHeader(payload, secret, now.Add(10*time.Minute)),
			wantErr: ErrSignatureExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(payload, tt.header, secret, DefaultSignatureTolerance, now)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifySignature_tamperedPayload(t *testing.T) {
	secret := []byte("whsec_test")
	now := time.Now()
	header := SignatureHeader([]byte(`{"id":"evt_1"}`), secret, now)

	err := VerifySignature([]byte(`{"id":"evt_2"}`), header, secret, DefaultSignatureTolerance, now)
	require.ErrorIs(t, err, ErrNoValidSignature)
}
