package riskcontrol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBlacklistValue(t *testing.T) {
	cases := []struct {
		name    string
		blType  BlacklistType
		value   string
		want    string
		wantErr error
	}{
		{"email lowercased", BlacklistEmail, "  Bob@Example.COM ", "bob@example.com", nil},
		{"email without at", BlacklistEmail, "bob.example.com", "", ErrInvalidBlacklistValue},
		{"ipv4", BlacklistIP, "192.0.2.1", "192.0.2.1", nil},
		{"ipv4 mapped", BlacklistIP, "::ffff:192.0.2.1", "192.0.2.1", nil},
		{"ipv6 compressed", BlacklistIP, "2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1", nil},
		{"bad ip", BlacklistIP, "300.1.1.1", "", ErrInvalidBlacklistValue},
		{"national phone", BlacklistPhone, "(650) 253-0000", "+16502530000", nil},
		{"international phone", BlacklistPhone, "+44 20 7031 3000", "+442070313000", nil},
		{"bad phone", BlacklistPhone, "12", "", ErrInvalidBlacklistValue},
		{"card digits", BlacklistCard, "4111 1111-1111", "411111111111", nil},
		{"card letters", BlacklistCard, "4111abc", "", ErrInvalidBlacklistValue},
		{"device raw hashed", BlacklistDevice, "fp-raw", DeviceID("fp-raw"), nil},
		{"empty", BlacklistEmail, "   ", "", ErrInvalidBlacklistValue},
		{"unknown type", BlacklistType("iban"), "DE00", "", ErrInvalidBlacklistType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeBlacklistValue(tc.blType, tc.value, "US")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDeviceIDIsStable(t *testing.T) {
	id := DeviceID("canvas=abc;tz=UTC")
	assert.Len(t, id, 64)
	assert.Equal(t, id, DeviceID("canvas=abc;tz=UTC"))
	assert.NotEqual(t, id, DeviceID("canvas=abd;tz=UTC"))

	normalized, err := NormalizeBlacklistValue(BlacklistDevice, id, "")
	require.NoError(t, err)
	assert.Equal(t, id, normalized)
}

func TestServiceBlacklistAdmin(t *testing.T) {
	env := newTestEnv()
	svc := NewService(DefaultConfig(), env.deps())
	ctx := context.Background()

	_, err := svc.AddToBlacklist(ctx, &BlacklistRequest{Type: "iban", Value: "x"})
	assert.ErrorIs(t, err, ErrInvalidBlacklistType)

	_, err = svc.AddToBlacklist(ctx, &BlacklistRequest{
		Type:      BlacklistEmail,
		Value:     "x@y.io",
		ExpiresAt: timePtr(fixedNow.Add(-time.Hour)),
	})
	assert.ErrorIs(t, err, ErrInvalidBlacklistValue)

	entry, err := svc.AddToBlacklist(ctx, &BlacklistRequest{
		Type:    BlacklistEmail,
		Value:   "Mallory@Example.com",
		Reason:  "stolen cards",
		AddedBy: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "mallory@example.com", entry.Value)
	assert.Equal(t, SeverityHigh, entry.Severity)
	assert.True(t, entry.IsActive)

	hit, err := svc.IsBlacklisted(ctx, BlacklistEmail, "MALLORY@example.com")
	require.NoError(t, err)
	assert.True(t, hit)

	require.NoError(t, svc.RemoveFromBlacklist(ctx, entry.ID, "admin-1"))
	hit, err = svc.IsBlacklisted(ctx, BlacklistEmail, "mallory@example.com")
	require.NoError(t, err)
	assert.False(t, hit)

	assert.ErrorIs(t, svc.RemoveFromBlacklist(ctx, entry.ID, "admin-1"), ErrBlacklistNotFound)
	svc.Wait()
	assert.True(t, env.audit.has("blacklist_added"))
	assert.True(t, env.audit.has("blacklist_removed"))
}

func TestServiceSweepExpiredBlacklist(t *testing.T) {
	env := newTestEnv()
	env.addBlacklist(BlacklistIP, "192.0.2.10", timePtr(fixedNow.Add(-time.Second)))
	env.addBlacklist(BlacklistIP, "192.0.2.11", nil)
	svc := NewService(DefaultConfig(), env.deps())

	n, err := svc.SweepExpiredBlacklist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.SweepExpiredBlacklist(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
