package datastore

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/evaluation"
)

func TestBase64Obfuscator(t *testing.T) {
	t.Parallel()

	var o Base64Obfuscator
	stored, err := o.Conceal("abc123")
	require.NoError(t, err)
	assert.Equal(t, "YWJjMTIz", stored)

	plain, err := o.Reveal(stored)
	require.NoError(t, err)
	assert.Equal(t, "abc123", plain)

	_, err = o.Reveal("%%%")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCredential))
}

func TestSealedObfuscatorRoundTrip(t *testing.T) {
	t.Parallel()

	o, err := NewSealedObfuscator("correct horse battery staple")
	require.NoError(t, err)

	stored, err := o.Conceal("abc123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, SealedPrefix))
	assert.NotContains(t, stored, "abc123")
	assert.NotContains(t, stored, base64.StdEncoding.EncodeToString([]byte("abc123")))

	again, err := o.Conceal("abc123")
	require.NoError(t, err)
	assert.NotEqual(t, stored, again, "every seal uses a fresh nonce")

	plain, err := o.Reveal(stored)
	require.NoError(t, err)
	assert.Equal(t, "abc123", plain)

	empty, err := o.Conceal("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSealedObfuscatorReadsLegacyBase64(t *testing.T) {
	t.Parallel()

	o, err := NewSealedObfuscator("secret")
	require.NoError(t, err)

	plain, err := o.Reveal("YWJjMTIz")
	require.NoError(t, err)
	assert.Equal(t, "abc123", plain)
}

func TestSealedObfuscatorRejectsTampering(t *testing.T) {
	t.Parallel()

	o, err := NewSealedObfuscator("secret")
	require.NoError(t, err)
	other, err := NewSealedObfuscator("another secret")
	require.NoError(t, err)

	stored, err := o.Conceal("abc123")
	require.NoError(t, err)

	_, err = other.Reveal(stored)
	require.Error(t, err, "a different sealing secret must not open the value")
	assert.True(t, errors.IsCategory(err, errors.CategoryCredential))

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, SealedPrefix))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = o.Reveal(SealedPrefix + base64.RawURLEncoding.EncodeToString(raw))
	require.Error(t, err)

	_, err = o.Reveal(SealedPrefix + "AAAA")
	require.Error(t, err)
}

func TestNewSealedObfuscatorRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewSealedObfuscator("")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestSealedStoreMigratesLegacyCredential(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()

	legacy := New(backend, WithLogger(quietLogger()))
	settings := evaluation.DefaultSettings()
	settings.Registry = evaluation.RegistryConfig{Endpoint: "https://r.example", APIKey: "abc123", Enabled: true}
	require.NoError(t, legacy.SaveSettings(ctx, settings))

	sealed, err := NewSealedObfuscator("secret")
	require.NoError(t, err)
	hardened := New(backend, WithLogger(quietLogger()), WithObfuscator(sealed))

	got, err := hardened.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Registry.APIKey, "legacy base64 value is still readable")

	require.NoError(t, hardened.SaveSettings(ctx, got))
	raw := string(rawSlot(t, backend, SettingsSlot))
	assert.Contains(t, raw, SealedPrefix)
	assert.NotContains(t, raw, "YWJjMTIz")

	got, err = hardened.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Registry.APIKey)
}
