package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadNormalizesIdentifiers(t *testing.T) {
	path := writeConfig(t, `
[messaging]
environment = "dev"
signing_key = "0x`+testKey+`"
encryption_key = "`+testKey+`"

[access]
allowlist = ["0xABCDEF0123456789abcdef0123456789ABCDEF01"]

[catalog]
base_url = "http://localhost:5055"
api_key = "k"

[catalog.users]
"0xABCDEF0123456789abcdef0123456789ABCDEF01" = "alice"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Messaging.Environment)
	assert.Equal(t, testKey, cfg.Messaging.SigningKey, "0x prefix should be stripped")
	assert.Equal(t, []string{"0xabcdef0123456789abcdef0123456789abcdef01"}, cfg.Access.Allowlist)
	assert.Equal(t, "alice", cfg.Catalog.Users["0xabcdef0123456789abcdef0123456789abcdef01"])
}

func TestLoadEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `
[messaging]
signing_key = "`+testKey+`"
encryption_key = "`+testKey+`"

[access]
allowlist = ["0xabc"]

[catalog]
base_url = "http://localhost:5055"
api_key = "from-file"
`)
	t.Setenv(EnvCatalogAPIKey, "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Catalog.APIKey)
}

func TestLoadRejectsBadEnvironment(t *testing.T) {
	path := writeConfig(t, `
[messaging]
environment = "staging"
signing_key = "`+testKey+`"
encryption_key = "`+testKey+`"

[access]
allowlist = ["0xabc"]

[catalog]
base_url = "http://localhost:5055"
api_key = "k"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsShortSigningKey(t *testing.T) {
	path := writeConfig(t, `
[messaging]
signing_key = "abcd"
encryption_key = "`+testKey+`"

[access]
allowlist = ["0xabc"]

[catalog]
base_url = "http://localhost:5055"
api_key = "k"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateWebhookRequirements(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Messaging: MessagingConfig{
			Environment:   "production",
			SigningKey:    testKey,
			EncryptionKey: testKey,
		},
		Access:  AccessConfig{Allowlist: []string{"0xabc"}},
		Catalog: CatalogConfig{BaseURL: "http://localhost:5055", APIKey: "k"},
		Webhook: WebhookConfig{Enabled: true, Addr: ":5001"},
	}

	err := Validate(cfg)
	require.Error(t, err, "enabled webhook without secret must fail")

	cfg.Webhook.Secret = "s3cret"
	err = Validate(cfg)
	require.Error(t, err, "enabled webhook without ip allowlist must fail")

	cfg.Webhook.IPAllowlist = []string{"10.0.0.0/8"}
	assert.NoError(t, Validate(cfg))
}
