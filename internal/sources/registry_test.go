package sources

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrosync-io/macrosync/internal/config"
)

func boolPtr(b bool) *bool {
	return &b
}

func testConfig() *config.Config {
	return &config.Config{
		DBPath:         "macrosync.duckdb",
		BronzeDir:      "data/bronze",
		MaxRetries:     3,
		RetryBaseWait:  1,
		HTTPTimeout:    1,
		SourceSettings: map[string]config.SourceSettings{},
	}
}

func TestBuildRegistry_SkipsCredentialedSourcesWithoutKeys(t *testing.T) {
	cfg := testConfig()

	registry, err := BuildRegistry(cfg, http.DefaultClient, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	// fred and eia have no credentials and were not explicitly enabled, so
	// they are skipped rather than failing the build.
	assert.NotContains(t, registry, "fred")
	assert.NotContains(t, registry, "eia")

	for _, name := range []string{"yahoo", "bkr", "finra", "silverblatt", "usda", "occ"} {
		require.Contains(t, registry, name)
		assert.Equal(t, name, registry[name].Name())
	}
}

func TestBuildRegistry_ExplicitlyEnabledWithoutCredentialFails(t *testing.T) {
	cfg := testConfig()
	cfg.SourceSettings["fred"] = config.SourceSettings{Enabled: boolPtr(true)}

	_, err := BuildRegistry(cfg, http.DefaultClient, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
	assert.Contains(t, err.Error(), "fred")
}

func TestBuildRegistry_DisabledSourceOmitted(t *testing.T) {
	cfg := testConfig()
	cfg.SourceSettings["yahoo"] = config.SourceSettings{Enabled: boolPtr(false)}

	registry, err := BuildRegistry(cfg, http.DefaultClient, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	assert.NotContains(t, registry, "yahoo")
}

func TestBuildRegistry_CredentialedSourcesWithKeys(t *testing.T) {
	cfg := testConfig()
	cfg.FredAPIKey = "key"
	cfg.EIAToken = "token"

	registry, err := BuildRegistry(cfg, http.DefaultClient, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	assert.Contains(t, registry, "fred")
	assert.Contains(t, registry, "eia")
	assert.Len(t, registry, 8)
}
