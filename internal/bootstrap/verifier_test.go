package bootstrap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretline/lib-cl-sii-go/internal/bootstrap"
	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii"
	"github.com/secretline/lib-cl-sii-go/internal/siitest"
	"github.com/secretline/lib-cl-sii-go/pkg/config"
)

func TestNewVerifier_ConRaicesPEM(t *testing.T) {
	pki := siitest.DefaultPKI(t)
	path := filepath.Join(t.TempDir(), "roots.pem")
	require.NoError(t, os.WriteFile(path, pki.Root.PEM(), 0o600))

	v, err := bootstrap.NewVerifier(config.VerifierConfig{TrustRootsPath: path, SigningTimezone: "America/Santiago"})
	require.NoError(t, err)

	verdict, err := v.Verify(siitest.DefaultDTE().Signed(t, pki.Leaf, siitest.SignOptions{}))
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
}

func TestNewVerifier_Errores(t *testing.T) {
	_, err := bootstrap.NewVerifier(config.VerifierConfig{SigningTimezone: "Marte/Olympus"})
	assert.Error(t, err)

	_, err = bootstrap.NewVerifier(config.VerifierConfig{RequireTrustedChain: true})
	assert.Error(t, err)

	_, err = bootstrap.NewVerifier(config.VerifierConfig{TrustRootsPath: filepath.Join(t.TempDir(), "no-existe.pem")})
	assert.Error(t, err)
}

func TestServiceOptions(t *testing.T) {
	opts, err := bootstrap.ServiceOptions(config.VerifierConfig{
		MaxDocumentBytes: 1024,
		BatchConcurrency: 8,
		CleanerEnabled:   []string{sii.RuleSetMissingSIIXmlns},
	})
	require.NoError(t, err)
	assert.Equal(t, 1024, opts.MaxDocumentBytes)
	assert.Equal(t, 8, opts.Concurrency)
	assert.True(t, opts.Clean.Overrides[sii.RuleSetMissingSIIXmlns])

	_, err = bootstrap.ServiceOptions(config.VerifierConfig{CleanerDisabled: []string{"no_existe"}})
	assert.Error(t, err)
}
