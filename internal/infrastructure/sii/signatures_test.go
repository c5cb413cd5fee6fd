package sii_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretline/lib-cl-sii-go/internal/infrastructure/sii"
	"github.com/secretline/lib-cl-sii-go/internal/siitest"
)

func TestMissingSignatures(t *testing.T) {
	pki := siitest.DefaultPKI(t)

	t.Run("DTE firmado", func(t *testing.T) {
		doc := siitest.DefaultDTE().Signed(t, pki.Leaf, siitest.SignOptions{})
		assert.Empty(t, sii.MissingSignatures(doc))
	})

	t.Run("DTE sin firma", func(t *testing.T) {
		missing := sii.MissingSignatures(siitest.DefaultDTE().Document())
		require.Len(t, missing, 1)
		assert.Equal(t, "DTE", missing[0].Path)
	})

	t.Run("AEC completo", func(t *testing.T) {
		assert.Empty(t, sii.MissingSignatures(siitest.DefaultAEC().Signed(t, pki.Leaf)))
	})

	t.Run("AEC con cesión sin firma", func(t *testing.T) {
		doc := siitest.DefaultAEC().Signed(t, pki.Leaf)
		cesion := doc.FindElement("//Cesion")
		require.NotNil(t, cesion)
		cesion.RemoveChild(cesion.SelectElement("Signature"))

		missing := sii.MissingSignatures(doc)
		require.Len(t, missing, 1)
		assert.Contains(t, missing[0].Path, "Cesion")
	})
}
