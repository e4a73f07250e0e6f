package qr

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDataURL(t *testing.T) {
	renderer := NewRenderer()

	out, err := renderer.Render("https://www.homologacao.nfce.fazenda.sp.gov.br/qrcode?chNFe=35240312345678000199650010000000421000000426&nVersao=100")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(out, "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(raw[:4]))
}

func TestRenderEmptyURL(t *testing.T) {
	renderer := NewRenderer()

	_, err := renderer.Render("")
	assert.Error(t, err)
}
