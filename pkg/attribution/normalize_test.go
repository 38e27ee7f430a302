package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_DefaultRewrites(t *testing.T) {
	n := MustNormalizer(DefaultRewrites)

	tests := []struct {
		in   string
		want string
	}{
		{"soy psicóloga del leslim", "soy psicóloga del SLIM"},
		{"Soy del LESLÍN, buenas tardes.", "Soy del SLIM, buenas tardes."},
		{"vengo de les lim", "vengo de SLIM"},
		{"Les Lim y leslim", "SLIM y SLIM"},
		{"nada que cambiar aquí", "nada que cambiar aquí"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestNormalizer_WholeWordOnly(t *testing.T) {
	n := MustNormalizer(DefaultRewrites)

	assert.Equal(t, "leslimpio", n.Normalize("leslimpio"))
	assert.Equal(t, "leslíns", n.Normalize("leslíns"))
	assert.Equal(t, "áleslim", n.Normalize("áleslim"), "accented letters count as word characters")
	assert.Equal(t, "(SLIM)", n.Normalize("(leslim)"))
}

func TestNormalizer_PreservesEverythingElse(t *testing.T) {
	n := MustNormalizer(DefaultRewrites)
	in := "  Eh... ¿Usted  FUE al leslim?  "
	assert.Equal(t, "  Eh... ¿Usted  FUE al SLIM?  ", n.Normalize(in))
}

func TestNormalizer_Nil(t *testing.T) {
	var n *Normalizer
	assert.Equal(t, "leslim", n.Normalize("leslim"))
}

func TestNewNormalizer_RejectsEmptyVariant(t *testing.T) {
	_, err := NewNormalizer([]Rewrite{{Variants: []string{" "}, Canonical: "X"}})
	require.Error(t, err)
}

func TestNewNormalizer_QuotesVariants(t *testing.T) {
	n, err := NewNormalizer([]Rewrite{{Variants: []string{"c.a"}, Canonical: "CA"}})
	require.NoError(t, err)
	assert.Equal(t, "cxa CA", n.Normalize("cxa c.a"))
}
