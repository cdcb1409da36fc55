package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisigoks/plantverse-go/internal/errors"
)

func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"two_letter_code", "te", "te", false},
		{"uppercase_code", "TE", "te", false},
		{"full_name", "Telugu", "te", false},
		{"full_name_lowercase", "hindi", "hi", false},
		{"english", "en", "en", false},
		{"regional_variant", "pt-BR", "pt", false},
		{"padded", "  ta  ", "ta", false},
		{"empty", "", "", true},
		{"unsupported", "tlh", "", true},
		{"garbage", "english!!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeLanguage(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err), "unsupported language must be a validation error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCoordinate(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateCoordinate(17.385, 78.486))
	require.NoError(t, ValidateCoordinate(-90, 180))

	for _, bad := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -181}} {
		err := ValidateCoordinate(bad[0], bad[1])
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		s := &Settings{}
		s.Language = "en"
		s.Observations.RadiusKm = 25
		s.Observations.MaxResults = 50
		s.Enrichment.ProviderTimeout = 1
		s.Enrichment.RequestTimeout = 1
		return s
	}

	require.NoError(t, ValidateSettings(valid()))

	s := valid()
	s.Language = "nope"
	require.Error(t, ValidateSettings(s))

	s = valid()
	s.Latitude = 200
	require.Error(t, ValidateSettings(s))

	s = valid()
	s.Observations.RadiusKm = -1
	require.Error(t, ValidateSettings(s))
}
