package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw    string
		region string
		want   string
	}{
		{"+15551230000", "US", "+15551230000"},
		{"(555) 123-0000", "US", "+15551230000"},
		{"555.123.0000", "", "+15551230000"},
		{"+44 20 7946 0018", "US", "+442079460018"},
		{"020 7946 0018", "gb", "+442079460018"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Normalize(tt.raw, tt.region)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	for _, raw := range []string{"", "   ", "abc", "12"} {
		_, err := Normalize(raw, "US")
		assert.ErrorIs(t, err, appErrors.ErrInvalidPhone, raw)
	}
}
