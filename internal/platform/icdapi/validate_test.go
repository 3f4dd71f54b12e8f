package icdapi

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationClient() *Client {
	local := &stubLocal{
		entities: map[string]*Entity{
			"MG26": {Code: "MG26", Title: "Fever of other or unknown origin", Source: SourceLocal},
			"8A80": {Code: "8A80", Title: "Migraine", Source: SourceLocal},
		},
		hits: []SearchHit{
			{Code: "MG26", Title: "Fever of other or unknown origin"},
			{Code: "1D01", Title: "Febrile illness"},
			{Code: "8A80", Title: "Migraine"},
			{Code: "ZZ01", Title: "Unrelated"},
		},
	}
	return NewClient(Config{}, zerolog.Nop(), WithLocalSource(local))
}

func TestValidateMapping_Strong(t *testing.T) {
	v, err := validationClient().ValidateMapping(context.Background(), ValidateRequest{
		NamasteCode:    "AAE-1",
		NamasteDisplay: "Jwara",
		ICDCode:        "MG26",
	})
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 1.0, v.Confidence)
	assert.Equal(t, "high semantic similarity", v.Reason)
	require.NotNil(t, v.Entity)
	assert.Equal(t, "MG26", v.Entity.Code)

	require.NotEmpty(t, v.Alternatives)
	assert.LessOrEqual(t, len(v.Alternatives), 3)
	for i, a := range v.Alternatives {
		assert.NotEqual(t, "MG26", a.Code, "the validated code is not its own alternative")
		if i > 0 {
			assert.GreaterOrEqual(t, v.Alternatives[i-1].Similarity, a.Similarity)
		}
	}
}

func TestValidateMapping_Poor(t *testing.T) {
	v, err := validationClient().ValidateMapping(context.Background(), ValidateRequest{
		NamasteDisplay: "zzzz",
		ICDCode:        "8A80",
	})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, 0.0, v.Confidence)
	assert.Equal(t, "poor semantic match", v.Reason)
}

func TestValidateMapping_UnknownCode(t *testing.T) {
	v, err := validationClient().ValidateMapping(context.Background(), ValidateRequest{
		NamasteDisplay: "Jwara",
		ICDCode:        "XX00",
	})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "ICD-11 code not found", v.Reason)
	assert.Nil(t, v.Entity)
}

func TestValidateMapping_MissingFields(t *testing.T) {
	_, err := validationClient().ValidateMapping(context.Background(), ValidateRequest{ICDCode: "8A80"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidationReason(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{0.9, "high semantic similarity"},
		{0.7, "moderate semantic similarity"},
		{0.6, "moderate semantic similarity"},
		{0.5, "low semantic similarity"},
		{0.31, "low semantic similarity"},
		{0.3, "poor semantic match"},
		{0, "poor semantic match"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, validationReason(tt.confidence), "confidence %.2f", tt.confidence)
	}
}
