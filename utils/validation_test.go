package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreamSettings struct {
	Prefix  string `validate:"required"`
	BaseURL string `validate:"required,url"`
	Retries int    `validate:"gte=0,lte=5"`
	Mode    string `validate:"oneof=strict lax"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := upstreamSettings{
			Prefix:  "/api/usuario",
			BaseURL: "http://usuarios:8080",
			Retries: 1,
			Mode:    "strict",
		}

		err := ValidateStruct(&s)
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		s := upstreamSettings{
			BaseURL: "http://usuarios:8080",
			Mode:    "strict",
		}

		err := ValidateStruct(&s)
		require.Error(t, err)
		fields := validationFields(t, err)
		assert.Contains(t, fields, "upstreamSettings.Prefix")
		assert.Contains(t, err.Error(), "upstreamSettings.Prefix is required")
	})

	t.Run("invalid url and oneof", func(t *testing.T) {
		s := upstreamSettings{
			Prefix:  "/api",
			BaseURL: "not a url",
			Mode:    "sometimes",
		}

		err := ValidateStruct(&s)
		require.Error(t, err)

		fields := validationFields(t, err)
		assert.Contains(t, fields, "upstreamSettings.BaseURL")
		assert.Contains(t, fields, "upstreamSettings.Mode")
	})

	t.Run("out of range", func(t *testing.T) {
		s := upstreamSettings{
			Prefix:  "/api",
			BaseURL: "http://usuarios:8080",
			Retries: 9,
			Mode:    "lax",
		}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Contains(t, validationFields(t, err), "upstreamSettings.Retries")
	})
}

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	return validationErr.Fields
}
