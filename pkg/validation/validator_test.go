package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateURL("https://project.supabase.co", []string{"https"}))
	assert.Error(t, v.ValidateURL("", nil))
	assert.Error(t, v.ValidateURL("ftp://host", []string{"http", "https"}))
	assert.Error(t, v.ValidateURL("https:///path", nil))
	assert.Error(t, v.ValidateURL("https://host/a b", nil))
}

func TestValidateEmail(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateEmail("ana@payki.pe"))
	assert.Error(t, v.ValidateEmail(""))
	assert.Error(t, v.ValidateEmail("not-an-email"))
	assert.Error(t, v.ValidateEmail("Ana <ana@payki.pe>"))
}

func TestValidateCronExpression(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateCronExpression("@every 15m"))
	assert.NoError(t, v.ValidateCronExpression("*/5 * * * *"))
	assert.Error(t, v.ValidateCronExpression(""))
	assert.Error(t, v.ValidateCronExpression("every fifteen minutes"))
}

func TestValidateEnum(t *testing.T) {
	v := NewValidator()
	roles := []string{"passenger", "driver", "admin"}

	assert.NoError(t, v.ValidateEnum("driver", roles, "role"))
	assert.EqualError(t, v.ValidateEnum("", roles, "role"), "role is required")
	assert.Error(t, v.ValidateEnum("guest", roles, "role"))
}

func TestValidateStringLength(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateStringLength("Ñandú", "name", 1, 5))
	assert.Error(t, v.ValidateStringLength("", "name", 1, 5))
	assert.Error(t, v.ValidateStringLength("abcdef", "name", 1, 5))
}

func TestValidateRequired(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateRequired(map[string]string{"title": "Aviso"}))
	assert.EqualError(t, v.ValidateRequired(map[string]string{"title": "  "}), "title is required")
}
