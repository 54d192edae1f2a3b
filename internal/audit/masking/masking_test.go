package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "****wxyz", MaskSecret("abcdefghijklmnopqrstuvwxyz"))
}

func TestMaskSensitive(t *testing.T) {
	in := map[string]any{
		"plan":         "gold",
		"admin_token":  "abcdefghijkl",
		"options":      map[string]string{"billing_interval": "1000", "api_secret": "0123456789"},
		" ":            "dropped",
		"PasswordHash": map[string]any{"v": "supersecretvalue"},
	}
	out := MaskSensitive(in)

	assert.Equal(t, "gold", out["plan"])
	assert.Equal(t, "****ijkl", out["admin_token"])
	opts := out["options"].(map[string]any)
	assert.Equal(t, "1000", opts["billing_interval"])
	assert.Equal(t, "****6789", opts["api_secret"])
	assert.Equal(t, "****alue", out["PasswordHash"].(map[string]any)["v"])
	assert.NotContains(t, out, " ")
	assert.Nil(t, MaskSensitive(nil))
}
