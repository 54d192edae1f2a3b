package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smallbiznis/fedbill/internal/auth/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRules = `# compute
c1=compute,fulfilled,2,4,5/s
v1=volume,fulfilled,10,1.5/m
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fedbill "+Version)
}

func TestTokenHashFromArg(t *testing.T) {
	out, err := execute(t, "", "token", "hash", "s3cret")
	require.NoError(t, err)
	assert.True(t, credential.Verify("s3cret", strings.TrimSpace(out)))
}

func TestTokenHashFromStdin(t *testing.T) {
	out, err := execute(t, "piped\n", "token", "hash")
	require.NoError(t, err)
	assert.True(t, credential.Verify("piped", strings.TrimSpace(out)))
}

func TestTokenHashRequiresSecret(t *testing.T) {
	_, err := execute(t, "", "token", "hash")
	assert.Error(t, err)
}

func TestRulesValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.txt")
	require.NoError(t, os.WriteFile(path, []byte(validRules), 0o600))

	out, err := execute(t, "", "rules", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rules OK")

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("compute-x"), 0o600))
	_, err = execute(t, "", "rules", "validate", bad)
	assert.Error(t, err)

	dup := filepath.Join(dir, "dup.txt")
	require.NoError(t, os.WriteFile(dup, []byte(validRules+"c2=compute,fulfilled,2,4,7/s\n"), 0o600))
	_, err = execute(t, "", "rules", "validate", dup)
	assert.Error(t, err)

	_, err = execute(t, "", "rules", "validate", filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
