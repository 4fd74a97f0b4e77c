package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagd-project/pagd-go/internal/errors"
)

func TestExpandString(t *testing.T) {
	t.Setenv("PAGD_TEST_USER", "admin")
	t.Setenv("PAGD_TEST_PASS", "s3cret")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty", input: "", want: ""},
		{name: "literal", input: "literal-value", want: "literal-value"},
		{name: "single variable", input: "${PAGD_TEST_PASS}", want: "s3cret"},
		{name: "embedded variables", input: "${PAGD_TEST_USER}:${PAGD_TEST_PASS}", want: "admin:s3cret"},
		{name: "fallback unused", input: "${PAGD_TEST_USER:-guest}", want: "admin"},
		{name: "fallback used", input: "${PAGD_TEST_UNSET:-guest}", want: "guest"},
		{name: "empty fallback", input: "${PAGD_TEST_UNSET:-}", want: ""},
		{name: "missing variable", input: "${PAGD_TEST_UNSET}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				assert.Contains(t, err.Error(), "PAGD_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path := filepath.Join(dir, "mqtt_password")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = ReadFile(empty)
	require.Error(t, err)

	_, err = ReadFile(filepath.Join(dir, "missing"))
	require.Error(t, err)

	_, err = ReadFile(dir)
	require.Error(t, err, "directories are rejected")

	_, err = ReadFile("")
	require.Error(t, err)

	large := filepath.Join(dir, "large")
	require.NoError(t, os.WriteFile(large, make([]byte, maxSecretFileSize+1), 0o600))
	_, err = ReadFile(large)
	require.Error(t, err)
}

func TestResolve_PrefersFile(t *testing.T) {
	t.Setenv("PAGD_TEST_TOKEN", "from-env")

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	got, err := Resolve(path, "${PAGD_TEST_TOKEN}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${PAGD_TEST_TOKEN}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
