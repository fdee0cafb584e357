package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahajws/amast-crm-sub000/pkg/auth"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

func resetOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, SetOutput(OutputTable, buf))
	t.Cleanup(func() { SetOutput(OutputTable, os.Stdout) })
	return buf
}

func TestSetOutputRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, SetOutput("xml", nil))
	assert.NoError(t, SetOutput(OutputYAML, nil))
	assert.NoError(t, SetOutput(OutputTable, nil))
}

func TestPrintStructuredYAMLUsesJSONNames(t *testing.T) {
	buf := resetOutput(t)
	require.NoError(t, SetOutput(OutputYAML, buf))

	ok := PrintStructured([]types.LabelSyncState{{LabelId: "Label_1", LabelName: "Clients", LabelType: types.LabelTypeUser, IsSyncing: true}})
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "id: Label_1")
	assert.Contains(t, buf.String(), "isSyncing: true")
	assert.NotContains(t, buf.String(), "labelid")
}

func TestPrintStructuredTableIsNoop(t *testing.T) {
	buf := resetOutput(t)
	assert.False(t, PrintStructured(map[string]int{"a": 1}))
	assert.Empty(t, buf.String())
}

func TestTablePrint(t *testing.T) {
	buf := resetOutput(t)

	table := NewTable("ID", "NAME")
	table.Print()
	assert.Contains(t, buf.String(), "(none)")

	buf.Reset()
	table.AddRow("Label_1", "Clients")
	table.AddRow("INBOX")
	table.Print()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "Label_1")
	assert.Contains(t, lines[2], "Clients")
	assert.Contains(t, lines[3], "INBOX")
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	buf := resetOutput(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwtSecret: cli-secret\n  issuer: crm\n"), 0o600))

	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"token", "--config", path, "--user", "user-9", "--email", "nine@crm.test", "--ttl", "10m", "-o", "json"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, buf.String(), `"token"`)
	raw := buf.String()
	start := strings.Index(raw, `"token": "`) + len(`"token": "`)
	token := raw[start : start+strings.Index(raw[start:], `"`)]

	validator, err := auth.NewJWTValidator(types.AuthConfig{JWTSecret: "cli-secret", Issuer: "crm"})
	require.NoError(t, err)
	user, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", user.Id)
	assert.Equal(t, "nine@crm.test", user.Email)
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(nil))
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	assert.Equal(t, "2026-01-02 03:04:05", FormatTime(&ts))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "a", firstLine("a\nb"))
	assert.Len(t, firstLine(strings.Repeat("x", 100)), 60)
}
