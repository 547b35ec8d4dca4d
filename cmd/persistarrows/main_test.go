package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/persistarrows/extension/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`{
  "logLevel": "debug",
  "logsDir": %q,
  "journal": {
    "type": "memory",
    "flushInterval": "10ms",
    "memory": {"outputDir": %q, "compressOutput": false}
  }
}`, filepath.Join(dir, "logs"), filepath.Join(dir, "journal"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(body), 0644))
	return dir
}

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"version"}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), CurrentExtensionVersion)
}

func TestRun_Usage(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(nil, strings.NewReader(""), &out, &errOut))
	assert.Contains(t, errOut.String(), "usage:")

	errOut.Reset()
	assert.Equal(t, 2, run([]string{"fly"}, strings.NewReader(""), &out, &errOut))
	assert.Contains(t, errOut.String(), "usage:")

	errOut.Reset()
	assert.Equal(t, 2, run([]string{"migratebackups"}, strings.NewReader(""), &out, &errOut))
	assert.Contains(t, errOut.String(), "No backup directory provided.")
}

func TestRun_Scenarios(t *testing.T) {
	dir := writeTestConfig(t)
	files, err := filepath.Glob(filepath.Join("..", "..", "internal", "simhost", "testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var out, errOut bytes.Buffer
	args := append([]string{"-config", dir, "run"}, files...)
	code := run(args, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 0, code, "stdout: %s\nstderr: %s", out.String(), errOut.String())
	assert.Equal(t, len(files), strings.Count(out.String(), "ok   "))

	journals, err := filepath.Glob(filepath.Join(dir, "journal", "*.json"))
	require.NoError(t, err)
	assert.Len(t, journals, len(files))
}

func TestRun_ScenarioMissingFile(t *testing.T) {
	dir := writeTestConfig(t)
	var out, errOut bytes.Buffer
	code := run([]string{"-config", dir, "run", filepath.Join(dir, "missing.yaml")}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "missing.yaml")
}

func TestRun_Serve(t *testing.T) {
	dir := writeTestConfig(t)
	in := strings.NewReader(strings.Join([]string{
		":STATUS:",
		"",
		":PERSISTENT:|not-a-uuid",
		":NOPE:",
	}, "\n"))

	var out, errOut bytes.Buffer
	code := run([]string{"-config", dir, "-worlds", "overworld", "serve"}, in, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], `["ok",`), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `["error",`), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], `["error",`), lines[2])
}

func TestParseWorlds(t *testing.T) {
	got := parseWorlds(" overworld, ,the_end,")
	require.Len(t, got, 2)
	assert.Equal(t, "overworld", string(got[0]))
	assert.Equal(t, "the_end", string(got[1]))
}
