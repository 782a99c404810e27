package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// getBinaryPath returns the path to the docmeta binary for CLI tests.
func getBinaryPath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := filepath.Join("..", "..", "bin", "docmeta")
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, build it first with 'go build -o bin/docmeta ./cmd/docmeta'", binaryPath)
	}
	return binaryPath
}

// isolateEnv points every storage setting at a temp directory.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TEMPLATES_DIR", filepath.Join(dir, "templates"))
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "output"))
	t.Setenv("TEMP_DIR", filepath.Join(dir, "tmp"))
	t.Setenv("DATABASE_URL", filepath.Join(dir, "docmeta.db"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

// execute runs the root command in-process and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	processWorkers = 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
