package main

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessCommand_MissingFlags(t *testing.T) {
	binaryPath := getBinaryPath(t)

	output, err := exec.Command(binaryPath, "process").CombinedOutput()
	assert.Error(t, err)
	assert.Contains(t, string(output), `required flag(s) "location", "template" not set`)
}

func TestExtractCommand_MissingFile(t *testing.T) {
	binaryPath := getBinaryPath(t)

	output, err := exec.Command(binaryPath, "extract", "does-not-exist.pdf", "--template", "contracts").CombinedOutput()
	assert.Error(t, err)
	assert.Contains(t, string(output), "cannot read does-not-exist.pdf")
}
