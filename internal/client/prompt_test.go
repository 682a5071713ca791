package client

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeWith(t *testing.T, input string) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString(input)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	t.Cleanup(func() { r.Close() })
	return r
}

func TestPromptPassword_NotATerminal(t *testing.T) {
	var out bytes.Buffer
	pw, err := PromptPassword(pipeWith(t, "hunter2\nignored\n"), &out, "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
	assert.Equal(t, "Password: ", out.String())
}

func TestPromptPassword_NoTrailingNewline(t *testing.T) {
	pw, err := PromptPassword(pipeWith(t, "last"), &bytes.Buffer{}, "")
	require.NoError(t, err)
	assert.Equal(t, "last", pw)
}

func TestPromptPassword_Empty(t *testing.T) {
	_, err := PromptPassword(pipeWith(t, ""), &bytes.Buffer{}, "")
	assert.Error(t, err)
}

func TestPromptPassword_Terminal(t *testing.T) {
	origTerm, origRead := isTerminal, readPassword
	t.Cleanup(func() { isTerminal, readPassword = origTerm, origRead })

	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("s3cret"), nil }

	var out bytes.Buffer
	pw, err := PromptPassword(pipeWith(t, ""), &out, "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Equal(t, "Password: \n", out.String())

	readPassword = func(int) ([]byte, error) { return nil, errors.New("tty gone") }
	_, err = PromptPassword(pipeWith(t, ""), &out, "")
	assert.Error(t, err)
}
