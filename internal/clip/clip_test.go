package clip

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stub(t *testing.T, native error, out io.Writer, isTerm bool) {
	t.Helper()
	origNative, origOut, origTemp := nativeWriteAll, osc52Out, tempDir
	dir := t.TempDir()
	nativeWriteAll = func(string) error { return native }
	osc52Out = func() (io.Writer, bool) { return out, isTerm }
	tempDir = func() string { return dir }
	t.Cleanup(func() {
		nativeWriteAll, osc52Out, tempDir = origNative, origOut, origTemp
	})
}

func TestWriteAll_NativeSuccess(t *testing.T) {
	var buf bytes.Buffer
	stub(t, nil, &buf, true)

	res, err := WriteAll("### Final Diagnosis:\n\nok")
	require.NoError(t, err)
	assert.Equal(t, MethodNative, res.Method)
	assert.Zero(t, buf.Len())
}

func TestWriteAll_OSC52Fallback(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("STY", "")
	var buf bytes.Buffer
	stub(t, errors.New("no clipboard"), &buf, true)

	res, err := WriteAll("report")
	require.NoError(t, err)
	assert.Equal(t, MethodOSC52, res.Method)
	assert.True(t, strings.HasPrefix(buf.String(), "\x1b]52;c;"))
}

func TestWriteAll_OSC52Tmux(t *testing.T) {
	t.Setenv("TMUX", "/tmp/tmux-1000/default,1,0")
	var buf bytes.Buffer
	stub(t, errors.New("no clipboard"), &buf, true)

	_, err := WriteAll("report")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "\x1bPtmux;"))
}

func TestWriteAll_FileFallback(t *testing.T) {
	stub(t, errors.New("no clipboard"), io.Discard, false)

	res, err := WriteAll("Anxiety disorder")
	require.NoError(t, err)
	assert.Equal(t, MethodFile, res.Method)
	assert.Contains(t, filepath.Base(res.FilePath), "quorum-dx-report-")

	data, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "Anxiety disorder", string(data))
	assert.Contains(t, res.Describe(), res.FilePath)
}

func TestWriteAll_TooLargeForOSC52(t *testing.T) {
	var buf bytes.Buffer
	stub(t, errors.New("no clipboard"), &buf, true)

	res, err := WriteAll(strings.Repeat("x", osc52LimitBytes+1))
	require.NoError(t, err)
	assert.Equal(t, MethodFile, res.Method)
	assert.Zero(t, buf.Len())
}

func TestWriteAll_Empty(t *testing.T) {
	stub(t, nil, io.Discard, true)
	_, err := WriteAll("")
	assert.Error(t, err)
}

func TestWriteAll_TempDirMissing(t *testing.T) {
	stub(t, errors.New("no clipboard"), io.Discard, false)
	tempDir = func() string { return filepath.Join(t.TempDir(), "missing", "dir") }

	_, err := WriteAll("report")
	assert.Error(t, err)
}

func TestResult_Describe(t *testing.T) {
	assert.Equal(t, "report copied to the clipboard", Result{Method: MethodNative}.Describe())
	assert.Equal(t, "report sent to the terminal clipboard", Result{Method: MethodOSC52}.Describe())
	assert.Equal(t, "report not copied", Result{}.Describe())
}
