package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd()
	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func TestCLIEncodeDecodeJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte{0xFF}, 1<<16), 0o644))
	dest := filepath.Join(dir, "out.sbx")

	stdout, _, err := runCLI(t, "encode", "--json", "--sbx-version", "1", "--sbx-out", dest, src)
	require.NoError(t, err)
	var encReport map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &encReport))
	require.Nil(t, encReport["error"])

	recovered := filepath.Join(dir, "recovered.bin")
	stdout, _, err = runCLI(t, "decode", "--json", "--sbx-out", recovered, dest)
	require.NoError(t, err)
	var decReport map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &decReport))
	require.Nil(t, decReport["error"])

	got, err := os.ReadFile(recovered)
	require.NoError(t, err)
	require.True(t, bytes.Equal(bytes.Repeat([]byte{0xFF}, 1<<16), got))
}

func TestCLICalcEmptyInput(t *testing.T) {
	stdout, _, err := runCLI(t, "calc", "--json", "--sbx-version", "17", "--rs-data", "10", "--rs-parity", "2", "--burst", "0", "--in-file-size", "0")
	require.NoError(t, err)
	var r struct {
		Stats struct {
			BytesOut int64 `json:"bytesOut"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &r))
	require.EqualValues(t, 3*512, r.Stats.BytesOut)
}

func TestCLIEncodeFailsWithoutForceOnExistingOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dest := filepath.Join(dir, "out.sbx")
	_, _, err := runCLI(t, "encode", "--sbx-out", dest, src)
	require.NoError(t, err)

	_, _, err = runCLI(t, "encode", "--sbx-out", dest, src)
	require.Error(t, err)

	_, _, err = runCLI(t, "encode", "-f", "--sbx-out", dest, src)
	require.NoError(t, err)
}

func TestCLIUpdateRenamesStoredName(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))
	dest := filepath.Join(dir, "out.sbx")
	_, _, err := runCLI(t, "encode", "--sbx-out", dest, src)
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "update", "--json", "-y", "--snm", "NEWNAME", dest)
	require.NoError(t, err)
	var updReport map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &updReport))
	require.Nil(t, updReport["error"])

	stdout, _, err = runCLI(t, "show", "--json", dest)
	require.NoError(t, err)
	var showReport map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &showReport))
	blocks := showReport["blocks"].([]interface{})
	require.NotEmpty(t, blocks)
	first := blocks[0].(map[string]interface{})
	require.Equal(t, "NEWNAME", first["sbxContainerName"])
}
