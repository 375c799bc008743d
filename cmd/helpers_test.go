// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/lancet/internal/observability"
)

// vulnerableSrc flows scanner input into a process launch, which the builtin
// rules flag as a high severity sink hit.
const vulnerableSrc = `package com.example;

import java.util.Scanner;

class Launcher {
    void start(Scanner in) {
        String cmd = in.nextLine();
        ProcessBuilder pb = new ProcessBuilder(cmd);
        pb.start();
    }
}
`

// cleanJavaSrc has no taint sources at all.
const cleanJavaSrc = `package com.example;

class Calc {
    int add(int a, int b) {
        return a + b;
    }
}
`

// resetCLIState clears the global viper and logger state the command tree
// leans on, before and after each test.
func resetCLIState(t *testing.T) {
	t.Helper()
	reset := func() {
		viper.Reset()
		observability.ResetForTest()
		cfgFile = ""
	}
	reset()
	t.Cleanup(reset)
}

// executeCommand runs a fresh command tree and captures its cobra output.
// Logging is forced quiet so test output stays readable.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeSource drops a source file under dir and returns its path.
func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// seedRepo creates a git repository containing the given files in a single
// commit and returns the repo path with the commit hash.
func seedRepo(t *testing.T, files map[string]string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		writeSource(t, dir, name, content)
		_, err = wt.Add(name)
		require.NoError(t, err)
	}
	hash, err := wt.Commit("seed", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, hash.String()
}
