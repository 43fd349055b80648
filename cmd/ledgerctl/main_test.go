package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestShareCommands(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("LEDGER_PATH", "")
	t.Setenv("LEDGER_COMMIT_LOG", "")

	for _, backend := range []string{BackendBolt, BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			common := []string{
				"--config", filepath.Join(dir, "none.yaml"),
				"--backend", backend,
				"--path", filepath.Join(dir, "state"),
			}
			exec := func(args ...string) string {
				t.Helper()
				out, err := run(t, append(args, common...)...)
				if err != nil {
					t.Fatalf("** %v failed: %v\n%s", args, err, out)
				}
				return out
			}

			exec("share", "put", "acme", "bob", "100")
			exec("share", "put", "acme", "alice", "50", "--class", "B")
			exec("share", "put", "globex", "alice", "7")
			exec("share", "put", "acme", "bob", "120")

			deepEqual(t, exec("share", "get", "acme", "bob"), "acme\tbob\t120\n")
			deepEqual(t, exec("share", "list", "acme"), "acme\talice\t50\tB\nacme\tbob\t120\n")
			deepEqual(t, strings.Count(exec("share", "list"), "\n"), 3)
			if out := exec("info"); !strings.HasPrefix(out, "height=4 digest=") {
				t.Errorf("** info = %q", out)
			}
			if out := exec("dump"); !strings.Contains(out, "state (3 keys,") {
				t.Errorf("** dump = %q", out)
			}
			if out := exec("info", "--metrics"); !strings.Contains(out, "ledger_worldstate_height 4\n") {
				t.Errorf("** metrics = %q", out)
			}

			_, err := run(t, append([]string{"share", "get", "acme", "carol"}, common...)...)
			if err == nil || !strings.Contains(err.Error(), "carol holds no shares of acme") {
				t.Errorf("** get of missing share: %v", err)
			}
			_, err = run(t, append([]string{"share", "put", "acme", "bob", "lots"}, common...)...)
			if err == nil {
				t.Errorf("** put with a bad quantity succeeded")
			}
			_, err = run(t, append([]string{"share", "get", "acme", "bob\xff"}, common...)...)
			if err == nil || !strings.Contains(err.Error(), "not valid UTF-8") {
				t.Errorf("** get with an invalid holder: %v", err)
			}
		})
	}
}

func TestLogCommand(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("LEDGER_PATH", "")
	t.Setenv("LEDGER_COMMIT_LOG", "")

	dir := t.TempDir()
	common := []string{
		"--config", filepath.Join(dir, "none.yaml"),
		"--path", filepath.Join(dir, "state.db"),
		"--commit-log", filepath.Join(dir, "commits.log"),
	}
	for _, args := range [][]string{
		{"share", "put", "acme", "bob", "100"},
		{"share", "put", "acme", "bob", "90"},
	} {
		if out, err := run(t, append(args, common...)...); err != nil {
			t.Fatalf("** %v failed: %v\n%s", args, err, out)
		}
	}

	out, err := run(t, append([]string{"log", "-v"}, common...)...)
	if err != nil {
		t.Fatalf("** log failed: %v\n%s", err, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	deepEqual(t, len(lines), 4)
	if !strings.HasPrefix(lines[0], "1\t") || !strings.HasPrefix(lines[2], "2\t") {
		t.Errorf("** log = %q", out)
	}
	if !strings.Contains(lines[1], "com.divvy.sharelist") {
		t.Errorf("** log lacks the written key: %q", lines[1])
	}

	_, err = run(t, "log", "--config", filepath.Join(dir, "none.yaml"))
	if err == nil || !strings.Contains(err.Error(), "no commit log configured") {
		t.Errorf("** log without a commit log: %v", err)
	}
}

func TestInvalidBackendFlag(t *testing.T) {
	_, err := run(t, "info", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--backend", "sqlite")
	if err == nil || !strings.Contains(err.Error(), "invalid backend") {
		t.Errorf("** got %v", err)
	}
}
