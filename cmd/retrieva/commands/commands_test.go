package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// setupTestEnv writes a config file using backend for the session table
// and returns its path.
func setupTestEnv(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RETRIEVA_DATA_DIR", "")

	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`data_dir: %s
metadata:
  backend: %s
chunk:
  size: 40
  overlap: 0
`, filepath.Join(dir, "data"), backend)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(rOut)
	errBuf.ReadFrom(rErr)

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		stderr += err.Error()
	}

	resetFlags(rootCmd)
	return
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

const manual = "The warranty lasts two years from purchase. " +
	"Returns are accepted within thirty days. " +
	"Support is available by email on weekdays."

func testSessionLifecycle(t *testing.T, backend string) {
	cfg := setupTestEnv(t, backend)
	doc := writeDoc(t, "manual.txt", manual)

	stdout, stderr, code := runCmd(t, "--config", cfg, "upload", doc, "-o", "json")
	if code != 0 {
		t.Fatalf("upload failed: %s", stderr)
	}
	up := decodeJSON[uploadResult](t, stdout)
	if up.SessionID == "" || up.Filename != "manual.txt" || up.ChunksAdded < 3 {
		t.Fatalf("upload result = %+v", up)
	}

	stdout, stderr, code = runCmd(t, "--config", cfg, "sessions", "list", "-o", "json")
	if code != 0 {
		t.Fatalf("sessions list failed: %s", stderr)
	}
	list := decodeJSON[[]map[string]any](t, stdout)
	if len(list) != 1 || list[0]["id"] != up.SessionID || list[0]["name"] != "manual.txt" {
		t.Fatalf("sessions = %v", list)
	}

	// A new process sees the index written by upload.
	stdout, stderr, code = runCmd(t, "--config", cfg, "query", "how long is the warranty",
		"--session", up.SessionID, "-k", "1", "--no-answer", "-o", "json")
	if code != 0 {
		t.Fatalf("query failed: %s", stderr)
	}
	q := decodeJSON[queryResult](t, stdout)
	if len(q.Context) != 1 || !strings.Contains(q.Context[0].Text, "warranty") || q.Answer != "" {
		t.Fatalf("query result = %+v", q)
	}

	stdout, stderr, code = runCmd(t, "--config", cfg, "sessions", "delete", up.SessionID, "-o", "json")
	if code != 0 {
		t.Fatalf("delete failed: %s", stderr)
	}
	d := decodeJSON[deleteResult](t, stdout)
	if d.Status != "deleted" || d.SessionID != up.SessionID || d.Warning != "" {
		t.Fatalf("delete result = %+v", d)
	}

	_, stderr, code = runCmd(t, "--config", cfg, "sessions", "delete", up.SessionID)
	if code == 0 || !strings.Contains(stderr, "not found") {
		t.Fatalf("second delete: exit %d, stderr %s", code, stderr)
	}
	_, stderr, code = runCmd(t, "--config", cfg, "query", "x", "-s", up.SessionID, "--no-answer")
	if code == 0 || !strings.Contains(stderr, "not found") {
		t.Fatalf("query deleted session: exit %d, stderr %s", code, stderr)
	}
}

func TestSessionLifecycleBadger(t *testing.T) {
	testSessionLifecycle(t, "badger")
}

func TestSessionLifecycleBolt(t *testing.T) {
	testSessionLifecycle(t, "bolt")
}

func TestUploadReplacesSession(t *testing.T) {
	// The memory backend does not outlive one command.
	cfg := setupTestEnv(t, "bolt")

	stdout, stderr, code := runCmd(t, "--config", cfg, "upload", writeDoc(t, "a.txt", manual), "-o", "json")
	if code != 0 {
		t.Fatalf("upload failed: %s", stderr)
	}
	first := decodeJSON[uploadResult](t, stdout)

	stdout, stderr, code = runCmd(t, "--config", cfg, "upload", writeDoc(t, "b.txt", "short note"),
		"--session", first.SessionID, "-o", "json")
	if code != 0 {
		t.Fatalf("second upload failed: %s", stderr)
	}
	second := decodeJSON[uploadResult](t, stdout)
	if second.SessionID != first.SessionID || second.ChunksAdded != 1 {
		t.Fatalf("second upload = %+v", second)
	}

	stdout, _, _ = runCmd(t, "--config", cfg, "query", "warranty", "-s", first.SessionID, "-k", "5", "--no-answer", "-o", "json")
	q := decodeJSON[queryResult](t, stdout)
	if len(q.Context) != 1 || q.Context[0].Text != "short note" || q.Context[0].Source != "b.txt" {
		t.Fatalf("context after replace = %+v", q.Context)
	}
}

func TestUploadErrors(t *testing.T) {
	cfg := setupTestEnv(t, "bolt")

	_, stderr, code := runCmd(t, "--config", cfg, "upload", writeDoc(t, "image.png", "\x89PNG"))
	if code == 0 || !strings.Contains(stderr, "unsupported file type") {
		t.Errorf("png upload: exit %d, stderr %s", code, stderr)
	}
	_, stderr, code = runCmd(t, "--config", cfg, "upload", filepath.Join(t.TempDir(), "missing.txt"))
	if code == 0 {
		t.Errorf("missing file upload succeeded: %s", stderr)
	}
	_, stderr, code = runCmd(t, "--config", cfg, "upload", writeDoc(t, "a.txt", "hello"), "--session", "nope")
	if code == 0 || !strings.Contains(stderr, "not found") {
		t.Errorf("unknown session upload: exit %d, stderr %s", code, stderr)
	}

	stdout, _, _ := runCmd(t, "--config", cfg, "sessions", "list", "-o", "json")
	if list := decodeJSON[[]any](t, stdout); len(list) != 0 {
		t.Errorf("failed uploads created sessions: %v", list)
	}
}

func TestQueryRequiresProvider(t *testing.T) {
	cfg := setupTestEnv(t, "bolt")
	stdout, _, _ := runCmd(t, "--config", cfg, "upload", writeDoc(t, "a.txt", manual), "-o", "json")
	up := decodeJSON[uploadResult](t, stdout)

	_, stderr, code := runCmd(t, "--config", cfg, "query", "warranty", "-s", up.SessionID)
	if code == 0 || !strings.Contains(stderr, "GEMINI_API_KEY") {
		t.Errorf("query without provider: exit %d, stderr %s", code, stderr)
	}
	_, stderr, code = runCmd(t, "--config", cfg, "query", "warranty")
	if code == 0 || !strings.Contains(stderr, "--session") {
		t.Errorf("query without session: exit %d, stderr %s", code, stderr)
	}
}

func TestSessionsListTable(t *testing.T) {
	cfg := setupTestEnv(t, "bolt")

	stdout, _, code := runCmd(t, "--config", cfg, "sessions", "list", "-o", "table")
	if code != 0 || !strings.Contains(stdout, "No sessions.") {
		t.Fatalf("empty list: exit %d, stdout %s", code, stdout)
	}

	runCmd(t, "--config", cfg, "upload", writeDoc(t, "guide.txt", manual))
	stdout, _, code = runCmd(t, "--config", cfg, "sessions", "ls", "-o", "table")
	if code != 0 || !strings.Contains(stdout, "guide.txt") || !strings.Contains(stdout, "NAME") {
		t.Fatalf("table list: exit %d, stdout %s", code, stdout)
	}
}

func TestConfigCommands(t *testing.T) {
	cfg := setupTestEnv(t, "memory")
	t.Setenv("GEMINI_API_KEY", "AIzaSyExampleExampleKey")

	stdout, stderr, code := runCmd(t, "--config", cfg, "config", "show", "-o", "json")
	if code != 0 {
		t.Fatalf("config show failed: %s", stderr)
	}
	if strings.Contains(stdout, "AIzaSyExampleExampleKey") || !strings.Contains(stdout, "AIza") {
		t.Errorf("key not masked: %s", stdout)
	}
	if !strings.Contains(stdout, `"backend": "memory"`) {
		t.Errorf("config show = %s", stdout)
	}

	stdout, _, code = runCmd(t, "--config", cfg, "config", "path")
	if code != 0 || !strings.Contains(stdout, cfg) {
		t.Errorf("config path: exit %d, stdout %s", code, stdout)
	}

	_, stderr, code = runCmd(t, "--config", cfg, "config", "show", "-o", "xml")
	if code == 0 || !strings.Contains(stderr, "unsupported output format") {
		t.Errorf("bad format: exit %d, stderr %s", code, stderr)
	}
}
