package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fakeyudi/printrescue/internal/checkpoint"
	"github.com/fakeyudi/printrescue/internal/recovery"
)

const scenarioDoc = "M104 S200\n;flag\nG1 Z5\nG1 X1\nG1 X2\nG1 X3\n"

// executeCommand runs root with args and returns combined stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// isolate points every state file at a temp dir and returns it.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	t.Setenv("PRINTRESCUE_LOG_LEVEL", "")
	t.Setenv("PRINTRESCUE_LOG_FORMAT", "")
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })
	return tmp
}

func defaultStore(t *testing.T) checkpoint.Store {
	t.Helper()
	path, err := checkpoint.DefaultPath()
	if err != nil {
		t.Fatal(err)
	}
	store, err := checkpoint.NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func writeJob(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "part.gcode")
	if err := os.WriteFile(path, []byte(scenarioDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStatusWithoutCheckpoint(t *testing.T) {
	isolate(t)

	out, err := executeCommand(rootCmd, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "no checkpoint") {
		t.Errorf("expected %q in output, got:\n%s", "no checkpoint", out)
	}
}

func TestStatusShowsCheckpoint(t *testing.T) {
	isolate(t)
	if err := defaultStore(t).Save(4096); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(rootCmd, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Checkpoint: 4096") {
		t.Errorf("expected checkpoint in output, got:\n%s", out)
	}
	if !strings.Contains(out, checkpoint.FileName) {
		t.Errorf("expected checkpoint path in output, got:\n%s", out)
	}
}

func TestCheckpointFlagOverridesDefault(t *testing.T) {
	tmp := isolate(t)
	custom := filepath.Join(tmp, "custom", "offset.txt")
	store, err := checkpoint.NewStore(custom)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(77); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(rootCmd, "status", "--checkpoint", custom)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Checkpoint: 77") {
		t.Errorf("expected custom checkpoint, got:\n%s", out)
	}
}

func TestProjectConfigOverridesGlobal(t *testing.T) {
	tmp := isolate(t)
	globalStore := filepath.Join(tmp, "global", "offset.txt")
	projectStore := filepath.Join(tmp, "project", "offset.txt")
	for path, off := range map[string]uint64{globalStore: 11, projectStore: 22} {
		store, err := checkpoint.NewStore(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Save(off); err != nil {
			t.Fatal(err)
		}
	}

	cfgDir := filepath.Join(tmp, ".config", "printrescue")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig := func(path, checkpointPath string) {
		t.Helper()
		body := `{"checkpoint_path": "` + filepath.ToSlash(checkpointPath) + `"}`
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeConfig(filepath.Join(cfgDir, "config.json"), globalStore)
	projectDir := filepath.Join(tmp, "work")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(filepath.Join(projectDir, ".printrescue.json"), projectStore)
	t.Chdir(projectDir)

	out, err := executeCommand(rootCmd, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Checkpoint: 22") {
		t.Errorf("expected the project checkpoint, got:\n%s", out)
	}
}

func TestClear(t *testing.T) {
	isolate(t)
	store := defaultStore(t)
	if err := store.Save(123); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(rootCmd, "clear")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !strings.Contains(out, "checkpoint cleared") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if _, ok := store.Load(); ok {
		t.Error("checkpoint should be gone")
	}
}

func TestRecoverUsesStoredCheckpoint(t *testing.T) {
	tmp := isolate(t)
	job := writeJob(t, tmp)
	store := defaultStore(t)
	if err := store.Save(34); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(rootCmd, "recover", job, "--feed", "1500")
	if err != nil {
		t.Fatalf("recover: %v\n%s", err, out)
	}

	got, err := os.ReadFile(recovery.RecoveryPath(job))
	if err != nil {
		t.Fatal(err)
	}
	want := "M104 S200\n;flag\nG1 Z5\nG1 X1\nG1 X2\nG1 F1500\nG1 X3\n"
	if string(got) != want {
		t.Errorf("recovery file =\n%q\nwant\n%q", got, want)
	}
	if !strings.Contains(out, "reCover_part.gcode") {
		t.Errorf("output should name the recovery file:\n%s", out)
	}
	if _, ok := store.Load(); ok {
		t.Error("checkpoint should be cleared after recover")
	}

	// The finalization is listed by history.
	out, err = executeCommand(rootCmd, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "written") || !strings.Contains(out, "offset 34") {
		t.Errorf("history output missing record:\n%s", out)
	}
}

func TestRecoverWithoutCheckpointFails(t *testing.T) {
	tmp := isolate(t)
	job := writeJob(t, tmp)

	_, err := executeCommand(rootCmd, "recover", job)
	if err == nil || !strings.Contains(err.Error(), "--offset") {
		t.Fatalf("expected error suggesting --offset, got %v", err)
	}
	if _, err := os.Stat(recovery.BackupPath(job)); !os.IsNotExist(err) {
		t.Error("nothing should be written without an offset")
	}
}

func TestRecoverExplicitOffsetAtEnd(t *testing.T) {
	tmp := isolate(t)
	job := writeJob(t, tmp)

	out, err := executeCommand(rootCmd, "recover", job, "--offset", "1000")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !strings.Contains(out, "Nothing left to print") {
		t.Errorf("expected nothing-to-resume message, got:\n%s", out)
	}
	if _, err := os.Stat(recovery.RecoveryPath(job)); !os.IsNotExist(err) {
		t.Error("no recovery file expected for an empty remainder")
	}

	out, err = executeCommand(rootCmd, "recover", job, "--offset", "1000", "--write-empty")
	if err != nil {
		t.Fatalf("recover --write-empty: %v", err)
	}
	if _, err := os.Stat(recovery.RecoveryPath(job)); err != nil {
		t.Errorf("--write-empty should write the file: %v\n%s", err, out)
	}
}

func TestRecoverExplicitZeroOffsetReplaysWholeFile(t *testing.T) {
	tmp := isolate(t)
	job := writeJob(t, tmp)

	out, err := executeCommand(rootCmd, "recover", job, "--offset", "0", "--feed", "1500")
	if err != nil {
		t.Fatalf("recover: %v\n%s", err, out)
	}
	got, err := os.ReadFile(recovery.RecoveryPath(job))
	if err != nil {
		t.Fatalf("--offset 0 should write a recovery file: %v\n%s", err, out)
	}
	want := "M104 S200\n;flag\nG1 F1500\n" + scenarioDoc
	if string(got) != want {
		t.Errorf("recovery file =\n%q\nwant\n%q", got, want)
	}
}

func TestHistoryEmpty(t *testing.T) {
	isolate(t)

	out, err := executeCommand(rootCmd, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "no recoveries recorded") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	isolate(t)

	_, err := executeCommand(rootCmd, "status", "--url", "ftp://printer")
	if err == nil || !strings.Contains(err.Error(), "moonraker_url") {
		t.Fatalf("expected invalid moonraker_url error, got %v", err)
	}

	resetFlags(rootCmd)
	_, err = executeCommand(rootCmd, "status", "--log-level", "loud")
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("expected invalid log_level error, got %v", err)
	}
}
