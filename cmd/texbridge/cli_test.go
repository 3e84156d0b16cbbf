package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/tool/texcount"
	"github.com/caffeineduck/texbridge/vfs"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIHelp(t *testing.T) {
	output, _, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"texbridge",
		"count",
		"format",
		"diff",
		"expand",
		"indent",
		"exec",
		"repl",
		"serve",
		"scripts",
		"--backend",
		"--exec-timeout",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIServeHelp(t *testing.T) {
	output, _, err := executeCommand(rootCmd, "serve", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"--port", "/count", "/diff", "/exec", "/health"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("serve help output should contain %q", phrase)
		}
	}
}

func TestCLIReplHelp(t *testing.T) {
	output, _, err := executeCommand(rootCmd, "repl", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"--history", "Command history", ":load", ":files"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("repl help output should contain %q", phrase)
		}
	}
}

func TestCLICountJSON(t *testing.T) {
	scripts := writeScripts(t)
	doc := writeFile(t, "paper.tex", "alpha beta gamma")

	stdout, stderr, err := executeCommand(rootCmd, scriptArgs(scripts, "count", "--json", doc)...)
	if err != nil {
		t.Fatalf("count: %v\n%s", err, stderr)
	}

	var summary texcount.Summary
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if summary.Words != 3 || summary.Headers != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCLIDiff(t *testing.T) {
	scripts := writeScripts(t)
	oldDoc := writeFile(t, "old.tex", "before")
	newDoc := writeFile(t, "new.tex", "after")

	stdout, stderr, err := executeCommand(rootCmd, scriptArgs(scripts, "diff", "--type", "CFONT", oldDoc, newDoc)...)
	if err != nil {
		t.Fatalf("diff: %v\n%s", err, stderr)
	}
	if stdout != "\\DIFdel{before}\\DIFadd{after}\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestCLIDiffRejectsUnknownType(t *testing.T) {
	_, _, err := executeCommand(rootCmd, "diff", "--type", "SPARKLES", "a.tex", "b.tex")
	if err == nil || !strings.Contains(err.Error(), "SPARKLES") {
		t.Errorf("expected invalid type error, got %v", err)
	}
	t.Cleanup(func() { diffCmd.Flags().Set("type", "") })
}

func TestCLIExecStagesInputs(t *testing.T) {
	scripts := writeScripts(t)
	local := writeFile(t, "in.tex", "x")
	clearRepeatable(t, execCmd, "input")

	stdout, stderr, err := executeCommand(rootCmd, scriptArgs(scripts, "exec", "--input", "/tmp/in.tex="+local, "--", "/echo.pl", "-brief", "/tmp/in.tex")...)
	if err != nil {
		t.Fatalf("exec: %v\n%s", err, stderr)
	}
	if stdout != "-brief /tmp/in.tex\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestCLIExecExitCode(t *testing.T) {
	scripts := writeScripts(t)

	_, stderr, err := executeCommand(rootCmd, scriptArgs(scripts, "exec", "--", "/fail.pl")...)
	if err == nil || !strings.Contains(err.Error(), "exit code 3") {
		t.Errorf("expected exit code error, got %v", err)
	}
	if !strings.Contains(stderr, "Missing $ inserted") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestCLIScriptsPull(t *testing.T) {
	scripts := writeScripts(t)
	dst := t.TempDir()

	stdout, stderr, err := executeCommand(rootCmd, "--scripts", scripts, "scripts", "pull", "--dir", dst, "texcount")
	if err != nil {
		t.Fatalf("pull: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, "/Algorithm/Diff.pm") {
		t.Errorf("stdout = %q", stdout)
	}
	data, err := os.ReadFile(filepath.Join(dst, "texcount.pl"))
	if err != nil || string(data) != testScripts["texcount.pl"] {
		t.Errorf("texcount.pl = %q (%v)", data, err)
	}

	stdout, _, err = executeCommand(rootCmd, "--scripts", scripts, "scripts", "pull", "--dir", dst, "texcount")
	if err != nil || !strings.Contains(stdout, "Up to date.") {
		t.Errorf("second pull = %q (%v)", stdout, err)
	}
}

func TestScriptPaths(t *testing.T) {
	got, err := scriptPaths([]string{"texcount", "latexdiff", "texcount"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/texcount.pl", "/Algorithm/Diff.pm", "/latexdiff.pl"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("scriptPaths() = %q, want %q", got, want)
	}

	if _, err := scriptPaths([]string{"bibtex"}); err == nil {
		t.Error("expected an error for an unknown tool")
	}
}

func TestParsePairs(t *testing.T) {
	pairs, err := parsePairs("input", []string{"/tmp/a.tex=./a.tex", "/b=c=d"})
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]string{{"/tmp/a.tex", "./a.tex"}, {"/b", "c=d"}}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("parsePairs() = %q, want %q", pairs, want)
	}

	for _, bad := range []string{"noequals", "=value", "name="} {
		if _, err := parsePairs("input", []string{bad}); err == nil {
			t.Errorf("parsePairs(%q) should fail", bad)
		}
	}
}

func TestMissingScripts(t *testing.T) {
	staged := bridge.Invocation{
		Argv:   []string{"/run.pl"},
		Inputs: []vfs.File{{Path: "/run.pl", Content: "1;"}},
	}
	if got := missingScripts(staged); got != nil {
		t.Errorf("staged script should not be fetched, got %q", got)
	}
	if got := missingScripts(bridge.Invocation{Argv: []string{"/texcount.pl"}}); !reflect.DeepEqual(got, []string{"/texcount.pl"}) {
		t.Errorf("missingScripts() = %q", got)
	}
}
