package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLogging(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		CloseAll()
		configMu.Lock()
		config = Config{}
		configMu.Unlock()
		loggersMu.Lock()
		logsDir = ""
		loggersMu.Unlock()
	})
}

func TestInitializeDisabledWritesNothing(t *testing.T) {
	resetLogging(t)
	root := t.TempDir()

	if err := Initialize(root, Config{DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	Tactile("should not be written")

	if _, err := os.Stat(filepath.Join(root, ".lintgate", "logs")); !os.IsNotExist(err) {
		t.Fatalf("expected no logs directory, stat err = %v", err)
	}
	if IsDebugMode() {
		t.Fatal("expected debug mode off")
	}
}

func TestInitializeRequiresRoot(t *testing.T) {
	resetLogging(t)
	if err := Initialize("", Config{}); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestCategoryFilesWritten(t *testing.T) {
	resetLogging(t)
	root := t.TempDir()

	if err := Initialize(root, Config{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Tactile("running %s", "flake8")
	SuiteWarn("invocation %s failed", "mypy_pkg")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	for cat, want := range map[Category]string{
		CategoryTactile: "running flake8",
		CategorySuite:   "invocation mypy_pkg failed",
	} {
		data, err := os.ReadFile(filepath.Join(root, ".lintgate", "logs", date+"_"+string(cat)+".log"))
		if err != nil {
			t.Fatalf("read %s log: %v", cat, err)
		}
		if !strings.Contains(string(data), want) {
			t.Errorf("%s log missing %q:\n%s", cat, want, data)
		}
	}
}

func TestCategoryFilter(t *testing.T) {
	resetLogging(t)
	root := t.TempDir()

	cfg := Config{DebugMode: true, Categories: map[string]bool{"watch": false}}
	if err := Initialize(root, cfg); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if IsCategoryEnabled(CategoryWatch) {
		t.Error("watch category should be disabled")
	}
	if !IsCategoryEnabled(CategoryHistory) {
		t.Error("unlisted categories default to enabled")
	}
}

func TestLevelFiltering(t *testing.T) {
	resetLogging(t)
	root := t.TempDir()

	if err := Initialize(root, Config{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	HistoryDebug("hidden debug line")
	HistoryWarn("visible warn line")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(root, ".lintgate", "logs", date+"_history.log"))
	if err != nil {
		t.Fatalf("read history log: %v", err)
	}
	if strings.Contains(string(data), "hidden debug line") {
		t.Error("debug line written at warn level")
	}
	if !strings.Contains(string(data), "visible warn line") {
		t.Error("warn line missing")
	}
}

func TestTimer(t *testing.T) {
	resetLogging(t)
	timer := StartTimer(CategorySuite, "noop")
	if d := timer.StopWithThreshold(time.Hour); d < 0 {
		t.Fatalf("negative duration: %v", d)
	}
}
