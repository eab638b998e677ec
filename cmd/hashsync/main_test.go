package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hashsync/internal/api"
	"hashsync/internal/merge"
	"hashsync/internal/resolver"
	"hashsync/internal/seed"
)

const testCatalog = `
kennels:
  - short_name: NYCH3
    full_name: New York City Hash House Harriers
    region: New York City
    aliases: [NYC, "New York H3"]
  - short_name: BFM
    full_name: Ben Franklin Mob H3
    region: Philadelphia
sources:
  - name: hashnyc.com
    url: https://hashnyc.com/calendar
    type: json_feed
    trust_level: 8
    config:
      default_tag: NYCH3
    kennels: [NYCH3]
`

type cliTestEnv struct {
	baseDir     string
	configPath  string
	catalogPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HASHSYNC_API_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("NTFY_TOPIC", "")

	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf("[paths]\ndata_dir = %q\nlog_dir = %q\napi_token = %q\n",
		filepath.Join(base, "data"), filepath.Join(base, "logs"), "s3cret")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	catalogPath := filepath.Join(base, "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return &cliTestEnv{baseDir: base, configPath: configPath, catalogPath: catalogPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func decodeJSON[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return v
}

func TestSeedThenListAndResolve(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"--json", "seed", env.catalogPath}, env.configPath)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	report := decodeJSON[seed.Report](t, out)
	if report.KennelsCreated != 2 || report.SourcesCreated != 1 || report.LinksCreated != 1 {
		t.Fatalf("unexpected seed report %+v", report)
	}

	out, _, err = runCLI(t, []string{"--json", "kennels", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("kennels list: %v", err)
	}
	kennels := decodeJSON[api.KennelListResponse](t, out)
	if len(kennels.Kennels) != 2 {
		t.Fatalf("expected 2 kennels, got %+v", kennels.Kennels)
	}

	out, _, err = runCLI(t, []string{"--json", "resolve", "new york h3", "Nowhere H3"}, env.configPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	results := decodeJSON[[]resolver.Result](t, out)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	if !results[0].Matched || results[0].ShortName != "NYCH3" {
		t.Fatalf("alias did not resolve: %+v", results[0])
	}
	if results[1].Matched {
		t.Fatalf("unknown tag matched: %+v", results[1])
	}

	out, _, err = runCLI(t, []string{"sources", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("sources list: %v", err)
	}
	requireContains(t, out, "hashnyc.com")
}

func TestStatusReportsCounts(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"seed", env.catalogPath}, env.configPath); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out, _, err := runCLI(t, []string{"--json", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	stats := decodeJSON[api.StoreStats](t, out)
	if stats.Kennels != 2 || stats.Aliases != 2 || stats.Sources != 1 || stats.ActiveAlerts != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMergePreviewAndSelfMerge(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"seed", env.catalogPath}, env.configPath); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, _, err := runCLI(t, []string{"--json", "merge", "BFM", "NYCH3", "--preview"}, env.configPath)
	if err != nil {
		t.Fatalf("merge preview: %v", err)
	}
	res := decodeJSON[merge.Result](t, out)
	if !res.Success || res.Preview == nil {
		t.Fatalf("unexpected preview %+v", res)
	}
	if res.Preview.Source.ShortName != "BFM" || res.Preview.Target.ShortName != "NYCH3" {
		t.Fatalf("unexpected preview sides %+v", res.Preview)
	}

	if _, _, err := runCLI(t, []string{"merge", "NYCH3", "nych3"}, env.configPath); err == nil {
		t.Fatal("expected self merge to fail")
	}
}

func TestAlertsCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"alerts", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("alerts list: %v", err)
	}
	requireContains(t, out, "No alerts")

	if _, _, err := runCLI(t, []string{"alerts", "ack", "abc"}, env.configPath); err == nil {
		t.Fatal("expected invalid id error")
	}
	if _, _, err := runCLI(t, []string{"alerts", "show", "99"}, env.configPath); err == nil {
		t.Fatal("expected missing alert error")
	}
	if _, _, err := runCLI(t, []string{"alerts", "list", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown status error")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "********")
	if strings.Contains(out, "s3cret") {
		t.Fatalf("config show leaked the api token: %s", out)
	}

	target := filepath.Join(env.baseDir, "new", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected existing config to be refused")
	}
}
