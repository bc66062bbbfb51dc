package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/listsvc"
	"github.com/JohanCodinha/blsync/internal/transfer"
)

// runCLI executes blsync against dataDir and returns stdout.
func runCLI(t *testing.T, dataDir, baseURL string, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BLSYNC_DATA_DIR", dataDir)
	t.Setenv("BLSYNC_LOG_LEVEL", "error")
	if baseURL != "" {
		t.Setenv("BLSYNC_REMOTE_BASE_URL", baseURL)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dataDir, baseURL string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, dataDir, baseURL, "", args...)
	if err != nil {
		t.Fatalf("blsync %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// startListService runs a list service on a loopback port.
func startListService(t *testing.T) string {
	t.Helper()
	repo, err := listsvc.OpenSQL(context.Background(), "sqlite", filepath.Join(t.TempDir(), "lists.db"))
	if err != nil {
		t.Fatalf("OpenSQL failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	app := listsvc.NewApp(listsvc.NewService(repo))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("2024-05-01", now)
	if err != nil || !got.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parseSince(date) = %v, %v", got, err)
	}

	got, err = parseSince("2024-05-01T10:00:00Z", now)
	if err != nil || !got.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("parseSince(rfc3339) = %v, %v", got, err)
	}

	got, err = parseSince("3 days ago", now)
	if err != nil {
		t.Fatalf("parseSince(3 days ago) unexpected error: %v", err)
	}
	if d := now.Sub(got); d < 71*time.Hour || d > 73*time.Hour {
		t.Errorf("parseSince(3 days ago) = %v, %s before now", got, d)
	}

	if _, err := parseSince("zzz qqq", now); err == nil {
		t.Error("parseSince(gibberish) expected error")
	}
}

func TestFilterSince(t *testing.T) {
	entries := []blacklist.Entry{{ID: "old", AddedAt: 10}, {ID: "new", AddedAt: 30}, {ID: "mid", AddedAt: 20}}

	got := filterSince(entries, 20)
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Errorf("filterSince() = %+v, want new then mid", got)
	}
	if all := filterSince(entries, 0); len(all) != 3 || all[2].ID != "old" {
		t.Errorf("filterSince(0) = %+v", all)
	}
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		path, flag string
		want       transfer.Format
		wantErr    bool
	}{
		{path: "-", want: transfer.JSON},
		{path: "out.yaml", want: transfer.YAML},
		{path: "out.txt", flag: "toml", want: transfer.TOML},
		{path: "out.txt", wantErr: true},
		{path: "-", flag: "xml", wantErr: true},
	}
	for _, tt := range tests {
		got, err := resolveFormat(tt.path, tt.flag)
		if (err != nil) != tt.wantErr {
			t.Errorf("resolveFormat(%q, %q) error = %v, wantErr %v", tt.path, tt.flag, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveFormat(%q, %q) = %q, want %q", tt.path, tt.flag, got, tt.want)
		}
	}
}

func TestReadSecret_FromPipe(t *testing.T) {
	var prompt bytes.Buffer
	got, err := readSecret(strings.NewReader("  s3cret \nignored\n"), &prompt)
	if err != nil || got != "s3cret" {
		t.Errorf("readSecret() = %q, %v", got, err)
	}
	if prompt.Len() != 0 {
		t.Error("readSecret() prompted on a non-terminal")
	}
}

func TestCLI_AddListRemoveCheck(t *testing.T) {
	dataDir := t.TempDir()

	out := mustRun(t, dataDir, "", "add", "sellers", "bad-seller", "worse-seller")
	if !strings.Contains(out, "added subject bad-seller") || !strings.Contains(out, "added subject worse-seller") {
		t.Errorf("add output = %q", out)
	}
	mustRun(t, dataDir, "", "add", "item", "listing-1")

	out = mustRun(t, dataDir, "", "list")
	for _, want := range []string{"subjects (2)", "items (1)", "bad-seller", "listing-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, dataDir, "", "check", "subjects", "bad-seller")
	if !strings.Contains(out, "is blocked") {
		t.Errorf("check output = %q", out)
	}

	out = mustRun(t, dataDir, "", "remove", "subjects", "bad-seller", "never-added")
	if !strings.Contains(out, "removed subject bad-seller") || !strings.Contains(out, "never-added was not blacklisted") {
		t.Errorf("remove output = %q", out)
	}

	out = mustRun(t, dataDir, "", "check", "subjects", "bad-seller")
	if !strings.Contains(out, "is not blocked") {
		t.Errorf("check after remove = %q", out)
	}

	if _, err := runCLI(t, dataDir, "", "", "add", "users", "x"); err == nil {
		t.Error("add with unknown partition should fail")
	}
}

func TestCLI_ListSinceAndJSON(t *testing.T) {
	dataDir := t.TempDir()
	mustRun(t, dataDir, "", "add", "subjects", "recent")

	out := mustRun(t, dataDir, "", "list", "subjects", "--since", "2000-01-01", "--json")
	if !strings.Contains(out, `"id": "recent"`) {
		t.Errorf("list --json output = %q", out)
	}

	out = mustRun(t, dataDir, "", "list", "subjects", "--since", "2999-01-01")
	if strings.Contains(out, "recent") {
		t.Errorf("list --since future still shows entry:\n%s", out)
	}
}

func TestCLI_ExportImport(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	file := filepath.Join(t.TempDir(), "backup.yaml")

	mustRun(t, src, "", "add", "subjects", "s1")
	mustRun(t, src, "", "add", "items", "i1")
	out := mustRun(t, src, "", "export", file)
	if !strings.Contains(out, "exported 1 subjects, 1 items") {
		t.Errorf("export output = %q", out)
	}

	mustRun(t, dst, "", "import", file)
	out = mustRun(t, dst, "", "list", "--json")
	if !strings.Contains(out, `"s1"`) || !strings.Contains(out, `"i1"`) {
		t.Errorf("imported list = %s", out)
	}

	// Plain id lists are accepted from stdin.
	out, err := runCLI(t, dst, "", `{"subjects":["from-stdin"]}`, "import", "-")
	if err != nil {
		t.Fatalf("import from stdin failed: %v\n%s", err, out)
	}
	out = mustRun(t, dst, "", "check", "subjects", "from-stdin")
	if !strings.Contains(out, "is blocked") {
		t.Errorf("stdin import not applied: %q", out)
	}
}

var (
	listIDPattern = regexp.MustCompile(`published list (\S+)`)
	secretPattern = regexp.MustCompile(`write secret: (\S+)`)
)

func TestCLI_PublishLinkSync(t *testing.T) {
	baseURL := startListService(t)
	laptop := t.TempDir()
	phone := t.TempDir()

	mustRun(t, laptop, baseURL, "add", "subjects", "from-laptop")
	out := mustRun(t, laptop, baseURL, "publish", "--name", "mine")
	idMatch := listIDPattern.FindStringSubmatch(out)
	secretMatch := secretPattern.FindStringSubmatch(out)
	if idMatch == nil || secretMatch == nil {
		t.Fatalf("publish output missing credentials:\n%s", out)
	}
	listID, writeSecret := idMatch[1], secretMatch[1]

	if _, err := runCLI(t, laptop, baseURL, "", "publish"); err == nil {
		t.Error("second publish should fail")
	}

	mustRun(t, phone, baseURL, "add", "items", "from-phone")
	out, err := runCLI(t, phone, baseURL, writeSecret+"\n", "link", listID)
	if err != nil {
		t.Fatalf("link failed: %v\n%s", err, out)
	}

	out = mustRun(t, phone, baseURL, "sync")
	if !strings.Contains(out, "merged") {
		t.Errorf("first sync after link = %q, want merge", out)
	}

	out = mustRun(t, laptop, baseURL, "sync")
	if !strings.Contains(out, "downloaded") {
		t.Errorf("laptop sync = %q, want download", out)
	}
	out = mustRun(t, laptop, baseURL, "check", "items", "from-phone")
	if !strings.Contains(out, "is blocked") {
		t.Errorf("phone entry not on laptop: %q", out)
	}

	out = mustRun(t, laptop, baseURL, "sync")
	if !strings.Contains(out, "already up to date") {
		t.Errorf("idle sync = %q", out)
	}

	out = mustRun(t, laptop, baseURL, "status")
	if !strings.Contains(out, listID) || !strings.Contains(out, "up to date") {
		t.Errorf("status output:\n%s", out)
	}

	mustRun(t, phone, baseURL, "unlink")
	out = mustRun(t, phone, baseURL, "status")
	if !strings.Contains(out, "not published") {
		t.Errorf("status after unlink:\n%s", out)
	}
}

func TestCLI_Subscriptions(t *testing.T) {
	baseURL := startListService(t)
	friend := t.TempDir()
	me := t.TempDir()

	mustRun(t, friend, baseURL, "add", "subjects", "known-scammer")
	out := mustRun(t, friend, baseURL, "publish", "--name", "friend's list")
	friendList := listIDPattern.FindStringSubmatch(out)[1]

	out = mustRun(t, me, baseURL, "subscribe", friendList)
	if !strings.Contains(out, "friend's list") {
		t.Errorf("subscribe output = %q", out)
	}

	out = mustRun(t, me, baseURL, "sync", "--subscriptions")
	if !strings.Contains(out, "1 synced, 0 failed") {
		t.Errorf("subscription sync output = %q", out)
	}
	out = mustRun(t, me, baseURL, "check", "subjects", "known-scammer")
	if !strings.Contains(out, "is blocked") {
		t.Errorf("subscribed entry not blocked: %q", out)
	}
	out = mustRun(t, me, baseURL, "list", "subjects")
	if strings.Contains(out, "known-scammer") {
		t.Error("subscribed entry copied into personal list")
	}

	mustRun(t, me, baseURL, "subscriptions", "disable", friendList)
	out = mustRun(t, me, baseURL, "subscriptions")
	if !strings.Contains(out, "disabled") {
		t.Errorf("subscriptions output = %q", out)
	}

	mustRun(t, me, baseURL, "unsubscribe", friendList)
	out = mustRun(t, me, baseURL, "check", "subjects", "known-scammer")
	if !strings.Contains(out, "is not blocked") {
		t.Errorf("entry still blocked after unsubscribe: %q", out)
	}
}

func TestCLI_SyncWithoutPublishedList(t *testing.T) {
	dataDir := t.TempDir()
	mustRun(t, dataDir, "", "add", "subjects", "s1")

	out := mustRun(t, dataDir, "http://127.0.0.1:1", "sync")
	if !strings.Contains(out, "local only") {
		t.Errorf("sync output = %q", out)
	}
}

func TestCLI_InvalidConfig(t *testing.T) {
	dataDir := t.TempDir()
	cfgPath := filepath.Join(dataDir, "blsync.yaml")
	if err := os.WriteFile(cfgPath, []byte("sync:\n  interval: 0s\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, dataDir, "", "", "status"); err == nil {
		t.Error("status with invalid config should fail")
	}
}
