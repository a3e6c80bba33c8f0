package main

import (
	"bytes"
	"strings"
	"testing"

	"murmur/internal/daemonctl"
	"murmur/internal/ipc"
	"murmur/internal/preflight"
)

func TestRenderStatusLine(t *testing.T) {
	plain := renderStatusLine("murmurd", statusError, "not running", false)
	if !strings.Contains(plain, "murmurd:") || !strings.HasSuffix(plain, "[ERROR] not running") {
		t.Fatalf("unexpected plain line %q", plain)
	}
	colored := renderStatusLine("murmurd", statusOK, "", true)
	if !strings.Contains(colored, ansiGreen+"[OK]"+ansiReset) {
		t.Fatalf("expected green tag, got %q", colored)
	}
}

func TestRenderTableTruncatesWideCells(t *testing.T) {
	out := renderTable([]column{{Header: "ID"}, {Header: "Text", MaxWidth: 5}}, [][]string{{"1", "abcdefghij"}, {"2"}})
	if !strings.Contains(out, "abcd…") {
		t.Fatalf("expected truncated cell, got\n%s", out)
	}
	if strings.Contains(out, "abcdefghij") {
		t.Fatalf("expected long cell to be cut, got\n%s", out)
	}
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty output without columns")
	}
}

func TestRenderCountsOrdersKnownFirst(t *testing.T) {
	got := renderCounts(map[string]int{"sent": 2, "zeta": 1}, "pending", "sent")
	if got != "  pending=0 sent=2 zeta=1" {
		t.Fatalf("unexpected counts %q", got)
	}
}

func TestRenderStatusOffline(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, daemonctl.Snapshot{
		Status: &ipc.StatusResponse{DatabasePath: "/tmp/murmur.db", ReplyStats: map[string]int{"failed": 3}},
		Checks: []preflight.Result{{Name: "Bridge", Passed: false, Detail: "missing url"}},
	}, false)
	out := buf.String()
	for _, fragment := range []string{"not running", "[ERROR] missing url", "failed=3", "/tmp/murmur.db"} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in\n%s", fragment, out)
		}
	}
	if strings.Contains(out, "Rate Limits") {
		t.Fatalf("expected no rate limit section offline:\n%s", out)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	want := map[string]bool{"start": false, "stop": false, "restart": false, "status": false, "drain": false, "task": false, "reply": false, "config": false, "test-notify": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected subcommand %q", name)
		}
	}
}
