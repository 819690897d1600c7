package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/attendsync/attendsync/internal/gist"
	"github.com/attendsync/attendsync/internal/reconcile"
)

func TestTable(t *testing.T) {
	Init(&bytes.Buffer{}, true)
	out := Table([]string{"ID", "NAME"}, [][]string{{"W1", "Ana"}, {"W2", "Luis"}})
	for _, want := range []string{"ID", "NAME", "W1", "Ana", "Luis"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestSyncIndicator(t *testing.T) {
	Init(&bytes.Buffer{}, true)
	at := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status reconcile.Status
		want   string
	}{
		{"off", reconcile.Status{State: reconcile.Ready}, "sync off"},
		{"suspended", reconcile.Status{Suspended: true}, "not found"},
		{"pushing", reconcile.Status{State: reconcile.Pushing, SyncEnabled: true}, "syncing"},
		{"pending", reconcile.Status{State: reconcile.Ready, SyncEnabled: true, Pending: 2}, "2 change(s)"},
		{"failed", reconcile.Status{State: reconcile.Ready, SyncEnabled: true,
			LastPush: &gist.Result{Status: gist.StatusFailed, Error: "boom"}}, "last push failed: boom"},
		{"synced", reconcile.Status{State: reconcile.Ready, SyncEnabled: true,
			LastPush: &gist.Result{Status: gist.StatusOK, At: at}}, "synced"},
	}
	for _, tt := range tests {
		if got := SyncIndicator(tt.status); !strings.Contains(got, tt.want) {
			t.Errorf("%s: SyncIndicator() = %q, want it to contain %q", tt.name, got, tt.want)
		}
	}
}
