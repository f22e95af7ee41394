package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "followbot/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, driver := range []string{"file", "sqlite"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, driver, "followbot.db")}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s) err = %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = (%v, %v), want (nil, nil)", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestAuditAppendRecentPrune(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for driver, st := range openTestStores(t) {
		t.Run(driver, func(t *testing.T) {
			entries := []AuditEntry{
				{At: base, ActorID: 1, ChatID: -100, Plugin: "repeat", Action: "repeat.off", Target: "-100"},
				{At: base.Add(time.Hour), ActorID: 2, ActorUsername: "alice", ChatID: -100, Plugin: "repeat", Action: "broadcast.off"},
				{At: base.Add(2 * time.Hour), ActorID: 1, ChatID: -200, Plugin: "repeat", Action: "repeat.on"},
			}
			for _, e := range entries {
				if err := st.AppendAudit(ctx, e); err != nil {
					t.Fatalf("AppendAudit() err = %v", err)
				}
			}

			got, err := st.RecentAudit(ctx, 2)
			if err != nil {
				t.Fatalf("RecentAudit() err = %v", err)
			}
			if len(got) != 2 || got[0].Action != "repeat.on" || got[1].ActorUsername != "alice" {
				t.Fatalf("RecentAudit() = %+v", got)
			}

			n, err := st.PruneAudit(ctx, base.Add(90*time.Minute))
			if err != nil {
				t.Fatalf("PruneAudit() err = %v", err)
			}
			if n != 2 {
				t.Fatalf("PruneAudit() removed %d, want 2", n)
			}

			// Appends keep working after a prune rewrite.
			if err := st.AppendAudit(ctx, AuditEntry{At: base.Add(3 * time.Hour), Plugin: "repeat", Action: "broadcast.on"}); err != nil {
				t.Fatalf("AppendAudit() after prune err = %v", err)
			}
			got, err = st.RecentAudit(ctx, 10)
			if err != nil {
				t.Fatalf("RecentAudit() err = %v", err)
			}
			if len(got) != 2 || got[0].Action != "broadcast.on" || got[1].Action != "repeat.on" {
				t.Fatalf("after prune = %+v", got)
			}
		})
	}
}

func TestPrunerUsesRetention(t *testing.T) {
	stores := openTestStores(t)
	st := stores["file"]
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_ = st.AppendAudit(ctx, AuditEntry{At: now.Add(-48 * time.Hour), Action: "old"})
	_ = st.AppendAudit(ctx, AuditEntry{At: now.Add(-time.Hour), Action: "fresh"})

	p, err := NewPruner(st, 24*time.Hour, "", logx.Nop())
	if err != nil {
		t.Fatalf("NewPruner() err = %v", err)
	}
	p.now = func() time.Time { return now }
	n, err := p.PruneOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PruneOnce() = (%d, %v), want (1, nil)", n, err)
	}

	if _, err := NewPruner(st, time.Hour, "every tuesday", logx.Nop()); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
}
