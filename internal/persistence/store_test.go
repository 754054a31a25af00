package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genebank.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpen_ReopenSameSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genebank.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = st.Close()
}

func TestInstanceRegistry_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := InstanceRecord{
		InstanceID:  "inst-1",
		DisplayName: "Coder",
		UserID:      "user-7",
		Roles:       "coder,reviewer",
	}
	if err := st.RegisterInstance(ctx, rec); err != nil {
		t.Fatalf("RegisterInstance: %v", err)
	}

	got, err := st.GetInstance(ctx, "inst-1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got == nil {
		t.Fatal("instance not found after register")
	}
	if got.DisplayName != "Coder" || got.UserID != "user-7" || got.Status != "active" {
		t.Errorf("record = %+v", got)
	}
	if got.LastSeenAt.IsZero() {
		t.Error("last_seen_at not stamped")
	}

	missing, err := st.GetInstance(ctx, "inst-none")
	if err != nil {
		t.Fatalf("GetInstance missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing instance, got %+v", missing)
	}
}

func TestRegisterInstance_UpsertUpdates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.RegisterInstance(ctx, InstanceRecord{InstanceID: "inst-1", DisplayName: "old"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := st.RegisterInstance(ctx, InstanceRecord{InstanceID: "inst-1", DisplayName: "new", UserID: "user-7"}); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	all, err := st.ListInstances(ctx)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("instances = %d, want 1", len(all))
	}
	if all[0].DisplayName != "new" || all[0].UserID != "user-7" {
		t.Errorf("upsert did not update: %+v", all[0])
	}
}

func TestListActiveInstances_ExcludesSelfAndStopped(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"inst-1", "inst-2", "inst-3"} {
		if err := st.RegisterInstance(ctx, InstanceRecord{InstanceID: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if err := st.UpdateInstanceStatus(ctx, "inst-3", "stopped"); err != nil {
		t.Fatalf("UpdateInstanceStatus: %v", err)
	}

	active, err := st.ListActiveInstances(ctx, "inst-1")
	if err != nil {
		t.Fatalf("ListActiveInstances: %v", err)
	}
	if len(active) != 1 || active[0].InstanceID != "inst-2" {
		t.Errorf("active = %+v", active)
	}
}

func TestUpdateInstanceStatus_NotFound(t *testing.T) {
	st := newTestStore(t)
	if err := st.UpdateInstanceStatus(context.Background(), "inst-none", "stopped"); err == nil {
		t.Error("expected error for unknown instance")
	}
}

func TestDeleteInstance_RemovesMessages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.RegisterInstance(ctx, InstanceRecord{InstanceID: "inst-1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := st.SendMessage(ctx, "inst-2", "inst-1", MessageTypeGenePush, `{"genes":[]}`); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if err := st.DeleteInstance(ctx, "inst-1"); err != nil {
		t.Fatalf("DeleteInstance: %v", err)
	}
	total, err := st.TotalMessageCount(ctx)
	if err != nil {
		t.Fatalf("TotalMessageCount: %v", err)
	}
	if total != 0 {
		t.Errorf("messages remaining = %d, want 0", total)
	}
}

func TestMessages_SendReadPeek(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SendMessage(ctx, "inst-1", "inst-2", MessageTypeGenePush, `{"genes":["gene-debug-x"]}`); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := st.SendMessage(ctx, "inst-1", "inst-2", "note", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := st.SendMessage(ctx, "inst-1", "inst-3", "note", "elsewhere"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	count, err := st.PeekMessages(ctx, "inst-2")
	if err != nil {
		t.Fatalf("PeekMessages: %v", err)
	}
	if count != 2 {
		t.Errorf("unread = %d, want 2", count)
	}

	msgs, err := st.ReadMessages(ctx, "inst-2", 0)
	if err != nil {
		t.Fatalf("ReadMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("read = %d messages, want 2", len(msgs))
	}
	if msgs[0].Type != MessageTypeGenePush || msgs[0].FromInstance != "inst-1" {
		t.Errorf("first message = %+v", msgs[0])
	}

	// Reading marks messages read: a second read returns nothing.
	again, err := st.ReadMessages(ctx, "inst-2", 0)
	if err != nil {
		t.Fatalf("ReadMessages again: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("re-read returned %d messages, want 0", len(again))
	}

	count, err = st.PeekMessages(ctx, "inst-2")
	if err != nil {
		t.Fatalf("PeekMessages after read: %v", err)
	}
	if count != 0 {
		t.Errorf("unread after read = %d, want 0", count)
	}
}

func TestPurgeReadMessages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SendMessage(ctx, "inst-1", "inst-2", "note", "old"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := st.ReadMessages(ctx, "inst-2", 0); err != nil {
		t.Fatalf("ReadMessages: %v", err)
	}

	purged, err := st.PurgeReadMessages(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeReadMessages: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	total, err := st.TotalMessageCount(ctx)
	if err != nil {
		t.Fatalf("TotalMessageCount: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}
