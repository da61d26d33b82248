package store

import (
	"context"
	"path/filepath"
	"testing"
)

// =============================================================================
// SQLite persistence
// =============================================================================

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "karta.db")

	s, err := NewSQLiteStoreWithDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	a, err := s.CreateNode(ctx, &DataNode{NType: "core/text", Attributes: map[string]any{AttrName: "notes", "text": "hello"}}, RootNodePath)
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	err = s.SaveContext(ctx, &StorableContext{
		ID: a.ID,
		ViewNodes: map[string]StorableViewNode{
			a.ID: {ID: a.ID, RelScale: 1, Width: 300, Height: 200, Rotation: 0.25},
		},
		Viewport: &StorableViewport{RelPosX: 5, RelPosY: 6, Scale: 2},
	})
	if err != nil {
		t.Fatalf("SaveContext failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen: the root must not be seeded twice and data must survive.
	s, err = NewSQLiteStoreWithDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	got, err := s.GetNodeByPath(ctx, "/root/notes")
	if err != nil {
		t.Fatalf("GetNodeByPath failed: %v", err)
	}
	if got == nil {
		t.Fatal("node lost after reopen")
	}
	if got.NType != "core/text" {
		t.Errorf("NType mismatch: got %s, want core/text", got.NType)
	}
	if got.Attributes["text"] != "hello" {
		t.Errorf("attribute mismatch: got %v", got.Attributes["text"])
	}

	bundle, err := s.LoadContextBundle(ctx, "/root/notes")
	if err != nil {
		t.Fatalf("LoadContextBundle failed: %v", err)
	}
	if bundle.Context == nil || bundle.Context.Viewport == nil {
		t.Fatal("context or viewport lost after reopen")
	}
	if bundle.Context.Viewport.Scale != 2 {
		t.Errorf("viewport scale mismatch: got %f, want 2", bundle.Context.Viewport.Scale)
	}
	if vn := bundle.Context.ViewNodes[a.ID]; vn.Rotation != 0.25 || vn.Width != 300 {
		t.Errorf("view node mismatch: %+v", vn)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	roots := 0
	for _, n := range snap.Nodes {
		if n.ID == RootNodeID {
			roots++
		}
	}
	if roots != 1 {
		t.Errorf("expected exactly one root, got %d", roots)
	}
}

func TestSQLiteDescendantRangeIsPrefixExact(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	for _, name := range []string{"a", "ab", "a-b"} {
		if _, err := s.CreateNode(ctx, &DataNode{Attributes: map[string]any{AttrName: name}}, RootNodePath); err != nil {
			t.Fatalf("CreateNode %s failed: %v", name, err)
		}
	}
	if _, err := s.CreateNode(ctx, &DataNode{Attributes: map[string]any{AttrName: "child"}}, "/root/a"); err != nil {
		t.Fatalf("CreateNode child failed: %v", err)
	}

	res, err := s.DeleteNodes(ctx, []string{"/root/a"})
	if err != nil {
		t.Fatalf("DeleteNodes failed: %v", err)
	}
	if len(res.Deleted) != 1 || len(res.Deleted[0].DescendantsDeleted) != 1 {
		t.Fatalf("unexpected delete result: %+v", res)
	}

	for _, p := range []string{"/root/ab", "/root/a-b"} {
		n, err := s.GetNodeByPath(ctx, p)
		if err != nil {
			t.Fatalf("GetNodeByPath failed: %v", err)
		}
		if n == nil {
			t.Errorf("sibling %s deleted with /root/a", p)
		}
	}
}
