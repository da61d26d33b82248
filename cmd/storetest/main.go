package main

import (
	"context"
	"fmt"
	"log"

	"github.com/kittclouds/karta/internal/store"
)

func main() {
	ctx := context.Background()

	fmt.Println("Testing MemStore...")
	smoke(ctx, store.NewMemStore())

	fmt.Println("\nTesting SQLiteStore...")
	sq, err := store.NewSQLiteStore()
	if err != nil {
		log.Fatalf("NewSQLiteStore failed: %v", err)
	}
	smoke(ctx, sq)

	fmt.Println("\nTesting BadgerStore...")
	bs, err := store.NewInMemoryBadgerStore()
	if err != nil {
		log.Fatalf("NewInMemoryBadgerStore failed: %v", err)
	}
	smoke(ctx, bs)

	fmt.Println("\n✅ All tests passed!")
}

func smoke(ctx context.Context, s store.Gateway) {
	defer s.Close()

	a, err := s.CreateNode(ctx, &store.DataNode{Attributes: map[string]any{store.AttrName: "a"}}, store.RootNodePath)
	if err != nil {
		log.Fatalf("CreateNode failed: %v", err)
	}
	b, err := s.CreateNode(ctx, &store.DataNode{Attributes: map[string]any{store.AttrName: "b"}}, a.Path)
	if err != nil {
		log.Fatalf("CreateNode failed: %v", err)
	}
	if b.Path != "/root/a/b" {
		log.Fatalf("CreateNode path expected /root/a/b, got %s", b.Path)
	}
	fmt.Println("  ✓ CreateNode works")

	got, err := s.GetNodeByPath(ctx, "/root/a/b")
	if err != nil {
		log.Fatalf("GetNodeByPath failed: %v", err)
	}
	if got == nil || got.ID != b.ID {
		log.Fatal("GetNodeByPath returned the wrong node")
	}
	fmt.Println("  ✓ GetNodeByPath works")

	if _, err := s.CreateEdges(ctx, []*store.KartaEdge{{Source: store.RootNodeID, Target: b.ID}}); err != nil {
		log.Fatalf("CreateEdges failed: %v", err)
	}
	fmt.Println("  ✓ CreateEdges works")

	err = s.SaveContext(ctx, &store.StorableContext{
		ID: a.ID,
		ViewNodes: map[string]store.StorableViewNode{
			a.ID: {ID: a.ID, RelScale: 1, Width: 200, Height: 100},
			b.ID: {ID: b.ID, RelX: 250, RelScale: 1, Width: 200, Height: 100},
		},
	})
	if err != nil {
		log.Fatalf("SaveContext failed: %v", err)
	}
	bundle, err := s.LoadContextBundle(ctx, a.Path)
	if err != nil {
		log.Fatalf("LoadContextBundle failed: %v", err)
	}
	if bundle == nil || bundle.Context == nil || len(bundle.Context.ViewNodes) != 2 {
		log.Fatal("LoadContextBundle lost the saved context")
	}
	fmt.Println("  ✓ SaveContext/LoadContextBundle work")

	moved, err := s.MoveNodes(ctx, []store.MoveRequest{{SourcePath: b.Path, TargetParentPath: store.RootNodePath}})
	if err != nil {
		log.Fatalf("MoveNodes failed: %v", err)
	}
	if len(moved.Moved) != 1 || len(moved.Errors) != 0 {
		log.Fatalf("MoveNodes expected one move, got %+v", moved)
	}
	fmt.Println("  ✓ MoveNodes works")

	deleted, err := s.DeleteNodes(ctx, []string{a.ID})
	if err != nil {
		log.Fatalf("DeleteNodes failed: %v", err)
	}
	if len(deleted.Deleted) != 1 {
		log.Fatalf("DeleteNodes expected one deletion, got %+v", deleted)
	}
	paths, err := s.GetAllContextPaths(ctx)
	if err != nil {
		log.Fatalf("GetAllContextPaths failed: %v", err)
	}
	if _, ok := paths[a.ID]; ok {
		log.Fatal("DeleteNodes left the context behind")
	}
	fmt.Println("  ✓ DeleteNodes works")

	snap, err := s.Snapshot(ctx)
	if err != nil {
		log.Fatalf("Snapshot failed: %v", err)
	}
	fmt.Printf("  ✓ Snapshot works (%d nodes, %d edges)\n", len(snap.Nodes), len(snap.Edges))
}
