package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shelfsense/gpcsearch/internal/domain"
	"github.com/shelfsense/gpcsearch/internal/pkg/errs"
)

func strPtr(s string) *string { return &s }

func stubLookup(nodes map[int64]*domain.GPCNode) func(id int64) *domain.GPCNode {
	return func(id int64) *domain.GPCNode { return nodes[id] }
}

func TestCategoryForLevelOwnLevel(t *testing.T) {
	node := &domain.GPCNode{Level: 2, Title: "Fresh Food", Level2Category: strPtr("Produce")}
	if got := CategoryForLevel(node, 2, stubLookup(nil)); got != "Produce" {
		t.Fatalf("got %q, want own label", got)
	}

	unlabeled := &domain.GPCNode{Level: 2, Title: "Fresh Food"}
	if got := CategoryForLevel(unlabeled, 2, stubLookup(nil)); got != "Fresh Food" {
		t.Fatalf("got %q, want title fallback", got)
	}
}

func TestCategoryForLevelWalksToAncestor(t *testing.T) {
	ancestors := map[int64]*domain.GPCNode{
		1: {ID: 1, Level: 1, Title: "Food"},
		2: {ID: 2, Level: 2, Title: "Fresh Food", ParentID: int64Ptr(1)},
		3: {ID: 3, Level: 3, Title: "Fruits", ParentID: int64Ptr(2), Level3Category: strPtr("Produce")},
	}
	leaf := &domain.GPCNode{
		ID:        4,
		Level:     4,
		Title:     "Apples",
		FullTitle: "Food > Fresh Food > Fruits > Apples",
		ParentID:  int64Ptr(3),
	}

	if got := CategoryForLevel(leaf, 3, stubLookup(ancestors)); got != "Produce" {
		t.Fatalf("level 3 = %q, want ancestor label Produce", got)
	}
	// Level-2 ancestor is unlabeled: its title wins.
	if got := CategoryForLevel(leaf, 2, stubLookup(ancestors)); got != "Fresh Food" {
		t.Fatalf("level 2 = %q, want ancestor title", got)
	}
}

func TestCategoryForLevelBrokenChainUsesPathSegment(t *testing.T) {
	leaf := &domain.GPCNode{
		ID:        4,
		Level:     4,
		Title:     "Apples",
		FullTitle: "Food > Fresh Food > Fruits > Apples",
		ParentID:  int64Ptr(99),
	}
	// Lookup never finds the parent: fall back to splitting the full title.
	if got := CategoryForLevel(leaf, 3, stubLookup(nil)); got != "Fruits" {
		t.Fatalf("level 3 = %q, want path segment Fruits", got)
	}
	if got := CategoryForLevel(leaf, 2, stubLookup(nil)); got != "Fresh Food" {
		t.Fatalf("level 2 = %q, want path segment Fresh Food", got)
	}
}

func TestCategoryForLevelShallowNode(t *testing.T) {
	root := &domain.GPCNode{ID: 1, Level: 1, Title: "Food", FullTitle: "Food"}
	// Level 1 node asked for level 2: no walk possible, path too short, title wins.
	if got := CategoryForLevel(root, 2, stubLookup(nil)); got != "Food" {
		t.Fatalf("got %q, want own title", got)
	}
}

func TestCategoryForLevelLastResortTitle(t *testing.T) {
	node := &domain.GPCNode{ID: 5, Level: 4, Title: "Apples", FullTitle: "Apples"}
	if got := CategoryForLevel(node, 3, stubLookup(nil)); got != "Apples" {
		t.Fatalf("got %q, want own title", got)
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestResolveEmptyStoreReturnsNotFound(t *testing.T) {
	nodes := newFakeNodeRepo()
	vectors := newFakeVectorRepo()
	ai := &fakeAI{}
	svc := NewSearchService(testDB(t), testLogger(t), nodes, vectors, ai, false)

	_, err := svc.Resolve(context.Background(), "organic apples")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveVectorWithoutNodeReturnsNotFound(t *testing.T) {
	nodes := newFakeNodeRepo()
	vectors := newFakeVectorRepo()
	vectors.nearest = domain.NewGPCNodeVector(42, make([]float32, domain.EmbeddingDim))
	svc := NewSearchService(testDB(t), testLogger(t), nodes, vectors, &fakeAI{}, false)

	_, err := svc.Resolve(context.Background(), "organic apples")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveReturnsNearestNodeWithCategories(t *testing.T) {
	nodes := newFakeNodeRepo()
	_ = nodes.Create(dbc(), &domain.GPCNode{Level: 1, Code: "1", Title: "Food", FullTitle: "Food"})
	_ = nodes.Create(dbc(), &domain.GPCNode{Level: 2, Code: "2", Title: "Fresh Food", FullTitle: "Food > Fresh Food", ParentID: int64Ptr(1), Level2Category: strPtr("Fresh")})
	_ = nodes.Create(dbc(), &domain.GPCNode{Level: 3, Code: "3", Title: "Fruits", FullTitle: "Food > Fresh Food > Fruits", ParentID: int64Ptr(2), Level3Category: strPtr("Produce")})
	_ = nodes.Create(dbc(), &domain.GPCNode{Level: 4, Code: "4", Title: "Apples", FullTitle: "Food > Fresh Food > Fruits > Apples", ParentID: int64Ptr(3), Definition: "Apples of all varieties", Active: true})

	vectors := newFakeVectorRepo()
	vectors.nearest = domain.NewGPCNodeVector(4, make([]float32, domain.EmbeddingDim))

	ai := &fakeAI{}
	svc := NewSearchService(testDB(t), testLogger(t), nodes, vectors, ai, false)

	result, err := svc.Resolve(context.Background(), "organic apples")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Code != "4" || result.Title != "Apples" {
		t.Fatalf("resolved %+v, want the Apples leaf", result)
	}
	if result.Level3Category != "Produce" {
		t.Fatalf("level_3_category = %q, want Produce", result.Level3Category)
	}
	if result.Level2Category != "Fresh" {
		t.Fatalf("level_2_category = %q, want Fresh", result.Level2Category)
	}
	if !result.Active || result.Definition != "Apples of all varieties" {
		t.Fatalf("node fields not carried through: %+v", result)
	}
	if result.Description != "" {
		t.Fatalf("description = %q, want empty with expansion off", result.Description)
	}
}

func TestResolveExpandsQueryBeforeEmbedding(t *testing.T) {
	nodes := newFakeNodeRepo()
	_ = nodes.Create(dbc(), &domain.GPCNode{Level: 1, Code: "1", Title: "Food", FullTitle: "Food"})

	vectors := newFakeVectorRepo()
	vectors.nearest = domain.NewGPCNodeVector(1, make([]float32, domain.EmbeddingDim))

	ai := &fakeAI{generateFn: func(system, user string) (string, error) {
		return "A crisp, sweet orchard fruit commonly eaten raw.", nil
	}}
	svc := NewSearchService(testDB(t), testLogger(t), nodes, vectors, ai, true)

	result, err := svc.Resolve(context.Background(), "apple")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ai.generateCalls != 1 {
		t.Fatalf("generate calls = %d, want 1", ai.generateCalls)
	}
	if len(ai.embedInputs) != 1 || ai.embedInputs[0] != "A crisp, sweet orchard fruit commonly eaten raw." {
		t.Fatalf("embedded %v, want the expanded sentence", ai.embedInputs)
	}
	if result.Description != "A crisp, sweet orchard fruit commonly eaten raw." {
		t.Fatalf("description = %q", result.Description)
	}
}

func TestResolveRejectsBlankText(t *testing.T) {
	svc := NewSearchService(testDB(t), testLogger(t), newFakeNodeRepo(), newFakeVectorRepo(), &fakeAI{}, false)
	if _, err := svc.Resolve(context.Background(), "   "); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
