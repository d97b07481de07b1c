package lineage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptloom/internal/prompt"
	"github.com/promptloom/pkg/models"
)

// fakeSource is an in-memory PromptSource backed by a flat prompt map, with
// the same child ordering as the real store.
type fakeSource struct {
	prompts map[uuid.UUID]*models.Prompt
}

func newFakeSource() *fakeSource {
	return &fakeSource{prompts: make(map[uuid.UUID]*models.Prompt)}
}

func (f *fakeSource) add(parentID *uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.prompts[id] = &models.Prompt{
		ID:        id,
		Title:     fmt.Sprintf("prompt %d", len(f.prompts)+1),
		Body:      "body",
		AuthorID:  "author-1",
		ParentID:  parentID,
		CreatedAt: time.Unix(int64(len(f.prompts)), 0),
	}
	return id
}

func (f *fakeSource) Get(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	p, ok := f.prompts[id]
	if !ok {
		return nil, prompt.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeSource) ChildrenOf(ctx context.Context, parentIDs []uuid.UUID) (map[uuid.UUID][]models.Prompt, error) {
	wanted := make(map[uuid.UUID]bool, len(parentIDs))
	for _, id := range parentIDs {
		wanted[id] = true
	}

	children := make(map[uuid.UUID][]models.Prompt)
	for _, p := range f.prompts {
		if p.ParentID != nil && wanted[*p.ParentID] {
			children[*p.ParentID] = append(children[*p.ParentID], *p)
		}
	}
	for id := range children {
		sort.Slice(children[id], func(i, j int) bool {
			a, b := children[id][i], children[id][j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID.String() < b.ID.String()
		})
	}
	return children, nil
}

type fakeRollups struct {
	values map[uuid.UUID]models.Rollup
}

func (f *fakeRollups) ValuesFor(ctx context.Context, promptIDs []uuid.UUID) (map[uuid.UUID]models.Rollup, error) {
	out := make(map[uuid.UUID]models.Rollup)
	for _, id := range promptIDs {
		if r, ok := f.values[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// fakeExec mirrors the attach UPDATE against the in-memory source.
type fakeExec struct {
	src *fakeSource
}

func (f *fakeExec) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	parentID := args[0].(uuid.UUID)
	childID := args[1].(uuid.UUID)

	child, ok := f.src.prompts[childID]
	if !ok || child.ParentID != nil {
		return driver.RowsAffected(0), nil
	}
	child.ParentID = &parentID
	return driver.RowsAffected(1), nil
}

func TestAncestryChain(t *testing.T) {
	src := newFakeSource()
	root := src.add(nil)
	mid := src.add(&root)
	leaf := src.add(&mid)

	b := NewBuilder(src, &fakeRollups{}, 0)
	ctx := context.Background()

	t.Run("RootFirstOrder", func(t *testing.T) {
		chain, err := b.AncestryChain(ctx, leaf)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, root, chain[0].ID)
		assert.Equal(t, mid, chain[1].ID)
		assert.Equal(t, leaf, chain[2].ID)
	})

	t.Run("RootPromptAlone", func(t *testing.T) {
		chain, err := b.AncestryChain(ctx, root)
		require.NoError(t, err)
		require.Len(t, chain, 1)
		assert.Equal(t, root, chain[0].ID)
	})

	t.Run("MissingPrompt", func(t *testing.T) {
		_, err := b.AncestryChain(ctx, uuid.New())
		assert.ErrorIs(t, err, prompt.ErrNotFound)
	})

	t.Run("DanglingParentPointer", func(t *testing.T) {
		missing := uuid.New()
		orphan := src.add(&missing)

		_, err := b.AncestryChain(ctx, orphan)
		assert.ErrorIs(t, err, prompt.ErrNotFound)
	})

	t.Run("CycleInStoredData", func(t *testing.T) {
		src := newFakeSource()
		a := src.add(nil)
		c := src.add(&a)
		src.prompts[a].ParentID = &c

		b := NewBuilder(src, &fakeRollups{}, 0)
		_, err := b.AncestryChain(ctx, a)
		assert.ErrorIs(t, err, ErrCycleDetected)
	})
}

func TestAttachChild(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		src := newFakeSource()
		parent := src.add(nil)
		child := src.add(nil)

		b := NewBuilder(src, &fakeRollups{}, 0)
		err := b.AttachChild(ctx, src, &fakeExec{src: src}, parent, child)
		require.NoError(t, err)

		got, err := src.Get(ctx, child)
		require.NoError(t, err)
		require.NotNil(t, got.ParentID)
		assert.Equal(t, parent, *got.ParentID)
	})

	t.Run("SelfParent", func(t *testing.T) {
		src := newFakeSource()
		p := src.add(nil)

		b := NewBuilder(src, &fakeRollups{}, 0)
		err := b.AttachChild(ctx, src, &fakeExec{src: src}, p, p)
		assert.ErrorIs(t, err, ErrCycleWouldForm)
	})

	t.Run("ParentMissing", func(t *testing.T) {
		src := newFakeSource()
		child := src.add(nil)

		b := NewBuilder(src, &fakeRollups{}, 0)
		err := b.AttachChild(ctx, src, &fakeExec{src: src}, uuid.New(), child)
		assert.ErrorIs(t, err, ErrParentNotFound)
	})

	t.Run("WouldFormCycle", func(t *testing.T) {
		src := newFakeSource()
		grandparent := src.add(nil)
		parent := src.add(&grandparent)

		// Attaching the grandparent beneath its own descendant would close
		// a loop.
		b := NewBuilder(src, &fakeRollups{}, 0)
		err := b.AttachChild(ctx, src, &fakeExec{src: src}, parent, grandparent)
		assert.ErrorIs(t, err, ErrCycleWouldForm)
	})

	t.Run("AlreadyAttached", func(t *testing.T) {
		src := newFakeSource()
		parentA := src.add(nil)
		parentB := src.add(nil)
		child := src.add(&parentA)

		b := NewBuilder(src, &fakeRollups{}, 0)
		err := b.AttachChild(ctx, src, &fakeExec{src: src}, parentB, child)
		assert.ErrorIs(t, err, ErrAlreadyAttached)
	})
}

// treeSummary is the comparable shape of a descendant tree.
type treeSummary struct {
	ID        uuid.UUID
	Likes     int64
	Direct    int64
	Total     int64
	Truncated bool
	Children  []treeSummary
}

func summarize(node *models.DescendantNode) treeSummary {
	s := treeSummary{
		ID:        node.Prompt.ID,
		Likes:     node.Rollup.Likes,
		Direct:    node.Rollup.DirectRemixes,
		Total:     node.Rollup.TotalRemixes,
		Truncated: node.Truncated,
	}
	for _, child := range node.Children {
		s.Children = append(s.Children, summarize(child))
	}
	return s
}

func TestDescendantTree(t *testing.T) {
	ctx := context.Background()

	t.Run("RollupsAndTotals", func(t *testing.T) {
		src := newFakeSource()
		root := src.add(nil)
		childA := src.add(&root)
		childB := src.add(&root)
		grandchild := src.add(&childA)

		rollups := &fakeRollups{values: map[uuid.UUID]models.Rollup{
			root:   {Likes: 7, DirectRemixes: 2},
			childA: {Likes: 3, DirectRemixes: 1},
		}}

		b := NewBuilder(src, rollups, 0)
		tree, err := b.DescendantTree(ctx, root, 0)
		require.NoError(t, err)

		want := treeSummary{
			ID: root, Likes: 7, Direct: 2, Total: 3,
			Children: []treeSummary{
				{ID: childA, Likes: 3, Direct: 1, Total: 1,
					Children: []treeSummary{{ID: grandchild}}},
				{ID: childB},
			},
		}

		if diff := cmp.Diff(want, summarize(tree)); diff != "" {
			t.Errorf("tree mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ChildOrderIsStable", func(t *testing.T) {
		src := newFakeSource()
		root := src.add(nil)
		first := src.add(&root)
		second := src.add(&root)
		third := src.add(&root)

		b := NewBuilder(src, &fakeRollups{}, 0)
		tree, err := b.DescendantTree(ctx, root, 0)
		require.NoError(t, err)

		require.Len(t, tree.Children, 3)
		assert.Equal(t, first, tree.Children[0].Prompt.ID)
		assert.Equal(t, second, tree.Children[1].Prompt.ID)
		assert.Equal(t, third, tree.Children[2].Prompt.ID)
	})

	t.Run("DepthCeilingTruncates", func(t *testing.T) {
		src := newFakeSource()
		root := src.add(nil)
		level1 := src.add(&root)
		level2 := src.add(&level1)
		src.add(&level2)

		// Sibling branch that ends exactly at the ceiling must not be
		// marked truncated.
		src.add(&root)

		b := NewBuilder(src, &fakeRollups{}, 0)
		tree, err := b.DescendantTree(ctx, root, 2)
		require.NoError(t, err)

		require.Len(t, tree.Children, 2)
		deep := tree.Children[0]
		require.Len(t, deep.Children, 1)

		leaf := deep.Children[0]
		assert.Equal(t, level2, leaf.Prompt.ID)
		assert.True(t, leaf.Truncated, "node with pruned children should be marked truncated")
		assert.Empty(t, leaf.Children)

		assert.False(t, tree.Children[1].Truncated, "leaf at the ceiling should not be marked truncated")

		// Only the included nodes count toward transitive totals.
		assert.Equal(t, int64(3), tree.Rollup.TotalRemixes)
	})

	t.Run("CancelledContextReturnsPartial", func(t *testing.T) {
		src := newFakeSource()
		root := src.add(nil)
		src.add(&root)

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		b := NewBuilder(src, &fakeRollups{}, 0)
		tree, err := b.DescendantTree(cancelled, root, 0)
		require.NoError(t, err)
		assert.True(t, tree.Truncated)
		assert.Empty(t, tree.Children)
	})

	t.Run("CycleInStoredData", func(t *testing.T) {
		src := newFakeSource()
		a := src.add(nil)
		c := src.add(&a)
		src.prompts[a].ParentID = &c

		b := NewBuilder(src, &fakeRollups{}, 0)
		_, err := b.DescendantTree(ctx, a, 0)
		assert.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("MissingRoot", func(t *testing.T) {
		b := NewBuilder(newFakeSource(), &fakeRollups{}, 0)
		_, err := b.DescendantTree(ctx, uuid.New(), 0)
		assert.ErrorIs(t, err, prompt.ErrNotFound)
	})
}
