package lineage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/promptloom/internal/prompt"
	"github.com/promptloom/pkg/models"
)

var (
	// ErrCycleWouldForm is returned when attaching an edge would make a
	// prompt its own transitive ancestor.
	ErrCycleWouldForm = errors.New("lineage edge would form a cycle")

	// ErrCycleDetected is returned when traversal finds an existing cycle
	// in stored parent pointers. This indicates corrupted data; it is
	// surfaced, never repaired.
	ErrCycleDetected = errors.New("cycle detected in lineage")

	// ErrParentNotFound is returned when the remix parent does not exist.
	ErrParentNotFound = errors.New("parent prompt not found")

	// ErrAlreadyAttached is returned when the child already has a parent.
	// Lineage is acquired once at remix time and is immutable afterwards.
	ErrAlreadyAttached = errors.New("prompt already has a parent")
)

// PromptSource provides the reads the builder traverses over. Satisfied by
// *prompt.Store, including its transaction-bound form.
type PromptSource interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	ChildrenOf(ctx context.Context, parentIDs []uuid.UUID) (map[uuid.UUID][]models.Prompt, error)
}

// RollupSource provides engagement counters for tree rollups. Satisfied by
// *counter.Service.
type RollupSource interface {
	ValuesFor(ctx context.Context, promptIDs []uuid.UUID) (map[uuid.UUID]models.Rollup, error)
}

// Execer is the write half AttachChild needs, satisfied by *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Builder reconstructs the remix lineage graph from the flat parent-pointer
// relation: the ancestor chain of a prompt, its descendant tree with
// per-node rollups, and the validated attachment of new edges.
type Builder struct {
	prompts      PromptSource
	rollups      RollupSource
	depthCeiling int
}

// NewBuilder creates a new lineage builder. depthCeiling bounds descendant
// traversal; branches below it come back marked truncated.
func NewBuilder(prompts PromptSource, rollups RollupSource, depthCeiling int) *Builder {
	if depthCeiling <= 0 {
		depthCeiling = 200
	}
	return &Builder{prompts: prompts, rollups: rollups, depthCeiling: depthCeiling}
}

// AncestryChain returns the prompt's ancestor chain, root first, ending
// with the prompt itself. Traversal tracks visited ids so corrupted data
// fails with ErrCycleDetected instead of looping forever.
func (b *Builder) AncestryChain(ctx context.Context, id uuid.UUID) ([]models.Prompt, error) {
	return ancestryOf(ctx, b.prompts, id)
}

func ancestryOf(ctx context.Context, src PromptSource, id uuid.UUID) ([]models.Prompt, error) {
	current, err := src.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	visited := make(map[uuid.UUID]bool)
	chain := []models.Prompt{}

	for {
		if visited[current.ID] {
			return nil, fmt.Errorf("%w: revisiting %s while walking ancestry of %s", ErrCycleDetected, current.ID, id)
		}
		visited[current.ID] = true
		chain = append(chain, *current)

		if current.ParentID == nil {
			break
		}

		parent, err := src.Get(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, prompt.ErrNotFound) {
				return nil, fmt.Errorf("dangling parent pointer %s on prompt %s: %w", *current.ParentID, current.ID, err)
			}
			return nil, err
		}
		current = parent
	}

	// Walked child-to-root; callers get root first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return chain, nil
}

// AttachChild validates and persists the child→parent edge. Called once at
// remix time, inside the coordinator's transaction: src must be bound to
// the same transaction as exec so the ancestry is validated at a
// consistent snapshot.
func (b *Builder) AttachChild(ctx context.Context, src PromptSource, exec Execer, parentID, childID uuid.UUID) error {
	if parentID == childID {
		return fmt.Errorf("%w: prompt %s cannot be its own parent", ErrCycleWouldForm, parentID)
	}

	if _, err := src.Get(ctx, parentID); err != nil {
		if errors.Is(err, prompt.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrParentNotFound, parentID)
		}
		return err
	}

	// If the child appears anywhere in the parent's ancestry, the edge
	// would close a loop.
	chain, err := ancestryOf(ctx, src, parentID)
	if err != nil {
		return err
	}
	for _, ancestor := range chain {
		if ancestor.ID == childID {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycleWouldForm, childID, parentID)
		}
	}

	result, err := exec.ExecContext(ctx,
		`UPDATE prompts SET parent_id = $1 WHERE id = $2 AND parent_id IS NULL`,
		parentID, childID,
	)
	if err != nil {
		return fmt.Errorf("failed to attach lineage edge: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		if _, err := src.Get(ctx, childID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, childID)
	}

	log.Debug().
		Str("parent_id", parentID.String()).
		Str("child_id", childID.String()).
		Msg("Attached lineage edge")

	return nil
}

// DescendantTree returns the remix descendant tree rooted at the given
// prompt, breadth-first with one batched child query per level. maxDepth
// bounds recursion (0 means the configured ceiling); deeper branches are
// returned with Truncated set rather than erroring the whole call. A
// cancelled context likewise yields a partial, explicitly truncated tree.
func (b *Builder) DescendantTree(ctx context.Context, id uuid.UUID, maxDepth int) (*models.DescendantNode, error) {
	if maxDepth <= 0 || maxDepth > b.depthCeiling {
		maxDepth = b.depthCeiling
	}

	rootPrompt, err := b.prompts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	root := &models.DescendantNode{Prompt: *rootPrompt, Children: []*models.DescendantNode{}}
	frontier := []*models.DescendantNode{root}
	allIDs := []uuid.UUID{rootPrompt.ID}
	seen := map[uuid.UUID]bool{rootPrompt.ID: true}
	cancelled := false

	for depth := 0; len(frontier) > 0; depth++ {
		if ctx.Err() != nil {
			for _, node := range frontier {
				node.Truncated = true
			}
			cancelled = true
			break
		}

		frontierIDs := make([]uuid.UUID, len(frontier))
		byID := make(map[uuid.UUID]*models.DescendantNode, len(frontier))
		for i, node := range frontier {
			frontierIDs[i] = node.Prompt.ID
			byID[node.Prompt.ID] = node
		}

		childMap, err := b.prompts.ChildrenOf(ctx, frontierIDs)
		if err != nil {
			return nil, err
		}

		if depth >= maxDepth {
			// Depth ceiling reached: mark nodes whose branches continue.
			for parentID, children := range childMap {
				if len(children) > 0 {
					byID[parentID].Truncated = true
				}
			}
			break
		}

		var next []*models.DescendantNode
		for _, parentNode := range frontier {
			for _, child := range childMap[parentNode.Prompt.ID] {
				if seen[child.ID] {
					return nil, fmt.Errorf("%w: %s reached twice in descendant traversal", ErrCycleDetected, child.ID)
				}
				seen[child.ID] = true

				childNode := &models.DescendantNode{Prompt: child, Children: []*models.DescendantNode{}}
				parentNode.Children = append(parentNode.Children, childNode)
				next = append(next, childNode)
				allIDs = append(allIDs, child.ID)
			}
		}
		frontier = next
	}

	// Rollups are best-effort on cancellation: the partial tree still
	// carries its transitive remix totals.
	if !cancelled {
		rollups, err := b.rollups.ValuesFor(ctx, allIDs)
		if err != nil {
			return nil, err
		}
		applyRollups(root, rollups)
	}
	totalDescendants(root)

	return root, nil
}

func applyRollups(node *models.DescendantNode, rollups map[uuid.UUID]models.Rollup) {
	if r, ok := rollups[node.Prompt.ID]; ok {
		node.Rollup.Likes = r.Likes
		node.Rollup.Views = r.Views
		node.Rollup.DirectRemixes = r.DirectRemixes
	}
	for _, child := range node.Children {
		applyRollups(child, rollups)
	}
}

// totalDescendants fills in TotalRemixes bottom-up: the count of all
// transitive descendants included in the tree.
func totalDescendants(node *models.DescendantNode) int64 {
	var total int64
	for _, child := range node.Children {
		total += 1 + totalDescendants(child)
	}
	node.Rollup.TotalRemixes = total
	return total
}
