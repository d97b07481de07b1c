package models

import (
	"time"

	"github.com/google/uuid"
)

// Prompt represents a content item capable of being remixed and edited.
// ParentID is set once at remix time and never changes afterwards.
type Prompt struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Body      string     `json:"body" db:"body"`
	AuthorID  string     `json:"author_id" db:"author_id"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Revision is an immutable snapshot of a prompt's editable content.
// Version numbers are contiguous per prompt, starting at 1.
type Revision struct {
	ID            int64     `json:"id" db:"id"`
	PromptID      uuid.UUID `json:"prompt_id" db:"prompt_id"`
	VersionNumber int       `json:"version_number" db:"version_number"`
	Title         string    `json:"title" db:"title"`
	Body          string    `json:"body" db:"body"`
	ChangeNote    *string   `json:"change_note,omitempty" db:"change_note"`
	AuthorID      string    `json:"author_id" db:"author_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Rollup carries per-node engagement statistics for a remix tree node.
// TotalRemixes counts all transitive descendants; the other fields come
// straight from the counter table.
type Rollup struct {
	Likes         int64 `json:"likes_count"`
	Views         int64 `json:"views_count"`
	DirectRemixes int64 `json:"direct_remix_count"`
	TotalRemixes  int64 `json:"total_remix_count"`
}

// DescendantNode is one node of a remix descendant tree. Truncated marks
// branches cut off by the depth ceiling or a cancelled context; the children
// of a truncated node exist in storage but are not included.
type DescendantNode struct {
	Prompt    Prompt            `json:"prompt"`
	Rollup    Rollup            `json:"rollup"`
	Children  []*DescendantNode `json:"children"`
	Truncated bool              `json:"truncated,omitempty"`
}
