package domain

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDim is the embedding vector size (matching OpenAI text-embedding-3-small).
const EmbeddingDim = 1536

// PathDelimiter separates segments of a node's full title, root first.
const PathDelimiter = " > "

// GPCNode is one entry of the flattened GS1 Global Product Classification tree.
// Code is the natural key for idempotent re-import; ParentID is nil only for
// level-1 roots.
type GPCNode struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Level              int    `gorm:"not null;index" json:"level"`
	Code               string `gorm:"not null;uniqueIndex" json:"code"`
	Title              string `gorm:"not null" json:"title"`
	FullTitle          string `gorm:"column:full_title;not null" json:"full_title"`
	Definition         string `gorm:"type:text" json:"definition"`
	DefinitionExcludes string `gorm:"type:text" json:"definition_excludes"`
	Active             bool   `json:"active"`
	ParentID           *int64 `gorm:"index" json:"parent_id,omitempty"`

	// Consumer-facing labels, populated by the labeler only on nodes of the
	// matching level; nil until labeled, never overwritten once set.
	Level2Category *string `gorm:"column:level_2_category" json:"level_2_category,omitempty"`
	Level3Category *string `gorm:"column:level_3_category" json:"level_3_category,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (*GPCNode) TableName() string { return "gpc_nodes" }

// GPCNodeVector holds the embedding of a node's full title at creation time.
// ID is shared 1:1 with GPCNode; a row is created at most once per id and is
// never regenerated on re-import, so a renamed ancestor leaves the vector
// stale until the row is deleted.
type GPCNodeVector struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	Embedding pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	CreatedAt time.Time       `gorm:"not null;default:now()" json:"created_at"`
}

func (*GPCNodeVector) TableName() string { return "gpc_node_vectors" }

func NewGPCNodeVector(id int64, embedding []float32) *GPCNodeVector {
	return &GPCNodeVector{ID: id, Embedding: pgvector.NewVector(embedding)}
}
