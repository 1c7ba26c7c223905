package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/shelfsense/gpcsearch/internal/clients/openai"
	"github.com/shelfsense/gpcsearch/internal/data/repos"
	"github.com/shelfsense/gpcsearch/internal/domain"
	"github.com/shelfsense/gpcsearch/internal/pkg/dbctx"
	"github.com/shelfsense/gpcsearch/internal/pkg/errs"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
)

const describeSystemPrompt = "You take a short item description and describe it in more detail for use in performing semantic search. You return a single sentence."

// maxAncestorWalk bounds the parent chase; GPC is at most 5 levels deep.
const maxAncestorWalk = 16

type SearchResult struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	Title          string `json:"title"`
	FullTitle      string `json:"full_title"`
	Description    string `json:"description,omitempty"`
	Level2Category string `json:"level_2_category"`
	Level3Category string `json:"level_3_category"`
	Definition     string `json:"definition"`
	Active         bool   `json:"active"`
}

type SearchService interface {
	// Resolve maps free text to the nearest taxonomy node by L2 distance and
	// surfaces its level-2 and level-3 consumer categories.
	Resolve(ctx context.Context, text string) (*SearchResult, error)
}

type searchService struct {
	db          *gorm.DB
	log         *logger.Logger
	nodes       repos.GPCNodeRepo
	vectors     repos.GPCNodeVectorRepo
	ai          openai.Client
	expandQuery bool
}

func NewSearchService(db *gorm.DB, log *logger.Logger, nodes repos.GPCNodeRepo, vectors repos.GPCNodeVectorRepo, ai openai.Client, expandQuery bool) SearchService {
	return &searchService{
		db:          db,
		log:         log.With("service", "SearchService"),
		nodes:       nodes,
		vectors:     vectors,
		ai:          ai,
		expandQuery: expandQuery,
	}
}

func (s *searchService) Resolve(ctx context.Context, text string) (*SearchResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text required", errs.ErrInvalidArgument)
	}

	// Expanding the query into a fuller sentence before embedding improves
	// recall on terse item descriptions.
	description := ""
	embedInput := text
	if s.expandQuery {
		desc, err := s.ai.GenerateText(ctx, describeSystemPrompt, text)
		if err != nil {
			return nil, fmt.Errorf("describe query: %w", err)
		}
		desc = strings.TrimSpace(desc)
		if desc != "" {
			description = desc
			embedInput = desc
		}
	}

	vecs, err := s.ai.Embed(ctx, []string{embedInput})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: unexpected embedding count %d", len(vecs))
	}

	dbc := dbctx.Context{Ctx: ctx}
	nearest, err := s.vectors.NearestByL2(dbc, pgvector.NewVector(vecs[0]))
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor lookup: %w", err)
	}
	if nearest == nil {
		return nil, errs.ErrNotFound
	}

	node, err := s.nodes.GetByID(dbc, nearest.ID)
	if err != nil {
		return nil, fmt.Errorf("load node %d: %w", nearest.ID, err)
	}
	if node == nil {
		// Vectors are only ever created alongside their node.
		s.log.Warn("Vector row without matching node", "id", nearest.ID)
		return nil, errs.ErrNotFound
	}

	lookup := func(id int64) *domain.GPCNode {
		parent, err := s.nodes.GetByID(dbc, id)
		if err != nil {
			s.log.Warn("Ancestor lookup failed", "id", id, "error", err.Error())
			return nil
		}
		return parent
	}

	return &SearchResult{
		ID:             node.ID,
		Code:           node.Code,
		Title:          node.Title,
		FullTitle:      node.FullTitle,
		Description:    description,
		Level2Category: CategoryForLevel(node, 2, lookup),
		Level3Category: CategoryForLevel(node, 3, lookup),
		Definition:     node.Definition,
		Active:         node.Active,
	}, nil
}

// CategoryForLevel resolves the consumer category of the given target level for
// a node, degrading gracefully when labeling is incomplete or the hierarchy is
// shallower than expected:
//
//  1. a node at the target level uses its own label, else its title;
//  2. a deeper node walks parent ids up to the exact target level and uses that
//     ancestor's label or title; a broken chain falls back to the full-title
//     path segment at the target level;
//  3. a shallower node can only use the path segment;
//  4. failing everything, the node's own title.
func CategoryForLevel(node *domain.GPCNode, target int, lookup func(id int64) *domain.GPCNode) string {
	if node == nil {
		return ""
	}

	if node.Level == target {
		if label := categoryLabel(node, target); label != "" {
			return label
		}
		return node.Title
	}

	if node.Level > target {
		cur := node
		for steps := 0; steps < maxAncestorWalk; steps++ {
			if cur.ParentID == nil {
				break
			}
			parent := lookup(*cur.ParentID)
			if parent == nil {
				break
			}
			cur = parent
			if cur.Level == target {
				if label := categoryLabel(cur, target); label != "" {
					return label
				}
				if cur.Title != "" {
					return cur.Title
				}
				break
			}
			if cur.Level < target {
				break
			}
		}
	}

	if segment := pathSegment(node.FullTitle, target); segment != "" {
		return segment
	}
	return node.Title
}

func categoryLabel(node *domain.GPCNode, target int) string {
	var label *string
	switch target {
	case 2:
		label = node.Level2Category
	case 3:
		label = node.Level3Category
	}
	if label == nil {
		return ""
	}
	return strings.TrimSpace(*label)
}

// pathSegment returns the (level-1)-th segment of a full title split on the
// path delimiter, or "" when the path is too short.
func pathSegment(fullTitle string, level int) string {
	parts := strings.Split(fullTitle, domain.PathDelimiter)
	if level-1 < 0 || level-1 >= len(parts) {
		return ""
	}
	return strings.TrimSpace(parts[level-1])
}
