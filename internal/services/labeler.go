package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/shelfsense/gpcsearch/internal/clients/openai"
	"github.com/shelfsense/gpcsearch/internal/data/repos"
	"github.com/shelfsense/gpcsearch/internal/domain"
	"github.com/shelfsense/gpcsearch/internal/pkg/dbctx"
	"github.com/shelfsense/gpcsearch/internal/pkg/errs"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
)

const categorySystemPrompt = "You are an expert at creating consumer-friendly product categories for retail and e-commerce."

// DefaultLabelConcurrency bounds in-flight generation requests; it exists to
// respect external rate limits, not for correctness.
const DefaultLabelConcurrency = 15

type LabelStats struct {
	Targeted int
	Labeled  int
	FellBack int
	Elapsed  time.Duration
}

type LabelService interface {
	// LabelLevel generates consumer-facing labels for every unlabeled node at
	// the given level (2 or 3). Per-item generation failures fall back to the
	// node's own title; every targeted node ends the run labeled. All results
	// are buffered and written in a single pass at the end.
	LabelLevel(ctx context.Context, level int) (LabelStats, error)
}

type labelService struct {
	db          *gorm.DB
	log         *logger.Logger
	nodes       repos.GPCNodeRepo
	ai          openai.Client
	concurrency int
}

func NewLabelService(db *gorm.DB, log *logger.Logger, nodes repos.GPCNodeRepo, ai openai.Client, concurrency int) LabelService {
	if concurrency <= 0 {
		concurrency = DefaultLabelConcurrency
	}
	return &labelService{
		db:          db,
		log:         log.With("service", "LabelService"),
		nodes:       nodes,
		ai:          ai,
		concurrency: concurrency,
	}
}

func (s *labelService) LabelLevel(ctx context.Context, level int) (LabelStats, error) {
	stats := LabelStats{}
	if level != 2 && level != 3 {
		return stats, fmt.Errorf("%w: label level must be 2 or 3, got %d", errs.ErrInvalidArgument, level)
	}

	start := time.Now()

	targets, err := s.nodes.GetUnlabeled(dbctx.Context{Ctx: ctx}, level)
	if err != nil {
		return stats, fmt.Errorf("select unlabeled level %d nodes: %w", level, err)
	}
	stats.Targeted = len(targets)
	if len(targets) == 0 {
		s.log.Info("No unlabeled nodes at level", "level", level)
		return stats, nil
	}

	s.log.Info("Generating categories", "level", level, "count", len(targets), "concurrency", s.concurrency)

	labels := make([]string, len(targets))
	fellBack := make([]bool, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range targets {
		i := i
		node := targets[i]
		g.Go(func() error {
			label, err := s.generateCategory(gctx, node, level)
			if err != nil {
				s.log.Warn("Category generation failed, falling back to title",
					"level", level,
					"code", node.Code,
					"title", node.Title,
					"error", err.Error(),
				)
				label = node.Title
				fellBack[i] = true
			}
			labels[i] = label
			return nil
		})
	}
	// Workers never return errors; failures already fell back per item.
	_ = g.Wait()
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	byID := make(map[int64]string, len(targets))
	for i, node := range targets {
		if fellBack[i] {
			stats.FellBack++
		}
		byID[node.ID] = labels[i]
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.nodes.SetCategories(dbctx.Context{Ctx: ctx, Tx: tx}, level, byID)
		if err != nil {
			return err
		}
		stats.Labeled = updated
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("write level %d categories: %w", level, err)
	}

	stats.Elapsed = time.Since(start)
	s.log.Info("Category generation complete",
		"level", level,
		"targeted", stats.Targeted,
		"labeled", stats.Labeled,
		"fell_back", stats.FellBack,
		"elapsed", stats.Elapsed.String(),
	)
	return stats, nil
}

func (s *labelService) generateCategory(ctx context.Context, node *domain.GPCNode, level int) (string, error) {
	raw, err := s.ai.GenerateText(ctx, categorySystemPrompt, buildCategoryPrompt(node, level))
	if err != nil {
		return "", err
	}
	label := SanitizeCategory(raw)
	if label == "" {
		return "", fmt.Errorf("empty category after sanitizing")
	}
	return label, nil
}

func buildCategoryPrompt(node *domain.GPCNode, level int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given this Level %d GPC classification:\n\n", level)
	fmt.Fprintf(&b, "Title: %s\n", node.Title)
	fmt.Fprintf(&b, "Full Path: %s\n", node.FullTitle)
	fmt.Fprintf(&b, "Definition: %s\n\n", node.Definition)
	b.WriteString("Generate a consumer-friendly category name that:\n")
	b.WriteString("1. Is intuitive and recognizable to consumers (like you'd see on a grocery receipt)\n")
	b.WriteString("2. Is 1-3 words maximum\n")
	if level == 3 {
		b.WriteString("3. Groups similar products together (e.g., \"apples\" and \"bananas\" should both be \"Produce\")\n")
		b.WriteString("4. Is at an appropriate level of specificity for a Level 3 category\n\n")
		b.WriteString("Examples of good Level 3 consumer categories:\n")
		b.WriteString("- \"Produce\" (for fruits, vegetables)\n")
		b.WriteString("- \"Dairy\" (for milk, cheese, yogurt)\n")
		b.WriteString("- \"Meat\" (for beef, chicken, pork)\n")
		b.WriteString("- \"Bakery\" (for bread, pastries)\n")
		b.WriteString("- \"Beverages\" (for drinks, juice)\n")
		b.WriteString("- \"Snacks\" (for chips, crackers)\n")
		b.WriteString("- \"Electronics\" (for phones, computers)\n")
		b.WriteString("- \"Clothing\" (for shirts, pants)\n")
		b.WriteString("- \"Household\" (for cleaning supplies)\n")
		b.WriteString("- \"Health\" (for medicine, supplements)\n\n")
	} else {
		b.WriteString("3. Is at an appropriate level of specificity for a Level 2 category\n\n")
		b.WriteString("Examples:\n")
		b.WriteString("- Produce, Dairy, Meat, Bakery, Beverages, Snacks, Frozen, Pantry, Household, Health\n\n")
	}
	b.WriteString("Return ONLY the category name, nothing else.")
	return b.String()
}

// SanitizeCategory strips quote characters and surrounding whitespace from a
// generated label.
func SanitizeCategory(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	s = strings.ReplaceAll(s, "'", "")
	return strings.TrimSpace(s)
}
