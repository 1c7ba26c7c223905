package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/shelfsense/gpcsearch/internal/clients/openai"
	"github.com/shelfsense/gpcsearch/internal/data/repos"
	"github.com/shelfsense/gpcsearch/internal/domain"
	"github.com/shelfsense/gpcsearch/internal/pkg/dbctx"
	"github.com/shelfsense/gpcsearch/internal/pkg/errs"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
)

// GPCEntry is one node of the nested GS1 GPC release document. Codes arrive as
// JSON numbers in the published file; they are stored as strings.
type GPCEntry struct {
	Code               json.Number `json:"Code"`
	Title              string      `json:"Title"`
	Definition         string      `json:"Definition"`
	DefinitionExcludes string      `json:"DefinitionExcludes"`
	Active             bool        `json:"Active"`
	Childs             []GPCEntry  `json:"Childs"`
}

// GPCDocument is the top-level shape of the GPC release file.
type GPCDocument struct {
	Schema []GPCEntry `json:"Schema"`
}

type ImportStats struct {
	Created  int
	Updated  int
	Embedded int
	Skipped  int
}

type ImportService interface {
	// Run imports the GPC file at path. The whole run executes in one
	// transaction: any failure rolls back every write of this run.
	Run(ctx context.Context, path string) (ImportStats, error)
}

type importService struct {
	db      *gorm.DB
	log     *logger.Logger
	nodes   repos.GPCNodeRepo
	vectors repos.GPCNodeVectorRepo
	ai      openai.Client
}

func NewImportService(db *gorm.DB, log *logger.Logger, nodes repos.GPCNodeRepo, vectors repos.GPCNodeVectorRepo, ai openai.Client) ImportService {
	return &importService{
		db:      db,
		log:     log.With("service", "ImportService"),
		nodes:   nodes,
		vectors: vectors,
		ai:      ai,
	}
}

func (s *importService) Run(ctx context.Context, path string) (ImportStats, error) {
	stats := ImportStats{}

	doc, err := LoadGPCDocument(path)
	if err != nil {
		return stats, err
	}
	if err := ValidateGPCDocument(doc); err != nil {
		return stats, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		for i := range doc.Schema {
			root := &doc.Schema[i]
			if err := s.importNode(dbc, root, 1, nil, "", &stats); err != nil {
				return err
			}
			s.log.Info("Imported root segment",
				"code", root.Code.String(),
				"title", root.Title,
				"created", stats.Created,
				"updated", stats.Updated,
				"embedded", stats.Embedded,
			)
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}

func (s *importService) importNode(dbc dbctx.Context, entry *GPCEntry, level int, parentID *int64, parentFullTitle string, stats *ImportStats) error {
	fullTitle := strings.TrimSpace(entry.Title)
	if parentFullTitle != "" {
		fullTitle = strings.TrimSpace(parentFullTitle + domain.PathDelimiter + strings.TrimSpace(entry.Title))
	}
	code := entry.Code.String()

	existing, err := s.nodes.GetByCode(dbc, code)
	if err != nil {
		return fmt.Errorf("lookup node by code %s: %w", code, err)
	}

	var id int64
	if existing != nil {
		existing.Title = strings.TrimSpace(entry.Title)
		existing.FullTitle = fullTitle
		existing.Definition = entry.Definition
		existing.DefinitionExcludes = entry.DefinitionExcludes
		existing.Active = entry.Active
		existing.ParentID = parentID
		if err := s.nodes.Update(dbc, existing); err != nil {
			return fmt.Errorf("update node %s: %w", code, err)
		}
		id = existing.ID
		stats.Updated++
	} else {
		node := &domain.GPCNode{
			Level:              level,
			Code:               code,
			Title:              strings.TrimSpace(entry.Title),
			FullTitle:          fullTitle,
			Definition:         entry.Definition,
			DefinitionExcludes: entry.DefinitionExcludes,
			Active:             entry.Active,
			ParentID:           parentID,
		}
		if err := s.nodes.Create(dbc, node); err != nil {
			return fmt.Errorf("create node %s: %w", code, err)
		}
		id = node.ID
		stats.Created++
	}

	if err := s.ensureVector(dbc, id, fullTitle, stats); err != nil {
		return err
	}

	for i := range entry.Childs {
		if err := s.importNode(dbc, &entry.Childs[i], level+1, &id, fullTitle, stats); err != nil {
			return err
		}
	}
	return nil
}

// ensureVector embeds fullTitle for nodes that have no vector row yet. Existing
// rows are left alone even when full_title changed; a vector is refreshed only
// by deleting its row first.
func (s *importService) ensureVector(dbc dbctx.Context, id int64, fullTitle string, stats *ImportStats) error {
	exists, err := s.vectors.Exists(dbc, id)
	if err != nil {
		return fmt.Errorf("check vector for node %d: %w", id, err)
	}
	if exists {
		stats.Skipped++
		return nil
	}

	vecs, err := s.ai.Embed(dbc.Ctx, []string{fullTitle})
	if err != nil {
		return fmt.Errorf("embed node %d: %w", id, err)
	}
	if len(vecs) != 1 || len(vecs[0]) != domain.EmbeddingDim {
		return fmt.Errorf("embed node %d: unexpected embedding shape", id)
	}

	if err := s.vectors.InsertIfAbsent(dbc, domain.NewGPCNodeVector(id, vecs[0])); err != nil {
		return fmt.Errorf("store vector for node %d: %w", id, err)
	}
	stats.Embedded++
	return nil
}

func LoadGPCDocument(path string) (*GPCDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open GPC file: %w", err)
	}
	defer f.Close()

	var doc GPCDocument
	dec := json.NewDecoder(f)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode GPC file: %v", errs.ErrInvalidArgument, err)
	}
	return &doc, nil
}

// ValidateGPCDocument checks the document structurally before any write: a
// non-empty root list, a code and title on every node, codes unique across the
// whole document.
func ValidateGPCDocument(doc *GPCDocument) error {
	if doc == nil || len(doc.Schema) == 0 {
		return fmt.Errorf("%w: GPC document has no root entries", errs.ErrInvalidArgument)
	}
	seen := map[string]bool{}
	var walk func(entry *GPCEntry) error
	walk = func(entry *GPCEntry) error {
		code := strings.TrimSpace(entry.Code.String())
		if code == "" {
			return fmt.Errorf("%w: GPC entry %q has no code", errs.ErrInvalidArgument, entry.Title)
		}
		if strings.TrimSpace(entry.Title) == "" {
			return fmt.Errorf("%w: GPC entry %s has no title", errs.ErrInvalidArgument, code)
		}
		if seen[code] {
			return fmt.Errorf("%w: duplicate GPC code %s", errs.ErrInvalidArgument, code)
		}
		seen[code] = true
		for i := range entry.Childs {
			if err := walk(&entry.Childs[i]); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range doc.Schema {
		if err := walk(&doc.Schema[i]); err != nil {
			return err
		}
	}
	return nil
}
