package repos

import (
	"strings"

	"gorm.io/gorm"

	"github.com/shelfsense/gpcsearch/internal/domain"
	"github.com/shelfsense/gpcsearch/internal/pkg/dbctx"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
)

type GPCNodeRepo interface {
	GetByID(dbc dbctx.Context, id int64) (*domain.GPCNode, error)
	GetByCode(dbc dbctx.Context, code string) (*domain.GPCNode, error)
	Create(dbc dbctx.Context, node *domain.GPCNode) error
	Update(dbc dbctx.Context, node *domain.GPCNode) error
	GetUnlabeled(dbc dbctx.Context, level int) ([]*domain.GPCNode, error)
	SetCategories(dbc dbctx.Context, level int, labels map[int64]string) (int, error)
}

type gpcNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGPCNodeRepo(db *gorm.DB, baseLog *logger.Logger) GPCNodeRepo {
	return &gpcNodeRepo{db: db, log: baseLog.With("repo", "GPCNodeRepo")}
}

func (r *gpcNodeRepo) GetByID(dbc dbctx.Context, id int64) (*domain.GPCNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == 0 {
		return nil, nil
	}
	var row domain.GPCNode
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *gpcNodeRepo) GetByCode(dbc dbctx.Context, code string) (*domain.GPCNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var row domain.GPCNode
	if err := t.WithContext(dbc.Ctx).Where("code = ?", code).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *gpcNodeRepo) Create(dbc dbctx.Context, node *domain.GPCNode) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx).Create(node).Error
}

func (r *gpcNodeRepo) Update(dbc dbctx.Context, node *domain.GPCNode) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	// Save only the fields re-import is allowed to converge; id, level and the
	// category labels stay untouched.
	return t.WithContext(dbc.Ctx).
		Model(&domain.GPCNode{}).
		Where("id = ?", node.ID).
		Updates(map[string]any{
			"title":               node.Title,
			"full_title":          node.FullTitle,
			"definition":          node.Definition,
			"definition_excludes": node.DefinitionExcludes,
			"active":              node.Active,
			"parent_id":           node.ParentID,
		}).Error
}

func (r *gpcNodeRepo) GetUnlabeled(dbc dbctx.Context, level int) ([]*domain.GPCNode, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.GPCNode
	if level != 2 && level != 3 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("level = ? AND "+categoryColumn(level)+" IS NULL", level).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gpcNodeRepo) SetCategories(dbc dbctx.Context, level int, labels map[int64]string) (int, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if (level != 2 && level != 3) || len(labels) == 0 {
		return 0, nil
	}
	col := categoryColumn(level)
	updated := 0
	for id, label := range labels {
		label = strings.TrimSpace(label)
		if id == 0 || label == "" {
			continue
		}
		// The IS NULL guard keeps already-set labels immutable even if the
		// selection raced a previous run.
		res := t.WithContext(dbc.Ctx).
			Model(&domain.GPCNode{}).
			Where("id = ? AND "+col+" IS NULL", id).
			Update(col, label)
		if res.Error != nil {
			return updated, res.Error
		}
		updated += int(res.RowsAffected)
	}
	return updated, nil
}

func categoryColumn(level int) string {
	if level == 2 {
		return "level_2_category"
	}
	return "level_3_category"
}
