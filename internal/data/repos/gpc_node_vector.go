package repos

import (
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shelfsense/gpcsearch/internal/domain"
	"github.com/shelfsense/gpcsearch/internal/pkg/dbctx"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
)

type GPCNodeVectorRepo interface {
	Exists(dbc dbctx.Context, id int64) (bool, error)
	InsertIfAbsent(dbc dbctx.Context, row *domain.GPCNodeVector) error
	NearestByL2(dbc dbctx.Context, query pgvector.Vector) (*domain.GPCNodeVector, error)
}

type gpcNodeVectorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGPCNodeVectorRepo(db *gorm.DB, baseLog *logger.Logger) GPCNodeVectorRepo {
	return &gpcNodeVectorRepo{db: db, log: baseLog.With("repo", "GPCNodeVectorRepo")}
}

func (r *gpcNodeVectorRepo) Exists(dbc dbctx.Context, id int64) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == 0 {
		return false, nil
	}
	var count int64
	if err := t.WithContext(dbc.Ctx).
		Model(&domain.GPCNodeVector{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertIfAbsent creates the row unless one with the same id already exists.
// The conflict clause makes the at-most-once guarantee hold without relying on
// the caller's existence check.
func (r *gpcNodeVectorRepo) InsertIfAbsent(dbc dbctx.Context, row *domain.GPCNodeVector) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.ID == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(row).Error
}

// NearestByL2 returns the single stored vector closest to query by Euclidean
// distance, or nil when the table is empty. No distance cutoff is applied.
func (r *gpcNodeVectorRepo) NearestByL2(dbc dbctx.Context, query pgvector.Vector) (*domain.GPCNodeVector, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row domain.GPCNodeVector
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{SQL: "embedding <-> ?", Vars: []interface{}{query}, WithoutParentheses: true},
		}).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}
