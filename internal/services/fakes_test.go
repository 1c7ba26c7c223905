package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/shelfsense/gpcsearch/internal/domain"
	"github.com/shelfsense/gpcsearch/internal/pkg/dbctx"
	"github.com/shelfsense/gpcsearch/internal/pkg/logger"
)

func dbc() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// testDB provides a transaction runner for services; all actual reads and
// writes go through the fakes below.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

type fakeNodeRepo struct {
	nextID  int64
	byID    map[int64]*domain.GPCNode
	creates int
	updates int
}

func newFakeNodeRepo() *fakeNodeRepo {
	return &fakeNodeRepo{byID: map[int64]*domain.GPCNode{}}
}

func (r *fakeNodeRepo) GetByID(dbc dbctx.Context, id int64) (*domain.GPCNode, error) {
	node, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *node
	return &cp, nil
}

func (r *fakeNodeRepo) GetByCode(dbc dbctx.Context, code string) (*domain.GPCNode, error) {
	for _, node := range r.byID {
		if node.Code == code {
			cp := *node
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeNodeRepo) Create(dbc dbctx.Context, node *domain.GPCNode) error {
	r.nextID++
	node.ID = r.nextID
	cp := *node
	r.byID[node.ID] = &cp
	r.creates++
	return nil
}

func (r *fakeNodeRepo) Update(dbc dbctx.Context, node *domain.GPCNode) error {
	stored, ok := r.byID[node.ID]
	if !ok {
		return fmt.Errorf("update of unknown node %d", node.ID)
	}
	stored.Title = node.Title
	stored.FullTitle = node.FullTitle
	stored.Definition = node.Definition
	stored.DefinitionExcludes = node.DefinitionExcludes
	stored.Active = node.Active
	stored.ParentID = node.ParentID
	r.updates++
	return nil
}

func (r *fakeNodeRepo) GetUnlabeled(dbc dbctx.Context, level int) ([]*domain.GPCNode, error) {
	var out []*domain.GPCNode
	for _, node := range r.byID {
		if node.Level != level {
			continue
		}
		if level == 2 && node.Level2Category != nil {
			continue
		}
		if level == 3 && node.Level3Category != nil {
			continue
		}
		cp := *node
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeNodeRepo) SetCategories(dbc dbctx.Context, level int, labels map[int64]string) (int, error) {
	updated := 0
	for id, label := range labels {
		node, ok := r.byID[id]
		if !ok || strings.TrimSpace(label) == "" {
			continue
		}
		label := label
		switch level {
		case 2:
			if node.Level2Category == nil {
				node.Level2Category = &label
				updated++
			}
		case 3:
			if node.Level3Category == nil {
				node.Level3Category = &label
				updated++
			}
		}
	}
	return updated, nil
}

type fakeVectorRepo struct {
	rows    map[int64]*domain.GPCNodeVector
	nearest *domain.GPCNodeVector
	inserts int
}

func newFakeVectorRepo() *fakeVectorRepo {
	return &fakeVectorRepo{rows: map[int64]*domain.GPCNodeVector{}}
}

func (r *fakeVectorRepo) Exists(dbc dbctx.Context, id int64) (bool, error) {
	_, ok := r.rows[id]
	return ok, nil
}

func (r *fakeVectorRepo) InsertIfAbsent(dbc dbctx.Context, row *domain.GPCNodeVector) error {
	if _, ok := r.rows[row.ID]; ok {
		return nil
	}
	r.rows[row.ID] = row
	r.inserts++
	return nil
}

func (r *fakeVectorRepo) NearestByL2(dbc dbctx.Context, query pgvector.Vector) (*domain.GPCNodeVector, error) {
	return r.nearest, nil
}

type fakeAI struct {
	embedCalls    int
	embedInputs   []string
	embedFailOn   string
	generateCalls int
	generateFn    func(system, user string) (string, error)
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.embedCalls++
	f.embedInputs = append(f.embedInputs, inputs...)
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if f.embedFailOn != "" && strings.Contains(in, f.embedFailOn) {
			return nil, fmt.Errorf("embedding service unavailable")
		}
		vec := make([]float32, domain.EmbeddingDim)
		for j := range vec {
			vec[j] = float32((len(in)+j)%7) / 7
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.generateCalls++
	if f.generateFn != nil {
		return f.generateFn(system, user)
	}
	return "generated", nil
}
