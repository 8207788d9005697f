package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asecn/asecn/internal/affinity"
	"github.com/asecn/asecn/internal/dispatch"
	"github.com/asecn/asecn/internal/orchestrator"
	"github.com/asecn/asecn/internal/storage"
)

// Repository implements the data operations of storage.Store on any GORM
// dialect. The SQLite backend reuses it unchanged.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a Repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// SaveAffinity writes one batch of snapshot rows in a single transaction.
func (r *Repository) SaveAffinity(ctx context.Context, snapshot map[string]affinity.Metrics) error {
	if len(snapshot) == 0 {
		return nil
	}
	batch := uuid.New()
	now := r.now()
	rows := make([]AffinitySnapshotModel, 0, len(snapshot))
	for desc, m := range snapshot {
		rows = append(rows, AffinitySnapshotModel{
			ID:          uuid.New(),
			BatchID:     batch,
			Description: desc,
			Magnitude:   m.Magnitude,
			Phase:       m.Phase,
			LinkCount:   m.LinkCount,
			CreatedAt:   now,
		})
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("saving affinity snapshot: %w", err)
		}
		return nil
	})
}

// LatestAffinity returns the rows of the most recent batch.
func (r *Repository) LatestAffinity(ctx context.Context) (map[string]affinity.Metrics, error) {
	out := make(map[string]affinity.Metrics)

	var latest AffinitySnapshotModel
	err := r.db.WithContext(ctx).Order("created_at DESC").First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding latest affinity batch: %w", err)
	}

	var rows []AffinitySnapshotModel
	if err := r.db.WithContext(ctx).Where("batch_id = ?", latest.BatchID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading affinity batch: %w", err)
	}
	for _, row := range rows {
		out[row.Description] = affinity.Metrics{
			Magnitude: row.Magnitude,
			Phase:     row.Phase,
			LinkCount: row.LinkCount,
		}
	}
	return out, nil
}

// SaveConversation appends a conversation dump.
func (r *Repository) SaveConversation(ctx context.Context, dump string) error {
	if dump == "" {
		return nil
	}
	model := ConversationDumpModel{
		ID:        uuid.New(),
		Content:   dump,
		Bytes:     len(dump),
		CreatedAt: r.now(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("saving conversation dump: %w", err)
	}
	return nil
}

// LatestConversation returns the most recent dump or storage.ErrNotFound.
func (r *Repository) LatestConversation(ctx context.Context) (string, error) {
	var model ConversationDumpModel
	err := r.db.WithContext(ctx).Order("created_at DESC").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading conversation dump: %w", err)
	}
	return model.Content, nil
}

// SaveTask upserts a task result by TaskID.
func (r *Repository) SaveTask(ctx context.Context, res *orchestrator.TaskResult) error {
	model, err := toTaskModel(res)
	if err != nil {
		return err
	}
	model.CreatedAt = r.now()
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("saving task %s: %w", res.TaskID, err)
	}
	return nil
}

// GetTask loads one task result.
func (r *Repository) GetTask(ctx context.Context, id uuid.UUID) (*orchestrator.TaskResult, error) {
	var model TaskResultModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	return fromTaskModel(&model)
}

// ListTasks returns the newest task results first.
func (r *Repository) ListTasks(ctx context.Context, limit int) ([]*orchestrator.TaskResult, error) {
	var models []TaskResultModel
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(storage.Limit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	out := make([]*orchestrator.TaskResult, 0, len(models))
	for i := range models {
		res, err := fromTaskModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// --- conversion ---

func toTaskModel(res *orchestrator.TaskResult) (TaskResultModel, error) {
	results := res.Results
	if results == nil {
		results = []dispatch.ActionResult{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return TaskResultModel{}, fmt.Errorf("encoding results of task %s: %w", res.TaskID, err)
	}
	return TaskResultModel{
		ID:          res.TaskID,
		Description: res.Description,
		Workflow:    res.Workflow,
		Status:      res.Status,
		Error:       res.Error,
		Results:     JSONB(raw),
		Magnitude:   res.Affinity.Magnitude,
		Phase:       res.Affinity.Phase,
		LinkCount:   res.Affinity.LinkCount,
		DurationMS:  res.Duration.Milliseconds(),
		StartedAt:   res.StartedAt,
	}, nil
}

func fromTaskModel(m *TaskResultModel) (*orchestrator.TaskResult, error) {
	results := []dispatch.ActionResult{}
	if len(m.Results) > 0 {
		if err := json.Unmarshal(m.Results, &results); err != nil {
			return nil, fmt.Errorf("decoding results of task %s: %w", m.ID, err)
		}
	}
	return &orchestrator.TaskResult{
		TaskID:      m.ID,
		Description: m.Description,
		Status:      m.Status,
		Workflow:    m.Workflow,
		Results:     results,
		Affinity: affinity.Metrics{
			Magnitude: m.Magnitude,
			Phase:     m.Phase,
			LinkCount: m.LinkCount,
		},
		Error:     m.Error,
		StartedAt: m.StartedAt.UTC(),
		Duration:  time.Duration(m.DurationMS) * time.Millisecond,
	}, nil
}
