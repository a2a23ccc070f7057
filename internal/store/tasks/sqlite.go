package tasks

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"ops-dashboard/internal/models"
)

// SQLiteStore keeps tasks in the dashboard database. Deletes are soft.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&models.Task{}); err != nil {
		return nil, errors.Wrap(err, "migrate tasks")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) List(ctx context.Context) ([]Task, error) {
	var rows []models.Task
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromModel(r))
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Task, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return Task{}, err
	}
	return fromModel(row), nil
}

func (s *SQLiteStore) Create(ctx context.Context, t Task) (Task, error) {
	t, err := WithDefaults(t)
	if err != nil {
		return Task{}, err
	}
	row := toModel(t)
	row.ID = uuid.NewString()
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Task{}, errors.Wrap(err, "create task")
	}
	return fromModel(row), nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, p Patch) (Task, error) {
	if err := p.Validate(); err != nil {
		return Task{}, err
	}
	row, err := s.load(ctx, id)
	if err != nil {
		return Task{}, err
	}

	updates := map[string]interface{}{}
	if p.Title != nil {
		updates["title"] = *p.Title
	}
	if p.Status != nil {
		updates["status"] = string(*p.Status)
	}
	if p.Assignee != nil {
		updates["assignee"] = *p.Assignee
	}
	if p.Priority != nil {
		updates["priority"] = *p.Priority
	}
	if p.DueDate != nil {
		updates["due_date"] = *p.DueDate
	}
	if p.Note != nil {
		updates["note"] = *p.Note
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&row).Updates(updates).Error; err != nil {
			return Task{}, errors.Wrapf(err, "update task %s", id)
		}
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Task{}, "id = ?", id)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete task %s", id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) load(ctx context.Context, id string) (models.Task, error) {
	var row models.Task
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, ErrNotFound
	}
	if err != nil {
		return row, errors.Wrapf(err, "load task %s", id)
	}
	return row, nil
}

func fromModel(m models.Task) Task {
	return Task{
		ID:       m.ID,
		Title:    m.Title,
		Status:   ParseStatus(m.Status),
		Assignee: m.Assignee,
		Priority: m.Priority,
		DueDate:  m.DueDate,
		Note:     m.Note,
	}
}

func toModel(t Task) models.Task {
	return models.Task{
		ID:       t.ID,
		Title:    t.Title,
		Status:   string(t.Status),
		Assignee: t.Assignee,
		Priority: t.Priority,
		DueDate:  t.DueDate,
		Note:     t.Note,
	}
}
