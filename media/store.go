package media

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Store is the record store consumed by the pipeline and the HTTP layer.
type Store interface {
	Create(ctx context.Context, video *Video) error
	FindByID(ctx context.Context, id string) (*Video, error)
	// Save applies a partial update to an existing record. It never creates
	// a record; if id does not exist ErrNotFound is returned.
	Save(ctx context.Context, id string, patch Patch) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter Filter) ([]Video, int64, error)
	ListByStatus(ctx context.Context, status Status) ([]Video, error)
	UpdateDetails(ctx context.Context, id string, title, description *string) error
}

type GormStore struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	return &GormStore{
		db:  db,
		log: logger.WithField("component", "media"),
	}
}

// Migrate creates or updates the videos table.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&Video{})
}

func (s *GormStore) Create(ctx context.Context, video *Video) error {
	if err := s.db.WithContext(ctx).Create(video).Error; err != nil {
		return NewFailure(PersistenceFailure, err)
	}
	return nil
}

func (s *GormStore) FindByID(ctx context.Context, id string) (*Video, error) {
	var video Video
	err := s.db.WithContext(ctx).First(&video, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, NewFailure(PersistenceFailure, err)
	}
	return &video, nil
}

func (s *GormStore) Save(ctx context.Context, id string, patch Patch) error {
	cols := patch.columns()
	if len(cols) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).Model(&Video{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return NewFailure(PersistenceFailure, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	s.log.WithField("video", id).Debugf("saved %v", cols)
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&Video{}, "id = ?", id)
	if result.Error != nil {
		return NewFailure(PersistenceFailure, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, filter Filter) ([]Video, int64, error) {
	q := s.db.WithContext(ctx).Model(&Video{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.SensitivityStatus != "" {
		q = q.Where("sensitivity_status = ?", filter.SensitivityStatus)
	}
	if filter.Organization != nil {
		q = q.Where("organization = ?", *filter.Organization)
	}
	if filter.UploadedBy != 0 {
		q = q.Where("uploaded_by = ?", filter.UploadedBy)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, NewFailure(PersistenceFailure, err)
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var videos []Video
	if err := q.Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, 0, NewFailure(PersistenceFailure, err)
	}
	return videos, total, nil
}

func (s *GormStore) ListByStatus(ctx context.Context, status Status) ([]Video, error) {
	var videos []Video
	if err := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at").Find(&videos).Error; err != nil {
		return nil, NewFailure(PersistenceFailure, err)
	}
	return videos, nil
}

// UpdateDetails changes the user-editable fields of a record.
func (s *GormStore) UpdateDetails(ctx context.Context, id string, title, description *string) error {
	cols := make(map[string]any)
	if title != nil {
		cols["title"] = *title
	}
	if description != nil {
		cols["description"] = *description
	}
	if len(cols) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).Model(&Video{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return NewFailure(PersistenceFailure, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
