package repositories

import (
	"context"

	"github.com/openedu/course-service/internal/models"
)

// SequenceRepository is the per-level surface the ordered-sequence manager
// drives. Each implementation operates on one (table, scope column, order
// column) triple: units ordered within a course, topics within a unit,
// questions within a topic.
//
// ShiftDown and ShiftUp must be collision-free at every intermediate write:
// the postgres implementations negate the affected window first and then
// flip the negatives back, so no two rows ever share a positive order.
type SequenceRepository interface {
	// Park moves the row's order to the reserved sentinel so the shift
	// phases cannot collide with it.
	Park(ctx context.Context, id uint) error

	// Place writes the parked row into scopeID at order.
	Place(ctx context.Context, id uint, scopeID uint, order int) error

	// ShiftDown decrements by one the order of active rows in scopeID
	// whose order is strictly greater than after (and below the sentinel).
	ShiftDown(ctx context.Context, scopeID uint, after int) error

	// ShiftUp increments by one the order of active rows in scopeID whose
	// order is at least from (and below the sentinel).
	ShiftUp(ctx context.Context, scopeID uint, from int) error

	// MaxOrder returns the highest order among active rows in scopeID,
	// zero when the scope is empty.
	MaxOrder(ctx context.Context, scopeID uint) (int, error)

	// NextDeletedOffset returns one past the highest order value ever used
	// in scopeID, active or deleted. Offsets are monotonic and never
	// reused, so a deactivated row can never collide with a future active
	// one.
	NextDeletedOffset(ctx context.Context, scopeID uint) (int, error)

	// Deactivate soft-deletes the row: active=false, order pushed up by
	// offset, and the name (or problem number) tagged with the offset.
	// Returns the rows affected; zero means the row was already inactive.
	Deactivate(ctx context.Context, id uint, offset int) (int64, error)
}

type UnitRepository interface {
	SequenceRepository

	Create(ctx context.Context, unit *models.CourseUnitContent) error
	GetByID(ctx context.Context, id uint) (*models.CourseUnitContent, error)
	GetByIDWithTopics(ctx context.Context, id uint) (*models.CourseUnitContent, error)
	Update(ctx context.Context, unit *models.CourseUnitContent) error
	UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) (int64, error)
	GetByCourse(ctx context.Context, courseID uint) ([]*models.CourseUnitContent, error)

	Stats(ctx context.Context, courseID uint) ([]*ContentStats, error)
}

type TopicRepository interface {
	SequenceRepository

	Create(ctx context.Context, topic *models.CourseTopicContent) error
	GetByID(ctx context.Context, id uint) (*models.CourseTopicContent, error)
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.CourseTopicContent, error)
	Update(ctx context.Context, topic *models.CourseTopicContent) error
	UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) (int64, error)
	GetByUnit(ctx context.Context, unitID uint) ([]*models.CourseTopicContent, error)
	List(ctx context.Context, filters TopicFilters) ([]*models.CourseTopicContent, error)

	Stats(ctx context.Context, unitID *uint, courseID *uint) ([]*ContentStats, error)
}

type QuestionRepository interface {
	SequenceRepository

	Create(ctx context.Context, question *models.CourseTopicQuestion) error
	GetByID(ctx context.Context, id uint) (*models.CourseTopicQuestion, error)
	GetByIDWithTopic(ctx context.Context, id uint) (*models.CourseTopicQuestion, error)
	Update(ctx context.Context, question *models.CourseTopicQuestion) error
	GetByTopic(ctx context.Context, filters QuestionFilters) ([]*models.CourseTopicQuestion, error)

	Stats(ctx context.Context, topicID *uint, courseID *uint) ([]*ContentStats, error)
}
