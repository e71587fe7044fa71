package services

import (
	"context"
	"log/slog"

	"github.com/openedu/course-service/internal/cache"
	"github.com/openedu/course-service/internal/events"
	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/validator"
)

type contentService struct {
	repo      repositories.Repository
	cache     *cache.CacheManager
	events    events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewContentService(
	repo repositories.Repository,
	cacheManager *cache.CacheManager,
	publisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
) ContentService {
	return &contentService{
		repo:      repo,
		cache:     cacheManager,
		events:    publisher,
		logger:    logger,
		validator: v,
	}
}

// ===== SEQUENCE PRIMITIVES =====

// insertionOrder resolves where a new row lands in scopeID: a nil request
// appends after the current maximum, an explicit order is clamped into
// [1, max+1] and the tail is shifted up to make room.
func insertionOrder(ctx context.Context, seq repositories.SequenceRepository, scopeID uint, requested *int) (int, error) {
	max, err := seq.MaxOrder(ctx, scopeID)
	if err != nil {
		return 0, err
	}
	if requested == nil || *requested > max {
		return max + 1, nil
	}
	order := *requested
	if order < 1 {
		order = 1
	}
	if err := seq.ShiftUp(ctx, scopeID, order); err != nil {
		return 0, err
	}
	return order, nil
}

// relocate moves one row from (sourceScope, sourceOrder) to (targetScope,
// targetOrder), keeping both scopes dense. The row is parked on the sentinel
// first so neither shift phase can collide with it.
func relocate(
	ctx context.Context,
	seq repositories.SequenceRepository,
	id uint,
	sourceScope uint, sourceOrder int,
	targetScope uint, targetOrder int,
) (int, error) {
	max, err := seq.MaxOrder(ctx, targetScope)
	if err != nil {
		return 0, err
	}
	// The row itself frees a slot when it stays in the same scope.
	limit := max + 1
	if targetScope == sourceScope {
		limit = max
	}
	if targetOrder > limit {
		targetOrder = limit
	}
	if targetOrder < 1 {
		targetOrder = 1
	}
	if targetScope == sourceScope && targetOrder == sourceOrder {
		return targetOrder, nil
	}

	if err := seq.Park(ctx, id); err != nil {
		return 0, err
	}
	if err := seq.ShiftDown(ctx, sourceScope, sourceOrder); err != nil {
		return 0, err
	}
	if err := seq.ShiftUp(ctx, targetScope, targetOrder); err != nil {
		return 0, err
	}
	if err := seq.Place(ctx, id, targetScope, targetOrder); err != nil {
		return 0, err
	}
	return targetOrder, nil
}

// deactivate soft-deletes one row and closes the gap it leaves. The offset
// comes from the highest order ever used in the scope, so a reused position
// can never collide with the deactivated row.
func deactivate(ctx context.Context, seq repositories.SequenceRepository, id uint, scopeID uint, order int) error {
	offset, err := seq.NextDeletedOffset(ctx, scopeID)
	if err != nil {
		return err
	}
	affected, err := seq.Deactivate(ctx, id, offset)
	if err != nil {
		return err
	}
	if affected == 0 {
		return NewNotFoundError("content", id)
	}
	return seq.ShiftDown(ctx, scopeID, order)
}

// ===== UNITS =====

func (s *contentService) CreateUnit(ctx context.Context, req *CreateUnitRequest) (*models.CourseUnitContent, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}
	if _, err := s.repo.Course().GetByID(ctx, req.CourseID); err != nil {
		return nil, translateRepositoryError(err, "course", req.CourseID)
	}

	unit := &models.CourseUnitContent{
		CourseID: req.CourseID,
		Name:     req.Name,
		Active:   true,
	}
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		order, err := insertionOrder(ctx, txRepo.Unit(), req.CourseID, req.ContentOrder)
		if err != nil {
			return translateRepositoryError(err, "unit", req.CourseID)
		}
		unit.ContentOrder = order
		if err := txRepo.Unit().Create(ctx, unit); err != nil {
			return translateRepositoryError(err, "unit", req.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateCourseCache(ctx, s.cache, req.CourseID)
	s.logger.InfoContext(ctx, "unit created",
		"unit_id", unit.ID,
		"course_id", req.CourseID,
		"content_order", unit.ContentOrder)
	return unit, nil
}

func (s *contentService) UpdateUnit(ctx context.Context, id uint, req *UpdateUnitRequest) (*models.CourseUnitContent, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if len(updates) > 0 {
		affected, err := s.repo.Unit().UpdateFields(ctx, id, updates)
		if err != nil {
			return nil, translateRepositoryError(err, "unit", id)
		}
		if affected == 0 {
			return nil, NewNotFoundError("unit", id)
		}
	}

	unit, err := s.repo.Unit().GetByID(ctx, id)
	if err != nil {
		return nil, translateRepositoryError(err, "unit", id)
	}
	cache.InvalidateCourseCache(ctx, s.cache, unit.CourseID)
	return unit, nil
}

func (s *contentService) RelocateUnit(ctx context.Context, id uint, req *RelocateRequest) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	unit, err := s.repo.Unit().GetByID(ctx, id)
	if err != nil {
		return translateRepositoryError(err, "unit", id)
	}
	if !unit.Active {
		return NewNotFoundError("unit", id)
	}

	targetCourse := unit.CourseID
	if req.TargetScopeID != nil {
		targetCourse = *req.TargetScopeID
		if _, err := s.repo.Course().GetByID(ctx, targetCourse); err != nil {
			return translateRepositoryError(err, "course", targetCourse)
		}
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		_, err := relocate(ctx, txRepo.Unit(), id, unit.CourseID, unit.ContentOrder, targetCourse, req.TargetOrder)
		return err
	})
	if err != nil {
		return translateRepositoryError(err, "unit", id)
	}

	cache.InvalidateCourseCache(ctx, s.cache, unit.CourseID)
	if targetCourse != unit.CourseID {
		cache.InvalidateCourseCache(ctx, s.cache, targetCourse)
	}
	return nil
}

func (s *contentService) DeleteUnit(ctx context.Context, id uint) (*DeleteResult, error) {
	unit, err := s.repo.Unit().GetByID(ctx, id)
	if err != nil {
		return nil, translateRepositoryError(err, "unit", id)
	}
	if !unit.Active {
		return nil, NewNotFoundError("unit", id)
	}

	result := &DeleteResult{}
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		topics, err := txRepo.Topic().GetByUnit(ctx, id)
		if err != nil {
			return translateRepositoryError(err, "topic", id)
		}
		// GetByUnit returns a snapshot ordered ascending. Cascading from
		// the highest order down keeps every captured order accurate:
		// each ShiftDown only touches rows above the one just removed.
		for i := len(topics) - 1; i >= 0; i-- {
			if err := s.deleteTopicCascade(ctx, txRepo, topics[i], result); err != nil {
				return err
			}
		}
		if err := deactivate(ctx, txRepo.Unit(), id, unit.CourseID, unit.ContentOrder); err != nil {
			return translateRepositoryError(err, "unit", id)
		}
		result.UnitsDeleted++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.finishDelete(ctx, "unit", id, unit.CourseID, result)
	return result, nil
}

// ===== TOPICS =====

func (s *contentService) CreateTopic(ctx context.Context, req *CreateTopicRequest) (*models.CourseTopicContent, error) {
	if errs := s.validator.ValidateTopicCreate(req); len(errs) > 0 {
		return nil, errs
	}
	unit, err := s.repo.Unit().GetByID(ctx, req.UnitID)
	if err != nil {
		return nil, translateRepositoryError(err, "unit", req.UnitID)
	}

	topic := &models.CourseTopicContent{
		UnitID:        req.UnitID,
		Name:          req.Name,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		DeadDate:      req.DeadDate,
		PartialExtend: req.PartialExtend,
		Active:        true,
	}
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		order, err := insertionOrder(ctx, txRepo.Topic(), req.UnitID, req.ContentOrder)
		if err != nil {
			return translateRepositoryError(err, "topic", req.UnitID)
		}
		topic.ContentOrder = order
		if err := txRepo.Topic().Create(ctx, topic); err != nil {
			return translateRepositoryError(err, "topic", req.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateCourseCache(ctx, s.cache, unit.CourseID)
	s.logger.InfoContext(ctx, "topic created",
		"topic_id", topic.ID,
		"unit_id", req.UnitID,
		"content_order", topic.ContentOrder)
	return topic, nil
}

func (s *contentService) UpdateTopic(ctx context.Context, id uint, req *UpdateTopicRequest) (*models.CourseTopicContent, error) {
	topic, err := s.repo.Topic().GetByID(ctx, id)
	if err != nil {
		return nil, translateRepositoryError(err, "topic", id)
	}
	if errs := s.validator.ValidateTopicUpdate(req, topic); len(errs) > 0 {
		return nil, errs
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.StartDate != nil {
		updates["start_date"] = *req.StartDate
	}
	if req.EndDate != nil {
		updates["end_date"] = *req.EndDate
	}
	if req.DeadDate != nil {
		updates["dead_date"] = *req.DeadDate
	}
	if req.PartialExtend != nil {
		updates["partial_extend"] = *req.PartialExtend
	}
	if len(updates) > 0 {
		affected, err := s.repo.Topic().UpdateFields(ctx, id, updates)
		if err != nil {
			return nil, translateRepositoryError(err, "topic", id)
		}
		if affected == 0 {
			return nil, NewNotFoundError("topic", id)
		}
	}

	topic, err = s.repo.Topic().GetByID(ctx, id)
	if err != nil {
		return nil, translateRepositoryError(err, "topic", id)
	}
	s.invalidateTopicScope(ctx, topic.UnitID)
	return topic, nil
}

func (s *contentService) RelocateTopic(ctx context.Context, id uint, req *RelocateRequest) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	topic, err := s.repo.Topic().GetByID(ctx, id)
	if err != nil {
		return translateRepositoryError(err, "topic", id)
	}
	if !topic.Active {
		return NewNotFoundError("topic", id)
	}

	targetUnit := topic.UnitID
	if req.TargetScopeID != nil {
		targetUnit = *req.TargetScopeID
		if _, err := s.repo.Unit().GetByID(ctx, targetUnit); err != nil {
			return translateRepositoryError(err, "unit", targetUnit)
		}
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		_, err := relocate(ctx, txRepo.Topic(), id, topic.UnitID, topic.ContentOrder, targetUnit, req.TargetOrder)
		return err
	})
	if err != nil {
		return translateRepositoryError(err, "topic", id)
	}

	s.invalidateTopicScope(ctx, topic.UnitID)
	if targetUnit != topic.UnitID {
		s.invalidateTopicScope(ctx, targetUnit)
	}
	return nil
}

func (s *contentService) DeleteTopic(ctx context.Context, id uint) (*DeleteResult, error) {
	topic, err := s.repo.Topic().GetByID(ctx, id)
	if err != nil {
		return nil, translateRepositoryError(err, "topic", id)
	}
	if !topic.Active {
		return nil, NewNotFoundError("topic", id)
	}

	result := &DeleteResult{}
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return s.deleteTopicCascade(ctx, txRepo, topic, result)
	})
	if err != nil {
		return nil, err
	}

	s.finishDelete(ctx, "topic", id, s.courseIDOfUnit(ctx, topic.UnitID), result)
	return result, nil
}

// deleteTopicCascade deactivates a topic and all its active questions inside
// the caller's transaction.
func (s *contentService) deleteTopicCascade(ctx context.Context, txRepo repositories.Repository, topic *models.CourseTopicContent, result *DeleteResult) error {
	questions, err := txRepo.Question().GetByTopic(ctx, repositories.QuestionFilters{
		TopicID:       &topic.ID,
		IncludeHidden: true,
	})
	if err != nil {
		return translateRepositoryError(err, "question", topic.ID)
	}
	// The rows are a snapshot ordered ascending; deactivating the first one
	// renumbers its siblings, so walking upward would hand deactivate stale
	// numbers and collide on the active unique index. Walk downward instead.
	for i := len(questions) - 1; i >= 0; i-- {
		question := questions[i]
		if err := deactivate(ctx, txRepo.Question(), question.ID, topic.ID, question.ProblemNumber); err != nil {
			return translateRepositoryError(err, "question", question.ID)
		}
		result.QuestionsDeleted++
	}
	if err := deactivate(ctx, txRepo.Topic(), topic.ID, topic.UnitID, topic.ContentOrder); err != nil {
		return translateRepositoryError(err, "topic", topic.ID)
	}
	result.TopicsDeleted++
	return nil
}

func (s *contentService) GetTopic(ctx context.Context, id uint) (*models.CourseTopicContent, error) {
	topic, err := s.repo.Topic().GetByIDWithQuestions(ctx, id)
	if err != nil {
		return nil, translateRepositoryError(err, "topic", id)
	}
	return topic, nil
}

func (s *contentService) GetTopics(ctx context.Context, filters repositories.TopicFilters) ([]*models.CourseTopicContent, error) {
	topics, err := s.repo.Topic().List(ctx, filters)
	if err != nil {
		return nil, translateRepositoryError(err, "topic", "list")
	}
	return topics, nil
}

// ===== QUESTIONS =====

// CreateQuestion inserts the question and backfills a grade row for every
// actively enrolled student in the same transaction, so no submission can
// land between the two.
func (s *contentService) CreateQuestion(ctx context.Context, req *CreateQuestionRequest) (*models.CourseTopicQuestion, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}
	topic, err := s.repo.Topic().GetByID(ctx, req.TopicID)
	if err != nil {
		return nil, translateRepositoryError(err, "topic", req.TopicID)
	}

	weight := req.Weight
	if weight == 0 {
		weight = 1
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = models.UnlimitedAttempts
	}

	question := &models.CourseTopicQuestion{
		TopicID:             req.TopicID,
		Weight:              weight,
		MaxAttempts:         maxAttempts,
		Hidden:              req.Hidden,
		Optional:            req.Optional,
		WebworkQuestionPath: req.WebworkQuestionPath,
		Active:              true,
	}
	var gradesCreated int
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		order, err := insertionOrder(ctx, txRepo.Question(), req.TopicID, req.ProblemNumber)
		if err != nil {
			return translateRepositoryError(err, "question", req.TopicID)
		}
		question.ProblemNumber = order
		if err := txRepo.Question().Create(ctx, question); err != nil {
			return translateRepositoryError(err, "question", req.TopicID)
		}
		gradesCreated, err = createMissingGradesForQuestion(ctx, txRepo, question.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateTopicScope(ctx, topic.UnitID)
	s.logger.InfoContext(ctx, "question created",
		"question_id", question.ID,
		"topic_id", req.TopicID,
		"problem_number", question.ProblemNumber,
		"grades_created", gradesCreated)
	return question, nil
}

func (s *contentService) UpdateQuestion(ctx context.Context, id uint, req *UpdateQuestionRequest) (*models.CourseTopicQuestion, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	question, err := s.repo.Question().GetByID(ctx, id)
	if err != nil {
		return nil, translateRepositoryError(err, "question", id)
	}
	if req.Weight != nil {
		question.Weight = *req.Weight
	}
	if req.MaxAttempts != nil {
		question.MaxAttempts = *req.MaxAttempts
	}
	if req.Hidden != nil {
		question.Hidden = *req.Hidden
	}
	if req.Optional != nil {
		question.Optional = *req.Optional
	}
	if req.WebworkQuestionPath != nil {
		question.WebworkQuestionPath = *req.WebworkQuestionPath
	}

	if err := s.repo.Question().Update(ctx, question); err != nil {
		return nil, translateRepositoryError(err, "question", id)
	}
	cache.InvalidateQuestionCache(ctx, s.cache, id)
	return question, nil
}

func (s *contentService) RelocateQuestion(ctx context.Context, id uint, req *RelocateRequest) error {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return errs
	}

	question, err := s.repo.Question().GetByID(ctx, id)
	if err != nil {
		return translateRepositoryError(err, "question", id)
	}
	if !question.Active {
		return NewNotFoundError("question", id)
	}

	targetTopic := question.TopicID
	if req.TargetScopeID != nil {
		targetTopic = *req.TargetScopeID
		if _, err := s.repo.Topic().GetByID(ctx, targetTopic); err != nil {
			return translateRepositoryError(err, "topic", targetTopic)
		}
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		_, err := relocate(ctx, txRepo.Question(), id, question.TopicID, question.ProblemNumber, targetTopic, req.TargetOrder)
		if err != nil {
			return err
		}
		// A question moved into another topic needs grade rows for that
		// topic's students.
		if targetTopic != question.TopicID {
			if _, err := createMissingGradesForQuestion(ctx, txRepo, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translateRepositoryError(err, "question", id)
	}

	cache.InvalidateQuestionCache(ctx, s.cache, id)
	return nil
}

func (s *contentService) DeleteQuestion(ctx context.Context, id uint) (*DeleteResult, error) {
	question, err := s.repo.Question().GetByID(ctx, id)
	if err != nil {
		return nil, translateRepositoryError(err, "question", id)
	}
	if !question.Active {
		return nil, NewNotFoundError("question", id)
	}

	result := &DeleteResult{}
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := deactivate(ctx, txRepo.Question(), id, question.TopicID, question.ProblemNumber); err != nil {
			return translateRepositoryError(err, "question", id)
		}
		result.QuestionsDeleted++
		return nil
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateQuestionCache(ctx, s.cache, id)
	s.publishContentDeleted(ctx, "question", id, 0, result)
	return result, nil
}

// ===== OVERRIDES =====

func (s *contentService) CreateTopicOverride(ctx context.Context, req *TopicOverrideRequest) (*models.StudentTopicOverride, error) {
	topic, err := s.repo.Topic().GetByID(ctx, req.TopicID)
	if err != nil {
		return nil, translateRepositoryError(err, "topic", req.TopicID)
	}
	if errs := s.validator.ValidateTopicOverride(req, topic); len(errs) > 0 {
		return nil, errs
	}

	exists, err := s.repo.User().ExistsByID(ctx, req.UserID)
	if err != nil {
		return nil, translateRepositoryError(err, "user", req.UserID)
	}
	if !exists {
		return nil, NewNotFoundError("user", req.UserID)
	}

	override := &models.StudentTopicOverride{
		UserID:    req.UserID,
		TopicID:   req.TopicID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		DeadDate:  req.DeadDate,
		Active:    true,
	}
	if err := s.repo.Override().CreateTopicOverride(ctx, override); err != nil {
		return nil, translateRepositoryError(err, "override", req.TopicID)
	}

	s.logger.InfoContext(ctx, "topic override created",
		"topic_id", req.TopicID,
		"user_id", req.UserID)
	return override, nil
}

func (s *contentService) CreateQuestionOverride(ctx context.Context, req *QuestionOverrideRequest) (*models.StudentTopicQuestionOverride, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}
	if _, err := s.repo.Question().GetByID(ctx, req.QuestionID); err != nil {
		return nil, translateRepositoryError(err, "question", req.QuestionID)
	}

	exists, err := s.repo.User().ExistsByID(ctx, req.UserID)
	if err != nil {
		return nil, translateRepositoryError(err, "user", req.UserID)
	}
	if !exists {
		return nil, NewNotFoundError("user", req.UserID)
	}

	override := &models.StudentTopicQuestionOverride{
		UserID:      req.UserID,
		QuestionID:  req.QuestionID,
		MaxAttempts: req.MaxAttempts,
		Active:      true,
	}
	if err := s.repo.Override().CreateQuestionOverride(ctx, override); err != nil {
		return nil, translateRepositoryError(err, "override", req.QuestionID)
	}

	s.logger.InfoContext(ctx, "question override created",
		"question_id", req.QuestionID,
		"user_id", req.UserID)
	return override, nil
}

// ===== SHARED =====

func (s *contentService) invalidateTopicScope(ctx context.Context, unitID uint) {
	if courseID := s.courseIDOfUnit(ctx, unitID); courseID != 0 {
		cache.InvalidateCourseCache(ctx, s.cache, courseID)
	}
}

func (s *contentService) courseIDOfUnit(ctx context.Context, unitID uint) uint {
	unit, err := s.repo.Unit().GetByID(ctx, unitID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve unit's course for cache invalidation",
			"error", err,
			"unit_id", unitID)
		return 0
	}
	return unit.CourseID
}

func (s *contentService) finishDelete(ctx context.Context, level string, id uint, courseID uint, result *DeleteResult) {
	if courseID != 0 {
		cache.InvalidateCourseCache(ctx, s.cache, courseID)
	}
	s.publishContentDeleted(ctx, level, id, courseID, result)
	s.logger.InfoContext(ctx, "content deleted",
		"level", level,
		"content_id", id,
		"units_deleted", result.UnitsDeleted,
		"topics_deleted", result.TopicsDeleted,
		"questions_deleted", result.QuestionsDeleted)
}

func (s *contentService) publishContentDeleted(ctx context.Context, level string, id uint, courseID uint, result *DeleteResult) {
	event := events.NewEvent(events.EventTypeContentDeleted, events.ContentDeletedEvent{
		Level:        level,
		ContentID:    id,
		CourseID:     courseID,
		DeletedCount: result.Total(),
	})
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish content.deleted event",
			"error", err,
			"level", level,
			"content_id", id)
	}
}
