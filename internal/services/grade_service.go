package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openedu/course-service/internal/cache"
	"github.com/openedu/course-service/internal/events"
	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/renderer"
	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/validator"
)

// DefaultShowSolutionsDelay is how long after a topic's dead date practice
// submissions are still tracked before solutions become visible.
const DefaultShowSolutionsDelay = 168 * time.Hour

type gradeService struct {
	repo      repositories.Repository
	renderer  renderer.Client
	events    events.EventPublisher
	cache     *cache.CacheManager
	logger    *slog.Logger
	validator *validator.Validator

	showSolutionsDelay time.Duration
}

func NewGradeService(
	repo repositories.Repository,
	rendererClient renderer.Client,
	publisher events.EventPublisher,
	cacheManager *cache.CacheManager,
	logger *slog.Logger,
	v *validator.Validator,
	showSolutionsDelay time.Duration,
) GradeService {
	if showSolutionsDelay <= 0 {
		showSolutionsDelay = DefaultShowSolutionsDelay
	}
	return &gradeService{
		repo:               repo,
		renderer:           rendererClient,
		events:             publisher,
		cache:              cacheManager,
		logger:             logger,
		validator:          v,
		showSolutionsDelay: showSolutionsDelay,
	}
}

// ===== RENDERING =====

func (s *gradeService) GetQuestion(ctx context.Context, req *GetQuestionRequest) (*RenderedQuestion, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	question, err := s.repo.Question().GetByIDWithTopic(ctx, req.QuestionID)
	if err != nil {
		return nil, translateRepositoryError(err, "question", req.QuestionID)
	}
	if question.Topic == nil {
		return nil, NewNotFoundError("topic", question.TopicID)
	}

	role, err := s.repo.User().GetRole(ctx, req.UserID)
	if err != nil {
		return nil, translateRepositoryError(err, "user", req.UserID)
	}

	// Users without a grade row (instructors previewing) render with the
	// fallback seed.
	seed := fallbackSeed
	var grade *models.StudentGrade
	grade, err = s.repo.Grade().GetByUserAndQuestion(ctx, req.UserID, req.QuestionID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			return nil, translateRepositoryError(err, "grade", req.QuestionID)
		}
		grade = nil
	} else {
		seed = grade.RandomSeed
	}

	effectiveTopic, err := resolveEffectiveTopic(ctx, s.repo, s.logger, req.UserID, question.Topic)
	if err != nil {
		return nil, err
	}
	effectiveQuestion, err := resolveEffectiveQuestion(ctx, s.repo, s.logger, req.UserID, question)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	canSubmit := now.Before(effectiveTopic.DeadDate) &&
		(grade == nil || (!grade.Locked && effectiveQuestion.hasAttemptsRemaining(grade.NumAttempts)))

	// Solutions become visible to students once the delay window has
	// passed; instructors may always request them.
	solutionsOpen := now.After(effectiveTopic.DeadDate.Add(s.showSolutionsDelay))
	showSolutions := req.ShowCorrectAnswers && (role.PermissionLevel() >= models.RoleProfessor.PermissionLevel() || solutionsOpen)

	formData, readonly, err := s.renderFormData(ctx, grade, req.ReadonlyWorkbookID)
	if err != nil {
		return nil, err
	}

	resp, err := s.renderer.GetProblem(ctx, renderer.ProblemRequest{
		SourcePath:         question.WebworkQuestionPath,
		Seed:               seed,
		OutputFormat:       renderer.FormatFor(role, readonly, canSubmit),
		PermissionLevel:    role.PermissionLevel(),
		ShowCorrectAnswers: showSolutions,
		NumIncorrect:       numAttemptsOf(grade),
		FormData:           formData,
	})
	if err != nil {
		if errors.Is(err, renderer.ErrProblemNotFound) {
			return nil, NewNotFoundError("problem source", question.WebworkQuestionPath)
		}
		return nil, fmt.Errorf("failed to render question %d: %w", req.QuestionID, err)
	}

	return &RenderedQuestion{
		Question:     question,
		Grade:        grade,
		RenderedHTML: resp.RenderedHTML,
		Seed:         seed,
	}, nil
}

// renderFormData picks the form snapshot to resume from: a historical
// workbook when reviewing, otherwise the grade's current problem state.
func (s *gradeService) renderFormData(ctx context.Context, grade *models.StudentGrade, workbookID *uint) (map[string][]string, bool, error) {
	if workbookID != nil {
		if grade == nil {
			return nil, true, NewNotFoundError("workbook", *workbookID)
		}
		workbooks, err := s.repo.Workbook().GetByGrade(ctx, grade.ID)
		if err != nil {
			return nil, true, translateRepositoryError(err, "workbook", *workbookID)
		}
		for _, wb := range workbooks {
			if wb.ID == *workbookID {
				form, err := unmarshalForm(wb.Submitted)
				return form, true, err
			}
		}
		return nil, true, NewNotFoundError("workbook", *workbookID)
	}

	if grade != nil && len(grade.CurrentProblemState) > 0 {
		form, err := unmarshalForm(grade.CurrentProblemState)
		return form, false, err
	}
	return nil, false, nil
}

func unmarshalForm(data []byte) (map[string][]string, error) {
	var form map[string][]string
	if err := json.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("failed to decode stored form state: %w", err)
	}
	return form, nil
}

func numAttemptsOf(grade *models.StudentGrade) int {
	if grade == nil {
		return 0
	}
	return grade.NumAttempts
}

func (s *gradeService) GetQuestions(ctx context.Context, filters repositories.QuestionFilters) ([]*models.CourseTopicQuestion, error) {
	questions, err := s.repo.Question().GetByTopic(ctx, filters)
	if err != nil {
		return nil, translateRepositoryError(err, "question", filters.TopicID)
	}
	return questions, nil
}

// ===== SUBMISSION STATE MACHINE =====

// SubmitAnswer runs one attempt through the scoring policy:
//   - no grade row: the student is not enrolled for this question, no-op;
//   - no submit marker: a save or preview action, grade returned unchanged;
//   - otherwise the renderer scores the form and the grade transitions
//     under the effective (override-resolved) dates and attempt cap.
func (s *gradeService) SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	grade, err := s.repo.Grade().GetByUserAndQuestion(ctx, req.UserID, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			s.logger.InfoContext(ctx, "submission without grade row ignored",
				"user_id", req.UserID,
				"question_id", req.QuestionID)
			return &SubmitAnswerResponse{}, nil
		}
		return nil, translateRepositoryError(err, "grade", req.QuestionID)
	}

	if !hasSubmitMarker(req.FormData) {
		return &SubmitAnswerResponse{Grade: grade}, nil
	}

	question, err := s.repo.Question().GetByIDWithTopic(ctx, req.QuestionID)
	if err != nil {
		return nil, translateRepositoryError(err, "question", req.QuestionID)
	}
	if question.Topic == nil {
		return nil, NewNotFoundError("topic", question.TopicID)
	}

	role, err := s.repo.User().GetRole(ctx, req.UserID)
	if err != nil {
		return nil, translateRepositoryError(err, "user", req.UserID)
	}

	resp, err := s.renderer.GetProblem(ctx, renderer.ProblemRequest{
		SourcePath:      question.WebworkQuestionPath,
		Seed:            grade.RandomSeed,
		OutputFormat:    renderer.OutputFormatSingle,
		PermissionLevel: role.PermissionLevel(),
		NumIncorrect:    grade.NumAttempts,
		FormData:        req.FormData,
	})
	if err != nil {
		if errors.Is(err, renderer.ErrProblemNotFound) {
			return nil, NewNotFoundError("problem source", question.WebworkQuestionPath)
		}
		return nil, fmt.Errorf("failed to score submission: %w", err)
	}
	if !resp.Scored() {
		return nil, fmt.Errorf("renderer returned no score for question %d", req.QuestionID)
	}
	score := clampScore(resp.ProblemResult.Score)

	result := &SubmitAnswerResponse{
		RenderedHTML: resp.RenderedHTML,
		Score:        score,
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		// Re-read inside the transaction so concurrent submissions see a
		// consistent row.
		txGrade, err := txRepo.Grade().GetByUserAndQuestion(ctx, req.UserID, req.QuestionID)
		if err != nil {
			return translateRepositoryError(err, "grade", req.QuestionID)
		}

		effectiveTopic, err := resolveEffectiveTopic(ctx, txRepo, s.logger, req.UserID, question.Topic)
		if err != nil {
			return err
		}
		effectiveQuestion, err := resolveEffectiveQuestion(ctx, txRepo, s.logger, req.UserID, question)
		if err != nil {
			return err
		}

		workbook, err := s.applyScore(ctx, txRepo, txGrade, effectiveTopic, effectiveQuestion, score, req.FormData, time.Now())
		if err != nil {
			return err
		}
		result.Grade = txGrade
		result.Workbook = workbook
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Workbook != nil {
		cache.InvalidateGradeCache(ctx, s.cache, req.UserID, req.QuestionID)
		s.publishGradeSubmitted(ctx, result.Grade, question, score, true)
	}
	return result, nil
}

// applyScore is the grade-transition core. Returns the workbook row when the
// submission consumed an attempt, nil otherwise.
func (s *gradeService) applyScore(
	ctx context.Context,
	repo repositories.Repository,
	grade *models.StudentGrade,
	topic *EffectiveTopic,
	question *EffectiveQuestion,
	score float64,
	form map[string][]string,
	now time.Time,
) (*models.StudentWorkbook, error) {
	windowClose := topic.DeadDate.Add(s.showSolutionsDelay)
	if !now.Before(windowClose) || grade.Mastered() {
		// Solutions are out, or nothing left to improve.
		return nil, nil
	}

	if score > grade.OverallBestScore {
		grade.OverallBestScore = score
	}
	if grade.NumAttempts == 0 {
		grade.FirstAttempts = score
	}
	grade.LatestAttempts = score

	scored := false
	if !grade.Locked && question.hasAttemptsRemaining(grade.NumAttempts) {
		switch {
		case now.Before(topic.EndDate):
			grade.NumAttempts++
			grade.BestScore = grade.OverallBestScore
			grade.LegalScore = grade.OverallBestScore
			grade.PartialCreditBestScore = grade.OverallBestScore
			if grade.OverallBestScore > grade.EffectiveScore {
				grade.EffectiveScore = grade.OverallBestScore
			}
			scored = true
		case now.Before(topic.DeadDate):
			grade.NumAttempts++
			partial := partialCredit(score, grade.LegalScore)
			if partial > grade.PartialCreditBestScore {
				grade.PartialCreditBestScore = partial
			}
			grade.BestScore = grade.PartialCreditBestScore
			if partial > grade.EffectiveScore {
				grade.EffectiveScore = partial
			}
			scored = true
		}
		// Past the dead date only the practice fields above move.
	}

	if !scored {
		if err := repo.Grade().Update(ctx, grade); err != nil {
			return nil, translateRepositoryError(err, "grade", grade.ID)
		}
		return nil, nil
	}

	snapshot, err := snapshotForm(form)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot submission: %w", err)
	}
	grade.CurrentProblemState = snapshot

	if err := repo.Grade().Update(ctx, grade); err != nil {
		return nil, translateRepositoryError(err, "grade", grade.ID)
	}

	workbook := &models.StudentWorkbook{
		GradeID:    grade.ID,
		UserID:     grade.UserID,
		QuestionID: grade.QuestionID,
		RandomSeed: grade.RandomSeed,
		Submitted:  snapshot,
		Result:     score,
		Time:       now,
	}
	if err := repo.Workbook().Create(ctx, workbook); err != nil {
		return nil, translateRepositoryError(err, "workbook", grade.ID)
	}
	return workbook, nil
}

func (s *gradeService) publishGradeSubmitted(ctx context.Context, grade *models.StudentGrade, question *models.CourseTopicQuestion, score float64, scored bool) {
	event := events.NewEvent(events.EventTypeGradeSubmitted, events.GradeSubmittedEvent{
		UserID:         grade.UserID,
		QuestionID:     grade.QuestionID,
		TopicID:        question.TopicID,
		Score:          score,
		EffectiveScore: grade.EffectiveScore,
		NumAttempts:    grade.NumAttempts,
		ScoreUpdated:   scored,
	})
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish grade.submitted event",
			"error", err,
			"user_id", grade.UserID,
			"question_id", grade.QuestionID)
	}
}

// ===== GRADE ACCESS =====

func (s *gradeService) GetGrade(ctx context.Context, userID string, questionID uint) (*models.StudentGrade, error) {
	grade, err := s.repo.Grade().GetByUserAndQuestion(ctx, userID, questionID)
	if err != nil {
		return nil, translateRepositoryError(err, "grade", questionID)
	}
	return grade, nil
}

func (s *gradeService) GetWorkbooks(ctx context.Context, gradeID uint) ([]*models.StudentWorkbook, error) {
	if _, err := s.repo.Grade().GetByID(ctx, gradeID); err != nil {
		return nil, translateRepositoryError(err, "grade", gradeID)
	}
	workbooks, err := s.repo.Workbook().GetByGrade(ctx, gradeID)
	if err != nil {
		return nil, translateRepositoryError(err, "workbook", gradeID)
	}
	return workbooks, nil
}

func (s *gradeService) SetGradeLocked(ctx context.Context, gradeID uint, locked bool, requestorID string) (*models.StudentGrade, error) {
	role, err := s.repo.User().GetRole(ctx, requestorID)
	if err != nil {
		return nil, translateRepositoryError(err, "user", requestorID)
	}
	if role.PermissionLevel() < models.RoleProfessor.PermissionLevel() {
		return nil, NewPermissionError(requestorID, "grade", "lock", "requires professor role")
	}

	grade, err := s.repo.Grade().GetByID(ctx, gradeID)
	if err != nil {
		return nil, translateRepositoryError(err, "grade", gradeID)
	}

	grade.Locked = locked
	if err := s.repo.Grade().Update(ctx, grade); err != nil {
		return nil, translateRepositoryError(err, "grade", gradeID)
	}

	s.logger.InfoContext(ctx, "grade lock changed",
		"grade_id", gradeID,
		"locked", locked,
		"requestor_id", requestorID)
	return grade, nil
}

// ===== RECONCILIATION =====

func (s *gradeService) CreateGradesForUserEnrollment(ctx context.Context, courseID uint, userID string) (int, error) {
	var created int
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		var err error
		created, err = createMissingGradesForUser(ctx, txRepo, courseID, userID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "grades backfilled for enrollment",
		"course_id", courseID,
		"user_id", userID,
		"created", created)
	return created, nil
}

func (s *gradeService) CreateGradesForQuestion(ctx context.Context, questionID uint) (int, error) {
	var created int
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		var err error
		created, err = createMissingGradesForQuestion(ctx, txRepo, questionID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "grades backfilled for question",
		"question_id", questionID,
		"created", created)
	return created, nil
}

func (s *gradeService) FindMissingGrades(ctx context.Context) ([]*repositories.MissingGrade, error) {
	missing, err := s.repo.Grade().FindMissingGrades(ctx)
	if err != nil {
		return nil, translateRepositoryError(err, "grade", "sweep")
	}
	return missing, nil
}

// SyncMissingGrades backfills every missing (user, question) pair. Failures
// are isolated per item: one bad row is logged and the sweep continues.
func (s *gradeService) SyncMissingGrades(ctx context.Context) (int, error) {
	missing, err := s.FindMissingGrades(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "missing grades found", "count", len(missing))

	created := 0
	for _, pair := range missing {
		grade := &models.StudentGrade{
			UserID:     pair.UserID,
			QuestionID: pair.QuestionID,
			RandomSeed: newRandomSeed(),
		}
		if err := s.repo.Grade().Create(ctx, grade); err != nil {
			s.logger.ErrorContext(ctx, "failed to backfill grade",
				"error", err,
				"user_id", pair.UserID,
				"question_id", pair.QuestionID)
			continue
		}
		created++
	}

	s.logger.InfoContext(ctx, "missing grades backfilled", "created", created)
	return created, nil
}
