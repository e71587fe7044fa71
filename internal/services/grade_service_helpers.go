package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"

	"gorm.io/datatypes"

	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/repositories"
)

// partialCreditScalar is the fixed policy constant for late submissions:
// only half the improvement over the on-time score counts.
const partialCreditScalar = 0.5

// submitMarkerField marks a form payload as a scored attempt rather than a
// save or preview action.
const submitMarkerField = "submitAnswers"

// fallbackSeed renders a question for users without a grade row
// (instructors previewing, for example).
const fallbackSeed = 666

// renderedMarkupField is stripped from workbook snapshots; the markup can
// always be regenerated from the seed and form state.
const renderedMarkupField = "renderedHTML"

// newRandomSeed draws a grade's fixed problem-variant seed, uniform in
// [0, 999999).
func newRandomSeed() int {
	return rand.Intn(999999)
}

// partialCredit computes the late-window score: the on-time legal score plus
// half of any improvement over it.
func partialCredit(score, legalScore float64) float64 {
	return (score-legalScore)*partialCreditScalar + legalScore
}

// clampScore forces a renderer score into [0,1].
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// hasSubmitMarker reports whether the form payload is a scored attempt.
func hasSubmitMarker(form map[string][]string) bool {
	_, ok := form[submitMarkerField]
	return ok
}

// snapshotForm serializes the submitted form for the workbook, minus the
// rendered markup.
func snapshotForm(form map[string][]string) (datatypes.JSON, error) {
	cleaned := make(map[string][]string, len(form))
	for key, values := range form {
		if key == renderedMarkupField {
			continue
		}
		cleaned[key] = values
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// resolveEffectiveTopic overlays the student's active topic override, if
// any, on the base topic. More than one active override is undefined
// behavior: it is logged and the first row wins.
func resolveEffectiveTopic(ctx context.Context, repo repositories.Repository, logger *slog.Logger, userID string, topic *models.CourseTopicContent) (*EffectiveTopic, error) {
	effective := &EffectiveTopic{
		CourseTopicContent: topic,
		StartDate:          topic.StartDate,
		EndDate:            topic.EndDate,
		DeadDate:           topic.DeadDate,
	}

	overrides, err := repo.Override().ActiveTopicOverrides(ctx, userID, topic.ID)
	if err != nil {
		return nil, translateRepositoryError(err, "topic override", topic.ID)
	}
	if len(overrides) == 0 {
		return effective, nil
	}
	if len(overrides) > 1 {
		logger.WarnContext(ctx, "multiple active topic overrides, using first",
			"user_id", userID,
			"topic_id", topic.ID,
			"count", len(overrides))
	}

	override := overrides[0]
	if override.StartDate != nil {
		effective.StartDate = *override.StartDate
	}
	if override.EndDate != nil {
		effective.EndDate = *override.EndDate
	}
	if override.DeadDate != nil {
		effective.DeadDate = *override.DeadDate
	}
	return effective, nil
}

// resolveEffectiveQuestion overlays the student's active attempt-limit
// override, if any, on the base question.
func resolveEffectiveQuestion(ctx context.Context, repo repositories.Repository, logger *slog.Logger, userID string, question *models.CourseTopicQuestion) (*EffectiveQuestion, error) {
	effective := &EffectiveQuestion{
		CourseTopicQuestion: question,
		MaxAttempts:         question.MaxAttempts,
	}

	overrides, err := repo.Override().ActiveQuestionOverrides(ctx, userID, question.ID)
	if err != nil {
		return nil, translateRepositoryError(err, "question override", question.ID)
	}
	if len(overrides) == 0 {
		return effective, nil
	}
	if len(overrides) > 1 {
		logger.WarnContext(ctx, "multiple active question overrides, using first",
			"user_id", userID,
			"question_id", question.ID,
			"count", len(overrides))
	}

	if overrides[0].MaxAttempts != nil {
		effective.MaxAttempts = *overrides[0].MaxAttempts
	}
	return effective, nil
}

// hasAttemptsRemaining applies the unlimited sentinel to an effective cap.
func (q *EffectiveQuestion) hasAttemptsRemaining(numAttempts int) bool {
	return q.MaxAttempts == models.UnlimitedAttempts || numAttempts < q.MaxAttempts
}

// createMissingGradesForUser backfills one grade per active question in the
// course that the user has no grade row for. Runs against whatever handle
// repo is bound to, so callers can place it inside their own transaction.
func createMissingGradesForUser(ctx context.Context, repo repositories.Repository, courseID uint, userID string) (int, error) {
	questionIDs, err := repo.Grade().QuestionsMissingGradeForUser(ctx, courseID, userID)
	if err != nil {
		return 0, translateRepositoryError(err, "grade", courseID)
	}

	created := 0
	for _, questionID := range questionIDs {
		grade := &models.StudentGrade{
			UserID:     userID,
			QuestionID: questionID,
			RandomSeed: newRandomSeed(),
		}
		if err := repo.Grade().Create(ctx, grade); err != nil {
			return created, translateRepositoryError(err, "grade", questionID)
		}
		created++
	}
	return created, nil
}

// createMissingGradesForQuestion backfills one grade per actively enrolled
// user lacking a grade row on the question.
func createMissingGradesForQuestion(ctx context.Context, repo repositories.Repository, questionID uint) (int, error) {
	userIDs, err := repo.Grade().UsersMissingGradeForQuestion(ctx, questionID)
	if err != nil {
		return 0, translateRepositoryError(err, "grade", questionID)
	}

	created := 0
	for _, userID := range userIDs {
		grade := &models.StudentGrade{
			UserID:     userID,
			QuestionID: questionID,
			RandomSeed: newRandomSeed(),
		}
		if err := repo.Grade().Create(ctx, grade); err != nil {
			return created, translateRepositoryError(err, "grade", questionID)
		}
		created++
	}
	return created, nil
}
