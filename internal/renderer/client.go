package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/openedu/course-service/internal/models"
)

// ErrProblemNotFound is returned when the renderer has no problem at the
// requested source path.
var ErrProblemNotFound = errors.New("problem source not found")

// OutputFormat selects how the renderer lays out a problem.
type OutputFormat string

const (
	// OutputFormatSingle is the interactive student view.
	OutputFormatSingle OutputFormat = "single"
	// OutputFormatSimple is the instructor preview.
	OutputFormatSimple OutputFormat = "simple"
	// OutputFormatStatic is a non-interactive snapshot, used for workbook
	// review.
	OutputFormatStatic OutputFormat = "static"
	// OutputFormatNoSubmit renders the form without a submit control, used
	// once the scoring window has closed.
	OutputFormatNoSubmit OutputFormat = "nosubmit"
)

// FormatFor picks the output format for a viewing context.
func FormatFor(role models.UserRole, readonly bool, canSubmit bool) OutputFormat {
	switch {
	case readonly:
		return OutputFormatStatic
	case !canSubmit:
		return OutputFormatNoSubmit
	case role == models.RoleProfessor || role == models.RoleAdmin:
		return OutputFormatSimple
	default:
		return OutputFormatSingle
	}
}

// ProblemRequest describes one render (or scoring) call.
type ProblemRequest struct {
	SourcePath         string
	Seed               int
	OutputFormat       OutputFormat
	PermissionLevel    int
	ShowCorrectAnswers bool
	// NumIncorrect lets the renderer gate hints on attempts used.
	NumIncorrect int
	FormURL      string
	// FormData carries the submitted problem form. Nil renders a fresh
	// problem; a payload containing the submit marker is scored.
	FormData map[string][]string
}

// ProblemResult is the renderer's scoring verdict for a submitted form.
type ProblemResult struct {
	Score  float64 `json:"score"`
	Errors *string `json:"errors,omitempty"`
}

// ProblemResponse is the renderer's reply.
type ProblemResponse struct {
	RenderedHTML  string          `json:"renderedHTML"`
	ProblemResult *ProblemResult  `json:"problem_result,omitempty"`
	FormData      json.RawMessage `json:"form_data,omitempty"`
}

// Scored reports whether the renderer graded a submission.
func (r *ProblemResponse) Scored() bool {
	return r.ProblemResult != nil
}

// Client renders problems and scores submissions.
type Client interface {
	GetProblem(ctx context.Context, req ProblemRequest) (*ProblemResponse, error)
	HealthCheck(ctx context.Context) error
}

type restyClient struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient builds a renderer client against baseURL. Calls are a single
// attempt: a scored submission must never reach the renderer twice, so a
// failure propagates to the caller instead of being retried.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return &restyClient{
		http:   client,
		logger: logger,
	}
}

func (c *restyClient) GetProblem(ctx context.Context, req ProblemRequest) (*ProblemResponse, error) {
	values := url.Values{}
	for key, vals := range req.FormData {
		for _, val := range vals {
			values.Add(key, val)
		}
	}
	values.Set("sourceFilePath", req.SourcePath)
	values.Set("problemSeed", strconv.Itoa(req.Seed))
	values.Set("outputformat", string(req.OutputFormat))
	values.Set("format", "json")
	values.Set("permissionLevel", strconv.Itoa(req.PermissionLevel))
	values.Set("showCorrectAnswers", strconv.FormatBool(req.ShowCorrectAnswers))
	values.Set("numIncorrect", strconv.Itoa(req.NumIncorrect))
	if req.FormURL != "" {
		values.Set("formURL", req.FormURL)
	}

	var result ProblemResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormDataFromValues(values).
		SetResult(&result).
		Post("/rendered")
	if err != nil {
		return nil, fmt.Errorf("renderer request failed: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &result, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("source path %q: %w", req.SourcePath, ErrProblemNotFound)
	default:
		c.logger.ErrorContext(ctx, "renderer returned unexpected status",
			"status", resp.StatusCode(),
			"source_path", req.SourcePath)
		return nil, fmt.Errorf("renderer returned status %d", resp.StatusCode())
	}
}

func (c *restyClient) HealthCheck(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("renderer health check failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("renderer health check returned status %d", resp.StatusCode())
	}
	return nil
}
