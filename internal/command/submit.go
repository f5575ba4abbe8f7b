// Package command submits user commands and feedback to the backend.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bkonkle/taskdeck/internal/api"
	"github.com/bkonkle/taskdeck/internal/roster"
	"github.com/bkonkle/taskdeck/internal/router"
	"github.com/bkonkle/taskdeck/internal/task"
)

// MaxCommandLength bounds the text of a single command.
const MaxCommandLength = 4000

var (
	// ErrEmptyCommand is returned for empty or whitespace-only input. No
	// request is made.
	ErrEmptyCommand = errors.New("command is empty")

	// ErrEmptyPatch is returned by Annotate when nothing would change.
	ErrEmptyPatch = errors.New("nothing to update: set a status or a result")
)

// Backend is the subset of the REST API used to submit commands.
type Backend interface {
	CreateTask(ctx context.Context, req api.CreateRequest) (task.Task, error)
	UpdateTask(ctx context.Context, id string, req api.UpdateRequest) (task.Task, error)
	SubmitFeedback(ctx context.Context, id string, req api.FeedbackRequest) error
}

// Adopter receives tasks created by this client.
type Adopter interface {
	Adopt(ctx context.Context, t task.Task) (bool, error)
}

// Submitter routes and submits commands.
type Submitter struct {
	backend  Backend
	roster   *roster.Roster
	userID   string
	adopter  Adopter
	logger   *slog.Logger
	validate *validator.Validate
}

// NewSubmitter creates a submitter. adopter may be nil.
func NewSubmitter(backend Backend, r *roster.Roster, userID string, adopter Adopter, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Submitter{
		backend:  backend,
		roster:   r,
		userID:   userID,
		adopter:  adopter,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type submission struct {
	UserID string `validate:"required"`
	Text   string `validate:"required,max=4000"`
}

type rating struct {
	TaskID  string `validate:"required"`
	Rating  int    `validate:"gte=1,lte=5"`
	Comment string `validate:"max=2000"`
}

// Result describes a submitted command.
type Result struct {
	Decision router.Decision
	Task     task.Task
	// Adopted is true if the created task was inserted into the local
	// table before the stream delivered it.
	Adopted bool
}

// Accepted reports whether the backend acknowledged the command without
// returning the created task. The task arrives through the stream.
func (r Result) Accepted() bool {
	return r.Task.ID == ""
}

// Route validates text and returns the routing decision without submitting.
func (s *Submitter) Route(text string) (router.Decision, error) {
	text, err := s.check(text)
	if err != nil {
		return router.Decision{}, err
	}
	return router.Route(text, s.roster), nil
}

// Submit validates, routes and submits a command. The text is sent as typed,
// mentions included.
func (s *Submitter) Submit(ctx context.Context, text string) (Result, error) {
	text, err := s.check(text)
	if err != nil {
		return Result{}, err
	}

	decision := router.Route(text, s.roster)
	created, err := s.backend.CreateTask(ctx, api.CreateRequest{
		UserID:  s.userID,
		Text:    text,
		AgentID: decision.Target.ID,
	})
	if err != nil {
		return Result{Decision: decision}, fmt.Errorf("submit command: %w", err)
	}
	s.logger.Info("command submitted",
		"task_id", created.ID,
		"target", decision.Target.Nickname,
		"direct", decision.Direct,
	)

	res := Result{Decision: decision, Task: created}
	if s.adopter != nil && created.ID != "" {
		adopted, err := s.adopter.Adopt(ctx, created)
		if err != nil {
			// The stream delivers the task anyway.
			s.logger.Debug("could not adopt created task", "task_id", created.ID, "error", err)
		}
		res.Adopted = adopted
	}
	return res, nil
}

// Feedback rates a task from 1 to 5 with an optional comment.
func (s *Submitter) Feedback(ctx context.Context, taskID string, stars int, comment string) error {
	comment = strings.TrimSpace(comment)
	if err := s.validate.Struct(rating{TaskID: taskID, Rating: stars, Comment: comment}); err != nil {
		return describe(err)
	}
	if err := s.backend.SubmitFeedback(ctx, taskID, api.FeedbackRequest{Rating: stars, Feedback: comment}); err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	return nil
}

// Patch is a manual change to a task's status or result.
type Patch struct {
	Status *task.Status
	Result *string
}

// Annotate applies a patch to a task on the backend.
func (s *Submitter) Annotate(ctx context.Context, taskID string, p Patch) (task.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return task.Task{}, errors.New("task id is required")
	}
	if p.Status == nil && p.Result == nil {
		return task.Task{}, ErrEmptyPatch
	}
	if p.Status != nil && !p.Status.IsValid() {
		return task.Task{}, fmt.Errorf("invalid status %q", *p.Status)
	}
	updated, err := s.backend.UpdateTask(ctx, taskID, api.UpdateRequest{Status: p.Status, Result: p.Result})
	if err != nil {
		return task.Task{}, fmt.Errorf("update task: %w", err)
	}
	return updated, nil
}

func (s *Submitter) check(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyCommand
	}
	if err := s.validate.Struct(submission{UserID: s.userID, Text: text}); err != nil {
		return "", describe(err)
	}
	return text, nil
}

// describe turns the first validator failure into a readable error.
func describe(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "max":
		return fmt.Errorf("%s is too long (max %s characters)", field, fe.Param())
	case "gte", "lte":
		return fmt.Errorf("%s must be between 1 and 5 (got %v)", field, fe.Value())
	default:
		return fmt.Errorf("%s failed validation '%s'", field, fe.Tag())
	}
}
