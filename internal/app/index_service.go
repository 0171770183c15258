package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"content-indexer/internal/model"
	"content-indexer/internal/parser"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type ReloadPublisher interface {
	PublishReloaded(ctx context.Context, event model.ReloadedEvent) error
}

type IndexConfig struct {
	SourcePath       string
	Kind             string
	StrictSectionIDs bool
}

type RunOptions struct {
	// SourcePath overrides the configured document for this run.
	SourcePath string
	// DryRun stops after parsing and expansion.
	DryRun bool
}

type RunResult struct {
	RunID         string            `json:"run_id"`
	SourcePath    string            `json:"source_path"`
	DryRun        bool              `json:"dry_run"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	Parse         parser.Stats      `json:"parse"`
	Duplicates    []string          `json:"duplicates,omitempty"`
	ContentTexts  int               `json:"content_texts"`
	QuestionTexts int               `json:"question_texts"`
	Load          LoadResult        `json:"load"`
	Report        *ValidationReport `json:"report,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Passed reports whether the run completed and its verdict passed.
func (r *RunResult) Passed() bool {
	return r != nil && r.Error == "" && (r.DryRun || (r.Report != nil && r.Report.Passed))
}

// IndexService runs the parse, embed, reload and validate pipeline. Only one
// run executes at a time.
type IndexService struct {
	runMu sync.Mutex

	cfg       IndexConfig
	embedder  Embedder
	loader    *Loader
	validator *Validator
	publisher ReloadPublisher
	log       *zap.Logger

	lastMu sync.RWMutex
	last   *RunResult
}

func NewIndexService(
	cfg IndexConfig,
	embedder Embedder,
	loader *Loader,
	validator *Validator,
	publisher ReloadPublisher,
	log *zap.Logger,
) *IndexService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IndexService{
		cfg:       cfg,
		embedder:  embedder,
		loader:    loader,
		validator: validator,
		publisher: publisher,
		log:       log,
	}
}

func (s *IndexService) EnsureSchema(ctx context.Context) error {
	return s.loader.EnsureSchema(ctx)
}

// Run waits for any active run to finish, then runs once.
func (s *IndexService) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run(ctx, opts)
}

// TryRun returns ErrRunInProgress instead of waiting.
func (s *IndexService) TryRun(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()
	return s.run(ctx, opts)
}

// LastRun returns the most recent finished run, if any.
func (s *IndexService) LastRun() (*RunResult, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last, s.last != nil
}

func (s *IndexService) run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	result := &RunResult{
		RunID:      uuid.NewString(),
		SourcePath: s.cfg.SourcePath,
		DryRun:     opts.DryRun,
		StartedAt:  time.Now(),
	}
	if opts.SourcePath != "" {
		result.SourcePath = opts.SourcePath
	}
	log := s.log.With(zap.String("run_id", result.RunID))

	err := s.execute(ctx, result, log)
	result.FinishedAt = time.Now()
	if err != nil {
		result.Error = err.Error()
		log.Error("index run failed", zap.Error(err), zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))
	} else {
		log.Info("index run finished", zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))
	}

	s.lastMu.Lock()
	s.last = result
	s.lastMu.Unlock()
	return result, err
}

func (s *IndexService) execute(ctx context.Context, result *RunResult, log *zap.Logger) error {
	log.Info("parsing content document", zap.String("path", result.SourcePath))
	parsed, err := parser.ParseFile(result.SourcePath, parser.Options{StrictIDs: s.cfg.StrictSectionIDs})
	if err != nil {
		return fmt.Errorf("parse content failed: %w", err)
	}
	sections := parsed.Sections
	result.Parse = parsed.Stats
	result.Duplicates = parsed.Duplicates
	if len(parsed.Duplicates) > 0 {
		log.Warn("duplicate section ids, later sections win", zap.Strings("ids", parsed.Duplicates))
	}
	log.Info("content parsed",
		zap.Int("sections", parsed.Stats.Sections),
		zap.Int("dropped_empty", parsed.Stats.DroppedEmpty),
		zap.Int("questions", parsed.Stats.Questions),
		zap.Int("follow_ups", parsed.Stats.FollowUps),
	)

	exp := Expand(sections)
	result.ContentTexts = len(exp.ContentTexts)
	result.QuestionTexts = len(exp.QuestionTexts)
	if result.DryRun {
		log.Info("dry run, skipping embedding and reload", zap.Int("expected_rows", exp.ExpectedRows()))
		return nil
	}

	log.Info("embedding content", zap.Int("texts", len(exp.ContentTexts)))
	contentVectors, err := s.embedder.Embed(ctx, exp.ContentTexts)
	if err != nil {
		return fmt.Errorf("embed content failed: %w", err)
	}

	log.Info("embedding questions", zap.Int("texts", len(exp.QuestionTexts)))
	questionVectors, err := s.embedder.Embed(ctx, exp.QuestionTexts)
	if err != nil {
		return fmt.Errorf("embed questions failed: %w", err)
	}

	load, err := s.loader.withLogger(log).Load(ctx, sections, contentVectors, questionVectors)
	result.Load = load
	if err != nil {
		return err
	}

	report := s.validator.withLogger(log).Validate(ctx, sections, load.Inserted)
	result.Report = report
	if !report.Passed {
		names := make([]string, 0, len(report.Checks))
		for _, c := range report.Failed() {
			names = append(names, c.Name)
		}
		return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(names, ", "))
	}

	if s.publisher != nil {
		event := model.ReloadedEvent{
			RunID:      result.RunID,
			Kind:       s.cfg.Kind,
			Sections:   len(sections),
			Rows:       report.Summary.TotalRows,
			FinishedAt: time.Now(),
		}
		if err := s.publisher.PublishReloaded(ctx, event); err != nil {
			log.Warn("publish reloaded event failed", zap.Error(err))
		}
	}
	return nil
}

func (l *Loader) withLogger(log *zap.Logger) *Loader {
	c := *l
	c.log = log
	return &c
}

func (v *Validator) withLogger(log *zap.Logger) *Validator {
	c := *v
	c.log = log
	return &c
}
