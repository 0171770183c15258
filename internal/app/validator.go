package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"content-indexer/internal/model"
	"content-indexer/internal/repository"
)

const (
	CheckRowCount        = "row_count"
	CheckKindTagging     = "kind_tagging"
	CheckSectionCoverage = "section_coverage"
	CheckSectionShape    = "per_section_shape"
	CheckFollowUps       = "follow_up_integrity"

	maxListedProblems = 10
)

// ChunkReader is the read-only view of the store the validator needs.
type ChunkReader interface {
	Count(ctx context.Context) (int64, error)
	CountOtherKinds(ctx context.Context, kind string) (int64, []string, error)
	DistinctTitles(ctx context.Context) ([]string, error)
	ShapeByTitle(ctx context.Context) ([]repository.TitleShape, error)
	CountQuestionRows(ctx context.Context) (int64, error)
	ListFollowUps(ctx context.Context, kind string) ([]repository.FollowUpPayload, error)
}

type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Blocking bool   `json:"blocking"`
	Detail   string `json:"detail"`
}

type SectionCount struct {
	Title     string `json:"title"`
	Rows      int64  `json:"rows"`
	Questions int64  `json:"questions"`
}

type ValidationSummary struct {
	TotalRows         int64          `json:"total_rows"`
	QuestionRows      int64          `json:"question_rows"`
	ContentOnlyRows   int64          `json:"content_only_rows"`
	RowsWithFollowUps int64          `json:"rows_with_follow_ups"`
	Sections          []SectionCount `json:"sections"`
}

// ValidationReport lists every check in order. Passed is the AND of the
// blocking checks only.
type ValidationReport struct {
	Checks  []CheckResult     `json:"checks"`
	Passed  bool              `json:"passed"`
	Summary ValidationSummary `json:"summary"`
}

// Failed returns the blocking checks that did not pass.
func (r *ValidationReport) Failed() []CheckResult {
	var failed []CheckResult
	for _, c := range r.Checks {
		if c.Blocking && !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

func (r *ValidationReport) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Validator re-reads the store after a load and compares it with the parsed sections.
type Validator struct {
	store ChunkReader
	kind  string
	log   *zap.Logger
}

func NewValidator(store ChunkReader, kind string, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{
		store: store,
		kind:  kind,
		log:   log,
	}
}

// Validate runs all checks; none short-circuits and a store read error only
// fails the check that hit it.
func (v *Validator) Validate(ctx context.Context, sections []model.Section, inserted int64) *ValidationReport {
	report := &ValidationReport{}

	report.Checks = append(report.Checks,
		v.checkRowCount(ctx, inserted, &report.Summary),
		v.checkKindTagging(ctx),
		v.checkSectionCoverage(ctx, sections),
		v.checkSectionShape(ctx, sections, &report.Summary),
		v.checkFollowUps(ctx, &report.Summary),
	)

	if questions, err := v.store.CountQuestionRows(ctx); err != nil {
		v.log.Warn("count question rows failed", zap.Error(err))
	} else {
		report.Summary.QuestionRows = questions
		report.Summary.ContentOnlyRows = report.Summary.TotalRows - questions
	}

	report.Passed = true
	for _, c := range report.Checks {
		fields := []zap.Field{
			zap.String("check", c.Name),
			zap.Bool("passed", c.Passed),
			zap.Bool("blocking", c.Blocking),
			zap.String("detail", c.Detail),
		}
		if c.Passed {
			v.log.Info("validation check", fields...)
		} else {
			v.log.Warn("validation check", fields...)
		}
		if c.Blocking && !c.Passed {
			report.Passed = false
		}
	}
	return report
}

func (v *Validator) checkRowCount(ctx context.Context, inserted int64, summary *ValidationSummary) CheckResult {
	res := CheckResult{Name: CheckRowCount, Blocking: true}
	total, err := v.store.Count(ctx)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	summary.TotalRows = total
	if total != inserted {
		res.Detail = fmt.Sprintf("store has %d rows but %d were inserted", total, inserted)
		return res
	}
	res.Passed = true
	res.Detail = fmt.Sprintf("row count matches (%d rows)", total)
	return res
}

func (v *Validator) checkKindTagging(ctx context.Context) CheckResult {
	res := CheckResult{Name: CheckKindTagging, Blocking: true}
	foreign, kinds, err := v.store.CountOtherKinds(ctx, v.kind)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	if foreign > 0 {
		res.Detail = fmt.Sprintf("%d rows have unexpected kind, found %s", foreign, strings.Join(kinds, ", "))
		return res
	}
	res.Passed = true
	res.Detail = fmt.Sprintf("all rows have kind %q", v.kind)
	return res
}

func (v *Validator) checkSectionCoverage(ctx context.Context, sections []model.Section) CheckResult {
	res := CheckResult{Name: CheckSectionCoverage, Blocking: true}
	titles, err := v.store.DistinctTitles(ctx)
	if err != nil {
		res.Detail = err.Error()
		return res
	}

	expected := make(map[string]struct{}, len(sections))
	for _, s := range sections {
		expected[s.ID] = struct{}{}
	}
	found := make(map[string]struct{}, len(titles))
	var extra []string
	for _, title := range titles {
		found[title] = struct{}{}
		if _, ok := expected[title]; !ok {
			extra = append(extra, title)
		}
	}
	var missing []string
	for id := range expected {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 && len(extra) == 0 {
		res.Passed = true
		res.Detail = fmt.Sprintf("all %d sections present, none unexpected", len(expected))
		return res
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("%d missing: %s", len(missing), listSorted(missing)))
	}
	if len(extra) > 0 {
		parts = append(parts, fmt.Sprintf("%d unexpected: %s", len(extra), listSorted(extra)))
	}
	res.Detail = strings.Join(parts, "; ")
	return res
}

func (v *Validator) checkSectionShape(ctx context.Context, sections []model.Section, summary *ValidationSummary) CheckResult {
	res := CheckResult{Name: CheckSectionShape, Blocking: true}
	shapes, err := v.store.ShapeByTitle(ctx)
	if err != nil {
		res.Detail = err.Error()
		return res
	}

	byTitle := make(map[string]repository.TitleShape, len(shapes))
	summary.Sections = make([]SectionCount, 0, len(shapes))
	for _, s := range shapes {
		byTitle[s.Title] = s
		summary.Sections = append(summary.Sections, SectionCount{
			Title:     s.Title,
			Rows:      s.RowCount,
			Questions: s.QuestionRowCount,
		})
	}

	var mismatches []string
	for _, section := range sections {
		wantQuestions := int64(len(section.Questions))
		wantRows := wantQuestions + 1
		got := byTitle[section.ID]
		if got.RowCount != wantRows || got.QuestionRowCount != wantQuestions {
			mismatches = append(mismatches, fmt.Sprintf("%s: expected %d rows (%d questions), got %d rows (%d questions)",
				section.ID, wantRows, wantQuestions, got.RowCount, got.QuestionRowCount))
		}
	}

	if len(mismatches) > 0 {
		res.Detail = fmt.Sprintf("%d sections have wrong row counts: %s", len(mismatches), listFirst(mismatches))
		return res
	}
	res.Passed = true
	res.Detail = fmt.Sprintf("all %d sections have the expected row counts", len(sections))
	return res
}

func (v *Validator) checkFollowUps(ctx context.Context, summary *ValidationSummary) CheckResult {
	res := CheckResult{Name: CheckFollowUps}
	payloads, err := v.store.ListFollowUps(ctx, v.kind)
	if err != nil {
		res.Detail = err.Error()
		return res
	}

	var malformed []string
	var withFollowUps, suggestions int64
	for _, p := range payloads {
		if p.FollowUps == nil {
			malformed = append(malformed, p.ID+" (null)")
			continue
		}
		var items []model.FollowUp
		if err := sonic.UnmarshalString(*p.FollowUps, &items); err != nil {
			malformed = append(malformed, p.ID)
			continue
		}
		bad := false
		for _, item := range items {
			if strings.TrimSpace(item.Text) == "" {
				bad = true
				break
			}
		}
		if bad {
			malformed = append(malformed, p.ID+" (empty text)")
			continue
		}
		if len(items) > 0 {
			withFollowUps++
			suggestions += int64(len(items))
		}
	}
	summary.RowsWithFollowUps = withFollowUps

	if len(malformed) > 0 {
		res.Detail = fmt.Sprintf("%d of %d rows carry malformed follow-ups: %s", len(malformed), len(payloads), listFirst(malformed))
		return res
	}
	res.Passed = true
	res.Detail = fmt.Sprintf("%d rows carry %d structured follow-ups", withFollowUps, suggestions)
	return res
}

func listSorted(items []string) string {
	sort.Strings(items)
	return listFirst(items)
}

func listFirst(items []string) string {
	if len(items) <= maxListedProblems {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:maxListedProblems], ", ") + fmt.Sprintf(", ... (%d more)", len(items)-maxListedProblems)
}
