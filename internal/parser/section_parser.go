// Package parser turns the authored content document into Sections.
//
// The document is plain text. Each section starts with a "## SECTION.ID"
// heading and may carry a questions list, a follow-ups list and
// <!-- DRILL-DOWNS: ... --> annotations. Malformed sub-blocks degrade to empty
// lists; only I/O failures and, in strict mode, duplicate ids are errors.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"content-indexer/internal/model"
)

const (
	questionsLabel = "**Questions that route here:**"
	followUpsLabel = "**Suggested follow-ups:**"
	trailingRule   = "---"
)

var ErrDuplicateSection = errors.New("duplicate section id")

var (
	headingPattern       = regexp.MustCompile(`^## ([A-Z][A-Z0-9_.]*)\s*$`)
	questionsPattern     = regexp.MustCompile(regexp.QuoteMeta(questionsLabel) + `\s*\n((?:- .+\n?)+)`)
	followUpsPattern     = regexp.MustCompile(regexp.QuoteMeta(followUpsLabel) + `\s*\n((?:- .+\n?)+)`)
	crossRefPattern      = regexp.MustCompile(`<!-- DRILL-DOWNS: ([^>]+) -->`)
	htmlCommentPattern   = regexp.MustCompile(`<!--[^>]*-->\n?`)
	followUpTargetLine   = regexp.MustCompile(`^- "([^"]+)"\s*\[([A-Z][A-Z0-9_.]*)\]`)
	followUpTextOnlyLine = regexp.MustCompile(`^- "([^"]+)"`)
)

// Options controls how duplicate section ids are handled.
type Options struct {
	// StrictIDs turns a repeated section id into ErrDuplicateSection.
	// Otherwise the later section replaces the earlier one.
	StrictIDs bool
}

type Stats struct {
	Sections            int `json:"sections"`
	DroppedEmpty        int `json:"dropped_empty"`
	Questions           int `json:"questions"`
	WithCrossRefs       int `json:"with_cross_refs"`
	FollowUps           int `json:"follow_ups"`
	FollowUpsWithTarget int `json:"follow_ups_with_target"`
	WithFollowUps       int `json:"with_follow_ups"`
}

type Result struct {
	Sections   []model.Section
	Duplicates []string
	Stats      Stats
}

type rawSection struct {
	id   string
	body string
}

// ParseFile reads and parses the document at path.
func ParseFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open content document failed: %w", err)
	}
	defer f.Close()
	return Parse(f, opts)
}

// Parse splits the document into sections in document order.
func Parse(r io.Reader, opts Options) (*Result, error) {
	raws, err := splitSections(r)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	parsed := make([]model.Section, 0, len(raws))
	for _, raw := range raws {
		section, ok := ParseSection(raw.id, raw.body)
		if !ok {
			result.Stats.DroppedEmpty++
			continue
		}
		parsed = append(parsed, section)
	}

	lastIndex := make(map[string]int, len(parsed))
	for i, s := range parsed {
		if _, seen := lastIndex[s.ID]; seen {
			if opts.StrictIDs {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateSection, s.ID)
			}
			result.Duplicates = append(result.Duplicates, s.ID)
		}
		lastIndex[s.ID] = i
	}
	for i, s := range parsed {
		if lastIndex[s.ID] == i {
			result.Sections = append(result.Sections, s)
		}
	}

	result.Stats.collect(result.Sections)
	return result, nil
}

func splitSections(r io.Reader) ([]rawSection, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var (
		sections []rawSection
		current  string
		body     strings.Builder
		open     bool
	)
	flush := func() {
		if open {
			sections = append(sections, rawSection{id: current, body: body.String()})
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = m[1]
			body.Reset()
			open = true
			continue
		}
		if open {
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read content document failed: %w", err)
	}
	flush()
	return sections, nil
}

// ParseSection extracts the structured sub-blocks from one section's raw
// text. It reports false when nothing remains of the body.
func ParseSection(id, raw string) (model.Section, bool) {
	content := raw
	section := model.Section{ID: id}

	if m := questionsPattern.FindStringSubmatch(raw); m != nil {
		section.Questions = parseQuestions(m[1])
		content = strings.ReplaceAll(content, m[0], "")
	}
	if m := followUpsPattern.FindStringSubmatch(raw); m != nil {
		section.FollowUps = parseFollowUps(m[1])
		content = strings.ReplaceAll(content, m[0], "")
	}
	section.CrossRefs = parseCrossRefs(raw)

	content = strings.ReplaceAll(content, questionsLabel, "")
	content = strings.ReplaceAll(content, followUpsLabel, "")
	content = htmlCommentPattern.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)
	if strings.HasSuffix(content, trailingRule) {
		content = strings.TrimSpace(strings.TrimSuffix(content, trailingRule))
	}
	if content == "" {
		return model.Section{}, false
	}
	section.Body = content
	return section, true
}

func parseQuestions(block string) []string {
	var questions []string
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		if q := strings.TrimSpace(line[2:]); q != "" {
			questions = append(questions, q)
		}
	}
	return questions
}

func parseFollowUps(block string) []model.FollowUp {
	var followUps []model.FollowUp
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		if m := followUpTargetLine.FindStringSubmatch(line); m != nil {
			target := m[2]
			followUps = append(followUps, model.FollowUp{Text: m[1], Target: &target})
			continue
		}
		if m := followUpTextOnlyLine.FindStringSubmatch(line); m != nil {
			followUps = append(followUps, model.FollowUp{Text: m[1]})
		}
	}
	return followUps
}

func parseCrossRefs(raw string) []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, m := range crossRefPattern.FindAllStringSubmatch(raw, -1) {
		for _, ref := range strings.Split(m[1], ",") {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	return refs
}

func (s *Stats) collect(sections []model.Section) {
	s.Sections = len(sections)
	for _, sec := range sections {
		s.Questions += len(sec.Questions)
		if len(sec.CrossRefs) > 0 {
			s.WithCrossRefs++
		}
		if len(sec.FollowUps) > 0 {
			s.WithFollowUps++
		}
		s.FollowUps += len(sec.FollowUps)
		for _, f := range sec.FollowUps {
			if f.Target != nil {
				s.FollowUpsWithTarget++
			}
		}
	}
}
