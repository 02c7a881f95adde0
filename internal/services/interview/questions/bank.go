// Package questions serves interview questions from a YAML bank.
package questions

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
)

// ErrExhausted is returned when no unasked question matches a query.
var ErrExhausted = errors.New("question bank exhausted")

//go:embed data/*.yaml
var embeddedFS embed.FS

// Query selects the next question.
type Query struct {
	Category   session.Category
	Focus      string
	Difficulty difficulty.Level
	Exclude    []string
}

type bankFile struct {
	Version   int         `yaml:"version"`
	Questions []bankEntry `yaml:"questions"`
}

type bankEntry struct {
	ID             string             `yaml:"id"`
	Category       string             `yaml:"category"`
	Difficulty     string             `yaml:"difficulty"`
	Type           string             `yaml:"type"`
	Text           string             `yaml:"text"`
	Tags           []string           `yaml:"tags"`
	TimeAllowance  int                `yaml:"time_allowance_seconds"`
	ExpectedTopics []string           `yaml:"expected_topics"`
	Weights        map[string]float64 `yaml:"weights"`
}

type entry struct {
	question session.Question
	category session.Category
	tags     []string
}

// Bank is an immutable, validated question set.
type Bank struct {
	entries []entry
}

// LoadEmbedded loads the bank compiled into the binary.
func LoadEmbedded() (*Bank, error) {
	return LoadFromFS(embeddedFS, "data")
}

// LoadFile loads a single YAML bank from disk.
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank %s: %w", path, err)
	}
	return Parse(data)
}

// LoadFromFS loads every YAML file under root.
func LoadFromFS(fsys fs.FS, root string) (*Bank, error) {
	paths, err := fs.Glob(fsys, root+"/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob question banks: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no question banks under %s", root)
	}
	sort.Strings(paths)

	bank := &Bank{}
	seen := map[string]string{}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read question bank %s: %w", path, err)
		}
		part, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, e := range part.entries {
			if prev, ok := seen[e.question.ID]; ok {
				return nil, fmt.Errorf("%s: question %q already defined in %s", path, e.question.ID, prev)
			}
			seen[e.question.ID] = path
		}
		bank.entries = append(bank.entries, part.entries...)
	}
	return bank, nil
}

// Parse decodes and validates one YAML bank document.
func Parse(data []byte) (*Bank, error) {
	var file bankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if len(file.Questions) == 0 {
		return nil, errors.New("question bank has no questions")
	}
	bank := &Bank{entries: make([]entry, 0, len(file.Questions))}
	ids := make(map[string]struct{}, len(file.Questions))
	for i, q := range file.Questions {
		e, err := q.toEntry()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		if _, dup := ids[e.question.ID]; dup {
			return nil, fmt.Errorf("question %d: duplicate id %q", i, e.question.ID)
		}
		ids[e.question.ID] = struct{}{}
		bank.entries = append(bank.entries, e)
	}
	return bank, nil
}

func (q bankEntry) toEntry() (entry, error) {
	id := strings.TrimSpace(q.ID)
	if id == "" {
		return entry{}, errors.New("id is required")
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return entry{}, fmt.Errorf("%s: text is required", id)
	}
	category := session.Category(strings.TrimSpace(q.Category))
	if !category.Valid() {
		return entry{}, fmt.Errorf("%s: unknown category %q", id, q.Category)
	}
	level, err := difficulty.ParseLevel(q.Difficulty)
	if err != nil {
		return entry{}, fmt.Errorf("%s: %w", id, err)
	}
	if q.TimeAllowance < 0 {
		return entry{}, fmt.Errorf("%s: time allowance must not be negative", id)
	}
	var weights map[scoring.Dimension]float64
	if len(q.Weights) > 0 {
		weights = make(map[scoring.Dimension]float64, len(q.Weights))
		for name, w := range q.Weights {
			d := scoring.Dimension(name)
			if !isDimension(d) {
				return entry{}, fmt.Errorf("%s: unknown weight dimension %q", id, name)
			}
			weights[d] = w
		}
	}
	tags := make([]string, 0, len(q.Tags))
	for _, t := range q.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	kind := strings.TrimSpace(q.Type)
	if kind == "" {
		kind = "open"
	}
	return entry{
		question: session.Question{
			ID:                   id,
			Text:                 text,
			Type:                 kind,
			Difficulty:           level,
			TimeAllowanceSeconds: q.TimeAllowance,
			ExpectedTopics:       q.ExpectedTopics,
			Weights:              weights,
		},
		category: category,
		tags:     tags,
	}, nil
}

func isDimension(d scoring.Dimension) bool {
	for _, known := range scoring.Dimensions {
		if d == known {
			return true
		}
	}
	return false
}

// Len returns the number of questions in the bank.
func (b *Bank) Len() int { return len(b.entries) }

// Next returns an unasked question for the category. It prefers the
// requested difficulty and falls back to the nearest rung, easier first.
// Within a rung, questions tagged with the focus come first.
func (b *Bank) Next(ctx context.Context, q Query) (session.Question, error) {
	if err := ctx.Err(); err != nil {
		return session.Question{}, err
	}
	excluded := make(map[string]struct{}, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = struct{}{}
	}
	focus := strings.ToLower(strings.TrimSpace(q.Focus))
	for _, level := range fallbackOrder(q.Difficulty) {
		var fallback *entry
		for i := range b.entries {
			e := &b.entries[i]
			if e.category != q.Category || e.question.Difficulty != level {
				continue
			}
			if _, skip := excluded[e.question.ID]; skip {
				continue
			}
			if focus == "" || hasTag(e.tags, focus) {
				return e.question, nil
			}
			if fallback == nil {
				fallback = e
			}
		}
		if fallback != nil {
			return fallback.question, nil
		}
	}
	return session.Question{}, fmt.Errorf("%w: category %s", ErrExhausted, q.Category)
}

// fallbackOrder lists ladder rungs by distance from level.
func fallbackOrder(level difficulty.Level) []difficulty.Level {
	rank := level.Rank()
	if rank < 0 {
		rank = difficulty.Medium.Rank()
	}
	order := make([]difficulty.Level, 0, len(difficulty.Ladder))
	for dist := 0; dist < len(difficulty.Ladder); dist++ {
		if lo := rank - dist; lo >= 0 {
			order = append(order, difficulty.Ladder[lo])
		}
		if hi := rank + dist; dist > 0 && hi < len(difficulty.Ladder) {
			order = append(order, difficulty.Ladder[hi])
		}
	}
	return order
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
