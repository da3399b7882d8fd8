// Package content loads and indexes quiz content: topics, questions and
// user-facing message templates. The bank is read at startup (a missing or
// malformed source is fatal) and can be re-parsed in place by an admin.
package content

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNoMoreQuestions signals that the requested index is past the end of a
// topic's question sequence.
var ErrNoMoreQuestions = errors.New("content: no more questions")

// ErrUnknownTopic is returned for a topic code absent from the bank.
var ErrUnknownTopic = errors.New("content: unknown topic")

const showCorrectnessTag = "show-correctness"

// Topic is read-only metadata derived from the source on every load.
// Sessions copy what they need at quiz start, so a mid-run reload never
// changes an admitted user's run.
type Topic struct {
	Code            string
	Name            string
	QuestionCount   int
	ShowCorrectness bool
}

// Answer is a single choice; Correct marks the canonical answer, which is
// always declared first in the source.
type Answer struct {
	Text    string
	Correct bool
}

// Question belongs to exactly one topic; Answers keep declaration order.
type Question struct {
	Topic   string
	Text    string
	Answers []Answer
}

type rawQuestion struct {
	Topic   string   `yaml:"t"`
	Text    string   `yaml:"q"`
	Answers []string `yaml:"a"`
}

type rawTopic struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

type rawSource struct {
	Questions     []rawQuestion         `yaml:"questions"`
	EnabledTopics []map[string]rawTopic `yaml:"enabled_topics"`
}

// Bank indexes questions by topic. Safe for concurrent reads; Reload swaps
// the whole index under a write lock.
type Bank struct {
	path string

	mu        sync.RWMutex
	topics    map[string]Topic
	questions map[string][]Question
}

// LoadBank parses the questions file and builds the topic index.
func LoadBank(path string) (*Bank, error) {
	b := &Bank{path: path}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload re-parses the source file in place. In-flight sessions are
// unaffected: they hold copies of topic metadata, not live references.
func (b *Bank) Reload() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("content: read questions file: %w", err)
	}

	var src rawSource
	if err := yaml.Unmarshal(data, &src); err != nil {
		return fmt.Errorf("content: parse questions file: %w", err)
	}
	if len(src.Questions) == 0 {
		return fmt.Errorf("content: %s declares no questions", b.path)
	}

	questions := make(map[string][]Question)
	for i, rq := range src.Questions {
		if rq.Topic == "" || rq.Text == "" {
			return fmt.Errorf("content: question %d is missing topic or text", i)
		}
		if len(rq.Answers) < 2 {
			return fmt.Errorf("content: question %d needs at least two answers", i)
		}
		q := Question{Topic: rq.Topic, Text: rq.Text}
		for j, text := range rq.Answers {
			q.Answers = append(q.Answers, Answer{Text: text, Correct: j == 0})
		}
		questions[rq.Topic] = append(questions[rq.Topic], q)
	}

	topics := make(map[string]Topic)
	for _, item := range src.EnabledTopics {
		for code, rt := range item {
			count := len(questions[code])
			if count == 0 {
				// Topics without a single question are not offered.
				continue
			}
			topics[code] = Topic{
				Code:            code,
				Name:            rt.Name,
				QuestionCount:   count,
				ShowCorrectness: hasTag(rt.Tags, showCorrectnessTag),
			}
		}
	}

	b.mu.Lock()
	b.topics = topics
	b.questions = questions
	b.mu.Unlock()
	return nil
}

// Topics returns the enabled topics that have at least one question.
func (b *Bank) Topics() map[string]Topic {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Topic, len(b.topics))
	for code, t := range b.topics {
		out[code] = t
	}
	return out
}

// TopicCodes returns enabled topic codes in a stable sorted order, for
// deterministic keyboard layout.
func (b *Bank) TopicCodes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	codes := make([]string, 0, len(b.topics))
	for code := range b.topics {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Topic looks up a single enabled topic by code.
func (b *Bank) Topic(code string) (Topic, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.topics[code]
	return t, ok
}

// QuestionAt returns the question at the zero-based position within the
// topic's sequence (source declaration order). ErrNoMoreQuestions marks the
// end of the sequence.
func (b *Bank) QuestionAt(code string, index int) (Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seq, ok := b.questions[code]
	if !ok {
		return Question{}, ErrUnknownTopic
	}
	if index < 0 || index >= len(seq) {
		return Question{}, ErrNoMoreQuestions
	}
	return seq[index], nil
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
