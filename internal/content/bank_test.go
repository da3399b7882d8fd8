package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const bankYAML = `
enabled_topics:
  - basics:
      name: Basics
      tags: [show-correctness]
  - empty:
      name: No questions yet
  - plain:
      name: Plain

questions:
  - t: basics
    q: First question
    a: [right, wrong one, wrong two]
  - t: basics
    q: Second question
    a: [correct, incorrect]
  - t: plain
    q: Only question
    a: [yes, no]
`

func writeBank(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write bank: %v", err)
	}
	return path
}

func TestLoadBankExcludesEmptyTopics(t *testing.T) {
	b, err := LoadBank(writeBank(t, bankYAML))
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}

	topics := b.Topics()
	if _, ok := topics["empty"]; ok {
		t.Fatalf("topic without questions must be excluded, got %v", topics)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}

	basics := topics["basics"]
	if basics.Name != "Basics" || basics.QuestionCount != 2 || !basics.ShowCorrectness {
		t.Fatalf("unexpected basics metadata: %+v", basics)
	}
	if topics["plain"].ShowCorrectness {
		t.Fatalf("plain topic must not reveal correctness")
	}
}

func TestTopicCodesSorted(t *testing.T) {
	b, err := LoadBank(writeBank(t, bankYAML))
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}
	codes := b.TopicCodes()
	want := []string{"basics", "plain"}
	if len(codes) != len(want) {
		t.Fatalf("codes = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestQuestionAtDeclarationOrder(t *testing.T) {
	b, err := LoadBank(writeBank(t, bankYAML))
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}

	q0, err := b.QuestionAt("basics", 0)
	if err != nil {
		t.Fatalf("QuestionAt(0): %v", err)
	}
	if q0.Text != "First question" {
		t.Fatalf("index 0 = %q", q0.Text)
	}
	if !q0.Answers[0].Correct || q0.Answers[1].Correct || q0.Answers[2].Correct {
		t.Fatalf("only the first declared answer may be correct: %+v", q0.Answers)
	}

	q1, err := b.QuestionAt("basics", 1)
	if err != nil {
		t.Fatalf("QuestionAt(1): %v", err)
	}
	if q1.Text != "Second question" {
		t.Fatalf("index 1 = %q", q1.Text)
	}

	if _, err := b.QuestionAt("basics", 2); !errors.Is(err, ErrNoMoreQuestions) {
		t.Fatalf("expected ErrNoMoreQuestions, got %v", err)
	}
	if _, err := b.QuestionAt("missing", 0); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestReloadIdempotentOnUnchangedContent(t *testing.T) {
	b, err := LoadBank(writeBank(t, bankYAML))
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}
	before := b.TopicCodes()
	if err := b.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	after := b.TopicCodes()
	if len(before) != len(after) {
		t.Fatalf("reload changed topics: %v -> %v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("reload changed topics: %v -> %v", before, after)
		}
	}
}

func TestLoadBankRejectsBrokenSources(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty file", ""},
		{"no questions", "enabled_topics:\n  - basics:\n      name: Basics\n"},
		{"bad yaml", ":\n  - ]["},
		{"single answer", "questions:\n  - t: a\n    q: hm\n    a: [only]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadBank(writeBank(t, tc.body)); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadBankMissingFile(t *testing.T) {
	if _, err := LoadBank(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing source")
	}
}
