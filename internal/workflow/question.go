package workflow

import (
	"math/rand"
	"strings"

	"github.com/aleksashka/quiz-bot/core/telegram/format"
	"github.com/aleksashka/quiz-bot/internal/content"
	"github.com/aleksashka/quiz-bot/internal/transport"
)

// answerLetters caps the rendered options at ten per question.
const answerLetters = "ABCDEFGHIJ"

// renderedQuestion is one presentation of a question: assembled text, the
// lettered answer buttons in shuffled order, and the parse mode to send with.
type renderedQuestion struct {
	Text      string
	Buttons   []transport.Button
	ParseMode string
}

// renderQuestion assembles the question text with a freshly permuted answer
// list. The whole payload switches to MarkdownV2 when the question or any
// answer carries the raw-formatting marker; the decision is all-or-nothing
// per question. Exactly one button carries the correct mark.
func renderQuestion(q content.Question, rng *rand.Rand) renderedQuestion {
	useMD := format.IsRaw(q.Text)
	for _, a := range q.Answers {
		if format.IsRaw(a.Text) {
			useMD = true
			break
		}
	}

	text := q.Text
	if useMD {
		text = format.Prepare(text)
	}

	answers := make([]content.Answer, len(q.Answers))
	copy(answers, q.Answers)
	rng.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})

	var b strings.Builder
	b.WriteString(text)
	buttons := make([]transport.Button, 0, len(answers))
	for i, a := range answers {
		if i == 0 {
			b.WriteString("\n\n")
		} else {
			b.WriteString("\n")
		}
		letter := string(answerLetters[i])
		b.WriteString(formatAnswerLine(useMD, letter, a.Text))

		mark := "0"
		if a.Correct {
			mark = "1"
		}
		buttons = append(buttons, transport.Button{
			Text:   letter,
			Unique: CallbackAnswer,
			Data:   mark,
		})
	}

	parseMode := ""
	if useMD {
		parseMode = "MarkdownV2"
	}
	return renderedQuestion{Text: b.String(), Buttons: buttons, ParseMode: parseMode}
}

// formatAnswerLine renders one lettered option. In MarkdownV2 mode the
// letter separator dot needs its own escape, and the answer text goes
// through the same marker-or-escape preparation as the question.
func formatAnswerLine(useMD bool, letter, answer string) string {
	if !useMD {
		return letter + ". " + answer
	}
	return letter + "\\. " + format.Prepare(answer)
}
