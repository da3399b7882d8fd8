package content

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Messages holds every user- and admin-facing template. All fields are
// required; a template missing from the source file is a startup error.
type Messages struct {
	Start                 string `yaml:"start"`
	Info                  string `yaml:"info"`
	InfoAllowedCharacters string `yaml:"info_allowed_characters"`
	Topic                 string `yaml:"topic"`
	TopicSelect           string `yaml:"topic_select"`

	// AdmitTextAdmin verbs, in order: topic "Name (code)", the info the
	// user typed, the one-line Telegram identity.
	AdmitTextAdmin string `yaml:"admit_text_admin"`
	AdmitTextUser  string `yaml:"admit_text_user"`
	AdmitButtonYes string `yaml:"admit_button_yes"`
	AdmitButtonNo  string `yaml:"admit_button_no"`
	AdmitYesAdmin  string `yaml:"admit_yes_admin"`
	AdmitYesUser   string `yaml:"admit_yes_user"`
	AdmitNoAdmin   string `yaml:"admit_no_admin"`
	AdmitNoUser    string `yaml:"admit_no_user"`

	AnswerCorrect   string `yaml:"query_answer_correct"`
	AnswerIncorrect string `yaml:"query_answer_incorrect"`

	// TestEnded verbs, in order: topic name, questions asked, score, percent.
	TestEnded    string `yaml:"test_ended"`
	TestCanceled string `yaml:"test_canceled"`
	Oops         string `yaml:"oops"`
}

// LoadMessages reads and validates the message templates file.
func LoadMessages(path string) (*Messages, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read messages file: %w", err)
	}
	var m Messages
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("content: parse messages file: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Messages) validate() error {
	required := map[string]string{
		"start":                   m.Start,
		"info":                    m.Info,
		"info_allowed_characters": m.InfoAllowedCharacters,
		"topic":                   m.Topic,
		"topic_select":            m.TopicSelect,
		"admit_text_admin":        m.AdmitTextAdmin,
		"admit_text_user":         m.AdmitTextUser,
		"admit_button_yes":        m.AdmitButtonYes,
		"admit_button_no":         m.AdmitButtonNo,
		"admit_yes_admin":         m.AdmitYesAdmin,
		"admit_yes_user":          m.AdmitYesUser,
		"admit_no_admin":          m.AdmitNoAdmin,
		"admit_no_user":           m.AdmitNoUser,
		"query_answer_correct":    m.AnswerCorrect,
		"query_answer_incorrect":  m.AnswerIncorrect,
		"test_ended":              m.TestEnded,
		"test_canceled":           m.TestCanceled,
		"oops":                    m.Oops,
	}
	for key, val := range required {
		if val == "" {
			return fmt.Errorf("content: messages file is missing %q", key)
		}
	}
	return nil
}
