// Package questions defines the static patient-intake questionnaire.
//
// The catalog is ordered, immutable after process start, and safe for
// unsynchronized concurrent reads. Conditional follow-ups are a per-question
// mapping from a specific answer value to the question asked next.
package questions

import (
	"fmt"

	"github.com/BTreeMap/IntakeLine/internal/models"
)

// Catalog holds the full scripted questionnaire in section order.
type Catalog struct {
	consent  *models.Question
	sections map[models.Section][]*models.Question
	closing  *models.Question
	byKey    map[string]*models.Question
}

// intakeOrder is the traversal order of the answerable intake sections.
// Consent and closing sit outside it and are handled by the dispatcher.
var intakeOrder = []models.Section{
	models.SectionHPI,
	models.SectionAmple,
	models.SectionFamilyHistory,
}

// NewCatalog builds the default patient-intake catalog.
func NewCatalog() *Catalog {
	c := &Catalog{
		consent: &models.Question{
			Key:         "consent",
			Prompt:      "Hello, this is an automated health intake call. Before we begin, I need your consent to record this conversation and collect your health information. Press 1 to provide consent, or press 2 to decline.",
			Kind:        models.QuestionDTMF,
			Section:     models.SectionConsent,
			ValidDigits: "12",
			MaxDigits:   1,
		},
		closing: &models.Question{
			Key:     "closing",
			Prompt:  "Thank you for completing the health intake questionnaire. Your information has been recorded and will be reviewed by a healthcare provider. You will be contacted soon. Goodbye.",
			Kind:    models.QuestionStatement,
			Section: models.SectionClosing,
		},
		sections: map[models.Section][]*models.Question{
			models.SectionHPI: {
				{
					Key:     "chief_complaint",
					Prompt:  "What is the main health concern that brings you in today? After the beep, please describe your symptoms.",
					Kind:    models.QuestionVoice,
					Section: models.SectionHPI,
				},
				{
					Key:         "symptom_duration",
					Prompt:      "How long have you been experiencing these symptoms? Press 1 for less than a day, 2 for 1-3 days, 3 for 4-7 days, or 4 for more than a week.",
					Kind:        models.QuestionDTMF,
					Section:     models.SectionHPI,
					ValidDigits: "1234",
					MaxDigits:   1,
				},
				{
					Key:         "pain_level",
					Prompt:      "On a scale of 1 to 10, with 10 being the worst pain, how would you rate your pain level? Please press a number from 0 to 10.",
					Kind:        models.QuestionDTMF,
					Section:     models.SectionHPI,
					ValidDigits: "012345678910",
					MaxDigits:   2,
				},
			},
			models.SectionAmple: {
				{
					Key:         "allergies",
					Prompt:      "Do you have any known allergies to medications? Press 1 for yes, 2 for no.",
					Kind:        models.QuestionDTMF,
					Section:     models.SectionAmple,
					ValidDigits: "12",
					MaxDigits:   1,
					FollowUp: map[string]*models.Question{
						"1": {
							Key:     "allergies_detail",
							Prompt:  "Please describe your medication allergies after the beep.",
							Kind:    models.QuestionVoice,
							Section: models.SectionAmple,
						},
					},
				},
				{
					Key:         "medications",
					Prompt:      "Are you currently taking any medications? Press 1 for yes, 2 for no.",
					Kind:        models.QuestionDTMF,
					Section:     models.SectionAmple,
					ValidDigits: "12",
					MaxDigits:   1,
					FollowUp: map[string]*models.Question{
						"1": {
							Key:     "medications_detail",
							Prompt:  "Please list your current medications after the beep.",
							Kind:    models.QuestionVoice,
							Section: models.SectionAmple,
						},
					},
				},
				{
					Key:         "past_medical_history",
					Prompt:      "Do you have any significant past medical conditions? Press 1 for yes, 2 for no.",
					Kind:        models.QuestionDTMF,
					Section:     models.SectionAmple,
					ValidDigits: "12",
					MaxDigits:   1,
					FollowUp: map[string]*models.Question{
						"1": {
							Key:     "past_medical_history_detail",
							Prompt:  "Please describe your past medical conditions after the beep.",
							Kind:    models.QuestionVoice,
							Section: models.SectionAmple,
						},
					},
				},
				{
					Key:         "last_meal",
					Prompt:      "When was your last meal? Press 1 for within the last hour, 2 for 1-3 hours ago, 3 for 3-6 hours ago, or 4 for more than 6 hours ago.",
					Kind:        models.QuestionDTMF,
					Section:     models.SectionAmple,
					ValidDigits: "1234",
					MaxDigits:   1,
				},
			},
			models.SectionFamilyHistory: {
				{
					Key:         "heart_disease",
					Prompt:      "Does anyone in your immediate family have a history of heart disease? Press 1 for yes, 2 for no.",
					Kind:        models.QuestionDTMF,
					Section:     models.SectionFamilyHistory,
					ValidDigits: "12",
					MaxDigits:   1,
				},
				{
					Key:         "diabetes",
					Prompt:      "Does anyone in your immediate family have diabetes? Press 1 for yes, 2 for no.",
					Kind:        models.QuestionDTMF,
					Section:     models.SectionFamilyHistory,
					ValidDigits: "12",
					MaxDigits:   1,
				},
				{
					Key:         "cancer",
					Prompt:      "Is there a history of cancer in your immediate family? Press 1 for yes, 2 for no.",
					Kind:        models.QuestionDTMF,
					Section:     models.SectionFamilyHistory,
					ValidDigits: "12",
					MaxDigits:   1,
				},
			},
		},
		byKey: make(map[string]*models.Question),
	}
	c.index(c.consent)
	for _, sec := range intakeOrder {
		for _, q := range c.sections[sec] {
			c.index(q)
		}
	}
	c.index(c.closing)
	return c
}

func (c *Catalog) index(q *models.Question) {
	c.byKey[q.Key] = q
	for _, fu := range q.FollowUp {
		c.index(fu)
	}
}

// Consent returns the consent gate question.
func (c *Catalog) Consent() *models.Question { return c.consent }

// Closing returns the closing statement.
func (c *Catalog) Closing() *models.Question { return c.closing }

// SectionQuestions returns the ordered question list of an intake section.
// Consent and closing have no list; they return nil.
func (c *Catalog) SectionQuestions(sec models.Section) []*models.Question {
	return c.sections[sec]
}

// FirstSection returns the first answerable intake section.
func (c *Catalog) FirstSection() models.Section { return intakeOrder[0] }

// NextSection returns the section after sec in traversal order. The second
// return value is false once the last intake section is exhausted.
func (c *Catalog) NextSection(sec models.Section) (models.Section, bool) {
	for i, s := range intakeOrder {
		if s == sec && i+1 < len(intakeOrder) {
			return intakeOrder[i+1], true
		}
	}
	return sec, false
}

// ByKey looks up any question, including follow-ups, by its key.
func (c *Catalog) ByKey(key string) (*models.Question, error) {
	q, ok := c.byKey[key]
	if !ok {
		return nil, models.ErrQuestionNotFound
	}
	return q, nil
}

// SectionKeys returns every question key belonging to a section, follow-ups
// included, in ask order. Used to partition answers during record assembly.
func (c *Catalog) SectionKeys(sec models.Section) []string {
	var keys []string
	for _, q := range c.sections[sec] {
		keys = append(keys, q.Key)
		for _, fu := range q.FollowUp {
			keys = append(keys, fu.Key)
		}
	}
	return keys
}

// Validate checks catalog integrity: unique keys, digit rules present on
// touch-tone questions, and follow-up values that the parent can produce.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool)
	var walk func(q *models.Question) error
	walk = func(q *models.Question) error {
		if seen[q.Key] {
			return fmt.Errorf("duplicate question key %q", q.Key)
		}
		seen[q.Key] = true
		if q.Kind == models.QuestionDTMF && (q.ValidDigits == "" || q.MaxDigits <= 0) {
			return fmt.Errorf("question %q: touch-tone questions need valid digits and a max length", q.Key)
		}
		for val, fu := range q.FollowUp {
			if !q.AcceptsDigits(val) {
				return fmt.Errorf("question %q: follow-up keyed by unreachable answer %q", q.Key, val)
			}
			if err := walk(fu); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(c.consent); err != nil {
		return err
	}
	for _, sec := range intakeOrder {
		for _, q := range c.sections[sec] {
			if err := walk(q); err != nil {
				return err
			}
		}
	}
	return walk(c.closing)
}
