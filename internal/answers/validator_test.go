package answers

import (
	"testing"

	"leadcapture/pkg/domain"
)

func question(id string, at domain.AnswerType, required bool) domain.Question {
	return domain.Question{ID: id, AnswerType: at, Required: required}
}

func TestValidateRequiredText(t *testing.T) {
	q := question("q1", domain.AnswerShortText, true)
	if err := Validate(q, domain.AnswerValue{}); err == nil {
		t.Fatalf("absent answer should fail a required text question")
	}
	if err := Validate(q, domain.TextValue("")); err == nil {
		t.Fatalf("empty answer should fail a required text question")
	}
	if err := Validate(q, domain.TextValue("   ")); err == nil {
		t.Fatalf("whitespace answer should fail a required text question")
	}
	if err := Validate(q, domain.TextValue("ok")); err != nil {
		t.Fatalf("valid answer rejected: %+v", err)
	}
}

func TestValidateOptionalAcceptsAnything(t *testing.T) {
	for _, at := range []domain.AnswerType{
		domain.AnswerShortText, domain.AnswerLongText, domain.AnswerSingleChoice,
		domain.AnswerMultipleChoice, domain.AnswerChecklist, domain.AnswerRating, domain.AnswerImage,
	} {
		q := question("q", at, false)
		if err := Validate(q, domain.AnswerValue{}); err != nil {
			t.Fatalf("optional %s with absent answer rejected: %+v", at, err)
		}
		if err := Validate(q, domain.TextValue("")); err != nil {
			t.Fatalf("optional %s with empty answer rejected: %+v", at, err)
		}
	}
}

func TestValidateMultipleChoice(t *testing.T) {
	q := question("q2", domain.AnswerMultipleChoice, true)
	err := Validate(q, domain.ChoicesValue())
	if err == nil {
		t.Fatalf("empty selection should fail a required multiple_choice question")
	}
	if err.Message != "Please select at least one option" {
		t.Fatalf("message = %q, want %q", err.Message, "Please select at least one option")
	}
	if err := Validate(q, domain.TextValue("a")); err == nil {
		t.Fatalf("non-array answer should fail a multiple_choice question")
	}
	if err := Validate(q, domain.ChoicesValue("a")); err != nil {
		t.Fatalf("valid selection rejected: %+v", err)
	}
}

func TestValidateImage(t *testing.T) {
	q := question("q3", domain.AnswerImage, true)
	if err := Validate(q, domain.ChoicesValue()); err == nil {
		t.Fatalf("empty image list should fail")
	}
	if err := Validate(q, domain.ChoicesValue("https://cdn.example/a.jpg", "")); err == nil {
		t.Fatalf("blank URL entry should fail")
	}
	if err := Validate(q, domain.ChoicesValue("https://cdn.example/a.jpg")); err != nil {
		t.Fatalf("valid image list rejected: %+v", err)
	}
}

func TestValidateRatingPresenceOnly(t *testing.T) {
	q := question("q4", domain.AnswerRating, true)
	if err := Validate(q, domain.AnswerValue{}); err == nil {
		t.Fatalf("absent rating should fail")
	}
	// Range is not this layer's concern.
	if err := Validate(q, domain.NumberValue(99)); err != nil {
		t.Fatalf("out-of-range rating rejected at validation layer: %+v", err)
	}
	if err := Validate(q, domain.NumberValue(0)); err != nil {
		t.Fatalf("zero rating rejected: %+v", err)
	}
}

func TestValidateAllCollectsEveryError(t *testing.T) {
	questions := []domain.Question{
		question("a", domain.AnswerShortText, true),
		question("b", domain.AnswerMultipleChoice, true),
		question("c", domain.AnswerLongText, false),
		question("d", domain.AnswerRating, true),
	}
	values := map[string]domain.AnswerValue{
		"d": domain.NumberValue(4),
	}
	errs := ValidateAll(questions, values)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %+v", len(errs), errs)
	}
	if errs[0].QuestionID != "a" || errs[1].QuestionID != "b" {
		t.Fatalf("errors out of question order: %+v", errs)
	}
}

func TestFirstUnansweredRequired(t *testing.T) {
	questions := []domain.Question{
		question("a", domain.AnswerShortText, true),
		question("b", domain.AnswerShortText, true),
	}
	values := map[string]domain.AnswerValue{
		"a": domain.TextValue("done"),
	}
	q, found := FirstUnansweredRequired(questions, values)
	if !found || q.ID != "b" {
		t.Fatalf("FirstUnansweredRequired = (%q, %v), want (b, true)", q.ID, found)
	}
	values["b"] = domain.TextValue("done too")
	if _, found := FirstUnansweredRequired(questions, values); found {
		t.Fatalf("all answered, expected no unanswered question")
	}
}
