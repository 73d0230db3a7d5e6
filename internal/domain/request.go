package domain

import "slices"

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Prompt        string         `json:"prompt"`
	QuestionCount int            `json:"question_count" validate:"min=1,max=50"`
	QuestionTypes []QuestionType `json:"question_types,omitempty" validate:"dive,question_type"`
	Difficulty    Difficulty     `json:"difficulty,omitempty" validate:"omitempty,difficulty"`
	MaterialIDs   []string       `json:"material_ids,omitempty" validate:"dive,required"`
	Provider      string         `json:"provider,omitempty"`
	Model         string         `json:"model,omitempty"`
	BloomsLevels  []string       `json:"blooms_levels,omitempty"`
}

// QuestionPatch carries the editable fields of a question. Nil fields are
// left unchanged; status is never part of a patch.
type QuestionPatch struct {
	Text          *string       `json:"question_text,omitempty"`
	Type          *QuestionType `json:"question_type,omitempty"`
	Difficulty    *Difficulty   `json:"difficulty,omitempty"`
	Options       *[]string     `json:"options,omitempty"`
	CorrectAnswer *string       `json:"correct_answer,omitempty"`
	Explanation   *string       `json:"explanation,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p QuestionPatch) Empty() bool {
	return p.Text == nil && p.Type == nil && p.Difficulty == nil &&
		p.Options == nil && p.CorrectAnswer == nil && p.Explanation == nil
}

// Diff returns the subset of p whose values differ from q.
func (p QuestionPatch) Diff(q *Question) QuestionPatch {
	var out QuestionPatch
	if p.Text != nil && *p.Text != q.Text {
		out.Text = p.Text
	}
	if p.Type != nil && *p.Type != q.Type {
		out.Type = p.Type
	}
	if p.Difficulty != nil && *p.Difficulty != q.Difficulty {
		out.Difficulty = p.Difficulty
	}
	if p.Options != nil && !slices.Equal(*p.Options, q.Options) {
		out.Options = p.Options
	}
	if p.CorrectAnswer != nil && *p.CorrectAnswer != q.CorrectAnswer {
		out.CorrectAnswer = p.CorrectAnswer
	}
	if p.Explanation != nil && *p.Explanation != q.Explanation {
		out.Explanation = p.Explanation
	}
	return out
}

// ApplyTo merges the patch into q.
func (p QuestionPatch) ApplyTo(q *Question) {
	if p.Text != nil {
		q.Text = *p.Text
	}
	if p.Type != nil {
		q.Type = *p.Type
	}
	if p.Difficulty != nil {
		q.Difficulty = *p.Difficulty
	}
	if p.Options != nil {
		q.Options = slices.Clone(*p.Options)
	}
	if p.CorrectAnswer != nil {
		q.CorrectAnswer = *p.CorrectAnswer
	}
	if p.Explanation != nil {
		q.Explanation = *p.Explanation
	}
}

// PatchFrom builds a patch from the editable fields q carries. Empty fields
// are left out, so a partial question only overrides what it holds.
func PatchFrom(q *Question) QuestionPatch {
	var p QuestionPatch
	if q.Text != "" {
		text := q.Text
		p.Text = &text
	}
	if q.Type != "" {
		typ := q.Type
		p.Type = &typ
	}
	if q.Difficulty != "" {
		diff := q.Difficulty
		p.Difficulty = &diff
	}
	if len(q.Options) > 0 {
		opts := slices.Clone(q.Options)
		p.Options = &opts
	}
	if q.CorrectAnswer != "" {
		answer := q.CorrectAnswer
		p.CorrectAnswer = &answer
	}
	if q.Explanation != "" {
		expl := q.Explanation
		p.Explanation = &expl
	}
	return p
}
