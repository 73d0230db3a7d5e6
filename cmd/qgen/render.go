package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
	"github.com/johnmikel306/learntrack-sub002/internal/gateway/protocol"
	"github.com/johnmikel306/learntrack-sub002/internal/orchestrator"
)

// progressLine summarises a live view in one line.
func progressLine(v *protocol.View) string {
	if v == nil {
		return "[idle]"
	}
	if v.Draft == nil {
		return fmt.Sprintf("[%s] no draft", v.Mode)
	}
	d := v.Draft
	state := "generating"
	switch {
	case d.Failed:
		state = "failed"
	case d.Done && d.Partial:
		state = "partial"
	case d.Done:
		state = "done"
	case !v.IsGenerating:
		state = "stopped"
	}
	line := fmt.Sprintf("[%s] %d/%d questions", state, d.Progress.Current, d.Progress.Total)
	if d.CurrentAction != "" {
		line += " - " + d.CurrentAction
	}
	return line
}

// renderQuestions prints the questions of the active view.
func renderQuestions(w io.Writer, questions []*domain.Question) {
	for i, q := range questions {
		fmt.Fprintf(w, "%2d. [%s] %s (%s, %s)\n", i+1, q.Status, q.Text, q.Type, q.QuestionID)
		for _, opt := range q.Options {
			mark := " "
			if opt == q.CorrectAnswer {
				mark = "*"
			}
			fmt.Fprintf(w, "      %s %s\n", mark, opt)
		}
		if len(q.Options) == 0 && q.CorrectAnswer != "" {
			fmt.Fprintf(w, "      answer: %s\n", q.CorrectAnswer)
		}
	}
}

// activeQuestions returns the questions of whichever view is on screen.
func activeQuestions(v *protocol.View) []*domain.Question {
	if v == nil {
		return nil
	}
	if v.Session != nil && v.Mode == orchestrator.ModeHistorical {
		return v.Session.Questions
	}
	if v.Draft != nil {
		return v.Draft.Questions
	}
	return nil
}

// parseCommand turns an interactive input line into a gateway command.
func parseCommand(line string, count int) (protocol.CommandMessage, error) {
	verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	cmd := protocol.CommandMessage{}
	needArg := func(what string) error {
		if arg == "" {
			return fmt.Errorf("%s needs %s", verb, what)
		}
		return nil
	}

	switch verb {
	case "/generate":
		if err := needArg("a prompt"); err != nil {
			return cmd, err
		}
		cmd.Type = protocol.TypeGenerate
		cmd.Request = &domain.GenerateRequest{Prompt: arg, QuestionCount: count}
	case "/stop":
		cmd.Type = protocol.TypeStop
	case "/approve", "/reject":
		if err := needArg("a question id"); err != nil {
			return cmd, err
		}
		cmd.Type = strings.TrimPrefix(verb, "/")
		cmd.QuestionID = arg
	case "/edit":
		id, text, _ := strings.Cut(arg, " ")
		if id == "" || strings.TrimSpace(text) == "" {
			return cmd, fmt.Errorf("/edit needs a question id and the new text")
		}
		text = strings.TrimSpace(text)
		cmd.Type = protocol.TypeEdit
		cmd.QuestionID = id
		cmd.Patch = &domain.QuestionPatch{Text: &text}
	case "/approve-all":
		cmd.Type = protocol.TypeApproveAll
	case "/sessions":
		cmd.Type = protocol.TypeListSessions
	case "/select", "/delete":
		if err := needArg("a session id"); err != nil {
			return cmd, err
		}
		cmd.Type = protocol.TypeSelectSession
		if verb == "/delete" {
			cmd.Type = protocol.TypeDeleteSession
		}
		cmd.SessionID = arg
	default:
		return cmd, fmt.Errorf("unknown command %q", verb)
	}
	return cmd, nil
}

// renderSessions prints a sessions reply.
func renderSessions(w io.Writer, raw json.RawMessage) error {
	var sessions []domain.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %-11s  %d approved / %d pending / %d rejected\n",
			s.SessionID, s.Status, s.ApprovedCount, s.PendingCount, s.RejectedCount)
	}
	return nil
}
