package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"quizpoint/internal/app"
	"quizpoint/internal/availability"
	"quizpoint/internal/domain"
)

const takeHelp = "commands: n(ext), p(rev), g <#>, a <option#>, t <text>, submit, quit"

var (
	warnColor  = color.New(color.FgYellow)
	alertColor = color.New(color.FgRed, color.Bold)
	okColor    = color.New(color.FgGreen)
)

// NewTakeCmd runs an interactive attempt in the terminal.
func NewTakeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "take <quizID>",
		Short: "Take a quiz interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runTake(ctx, rt.service, quizID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// runTake drives one attempt from in/out until it is submitted, the user quits or input ends.
func runTake(ctx context.Context, service *app.QuizService, quizID int64, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := service.Open(quizID)
	defer session.Dispose()

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	snap, err := session.Start(ctx)
	if err != nil {
		if snap.State == app.StateBlocked {
			alertColor.Fprintln(out, snap.BlockMessage)
		}
		return err
	}

	quiz := session.Quiz()
	fmt.Fprintf(out, "%s\n", quiz.Title)
	if snap.Notice != "" {
		warnColor.Fprintln(out, snap.Notice)
	}
	if snap.HasDeadline {
		fmt.Fprintf(out, "Time limit: %s\n", availability.FormatRemaining(time.Duration(snap.RemainingSeconds)*time.Second))
	}
	fmt.Fprintln(out, takeHelp)
	render(out, session, snap)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	warnedLow := snap.LowTime
	lastAutosaveErr := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if snap.State == app.StateTerminated && snap.Result != nil {
				printResult(out, snap)
				return nil
			}
			if snap.LowTime && !warnedLow {
				warnedLow = true
				alertColor.Fprintf(out, "\n%s left!\n", availability.FormatClock(snap.RemainingSeconds))
			}
			if snap.AutosaveError != "" && snap.AutosaveError != lastAutosaveErr {
				warnColor.Fprintf(out, "not saved yet: %s\n", snap.AutosaveError)
			}
			lastAutosaveErr = snap.AutosaveError
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			done, err := handleLine(ctx, out, session, strings.TrimSpace(line), lines)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// handleLine applies one command. It reports done when the user quits.
func handleLine(ctx context.Context, out io.Writer, session *app.Session, line string, lines <-chan string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		render(out, session, session.Snapshot())
	case "n", "next":
		render(out, session, session.Next())
	case "p", "prev":
		render(out, session, session.Prev())
	case "g", "goto":
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintln(out, "usage: g <question#>")
			return false, nil
		}
		snap, err := session.GoTo(n - 1)
		if err != nil {
			fmt.Fprintln(out, err)
			return false, nil
		}
		render(out, session, snap)
	case "a":
		q, ok := session.CurrentQuestion()
		if !ok {
			return false, nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(q.Options) {
			fmt.Fprintf(out, "usage: a <1-%d>\n", len(q.Options))
			return false, nil
		}
		answer(ctx, out, session, q.ID, domain.ChoiceAnswer{OptionID: q.Options[n-1].ID})
	case "t":
		q, ok := session.CurrentQuestion()
		if !ok {
			return false, nil
		}
		answer(ctx, out, session, q.ID, domain.TextAnswer{Text: arg})
	case "submit":
		confirm := func(ctx context.Context, warning string) bool {
			return promptYesNo(ctx, out, warning, lines)
		}
		_, err := session.Submit(ctx, confirm)
		switch {
		case err == nil:
			printResult(out, session.Snapshot())
			return true, nil
		case errors.Is(err, domain.ErrSubmitNotConfirmed):
			fmt.Fprintln(out, "submit cancelled")
		case errors.Is(err, domain.ErrSubmissionFailed):
			alertColor.Fprintf(out, "%v\nyour answers are kept; type submit to retry\n", err)
		default:
			fmt.Fprintln(out, err)
		}
	case "q", "quit":
		fmt.Fprintln(out, "leaving; your saved answers are kept")
		return true, nil
	case "h", "help":
		fmt.Fprintln(out, takeHelp)
	default:
		fmt.Fprintln(out, takeHelp)
	}
	return false, nil
}

func answer(ctx context.Context, out io.Writer, session *app.Session, questionID int64, a domain.Answer) {
	if err := session.SetAnswer(ctx, questionID, a); err != nil {
		fmt.Fprintln(out, err)
		return
	}
	okColor.Fprintln(out, "answer recorded")
}

func promptYesNo(ctx context.Context, out io.Writer, question string, lines <-chan string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	select {
	case line, ok := <-lines:
		if !ok {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	case <-ctx.Done():
		return false
	}
}

func render(out io.Writer, session *app.Session, snap app.Snapshot) {
	q, ok := session.CurrentQuestion()
	if !ok {
		return
	}
	header := fmt.Sprintf("\n[%d/%d] answered %d/%d", snap.CurrentIndex+1, snap.QuestionCount, snap.AnsweredCount, snap.QuestionCount)
	fmt.Fprint(out, header)
	if snap.HasDeadline {
		clock := availability.FormatClock(snap.RemainingSeconds)
		if snap.LowTime {
			alertColor.Fprintf(out, "  %s left", clock)
		} else {
			okColor.Fprintf(out, "  %s left", clock)
		}
	}
	fmt.Fprintf(out, "\n%s\n", q.Text)

	current, answered := session.Answer(q.ID)
	switch q.Type {
	case domain.QuestionMCQ:
		for i, opt := range q.Options {
			mark := " "
			if c, ok := current.(domain.ChoiceAnswer); answered && ok && c.OptionID == opt.ID {
				mark = "*"
			}
			fmt.Fprintf(out, " %s %d) %s\n", mark, i+1, opt.Text)
		}
	case domain.QuestionDescriptive:
		if t, ok := current.(domain.TextAnswer); answered && ok {
			fmt.Fprintf(out, "  your answer: %s\n", t.Text)
		} else {
			fmt.Fprintln(out, "  (type t <your answer>)")
		}
	}
}

func printResult(out io.Writer, snap app.Snapshot) {
	okColor.Fprintln(out, "\nQuiz submitted.")
	if snap.Result.ShowScore {
		fmt.Fprintf(out, "Score: %g\n", snap.Result.TotalScore)
	}
	fmt.Fprintf(out, "Submission #%d\n", snap.Result.Submission.ID)
}
