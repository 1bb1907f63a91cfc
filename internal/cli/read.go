package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizpoint/internal/app"
	"quizpoint/internal/availability"
	"quizpoint/internal/domain"
)

// NewQuizzesCmd lists the catalog with availability labels.
func NewQuizzesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quizzes",
		Short: "List quizzes and whether they are open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			catalog, err := rt.service.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			printCatalog(cmd.OutOrStdout(), catalog)
			return nil
		},
	}
}

func printCatalog(out io.Writer, catalog []app.QuizAvailability) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tLIMIT\tWINDOW")
	for _, a := range catalog {
		limit := "-"
		if d, ok := a.Quiz.TimeLimit(); ok {
			limit = availability.FormatRemaining(d)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", a.Quiz.ID, a.Quiz.Title, labelText(a.Label), limit, windowText(a))
	}
	_ = w.Flush()
}

func labelText(l availability.Label) string {
	switch l {
	case availability.LabelActive:
		return color.GreenString(string(l))
	case availability.LabelUpcoming:
		return color.YellowString(string(l))
	case availability.LabelExpired, availability.LabelClosed:
		return color.RedString(string(l))
	}
	return string(l)
}

func windowText(a app.QuizAvailability) string {
	switch a.Label {
	case availability.LabelUpcoming:
		return "starts in " + availability.FormatRemaining(a.StartsIn)
	case availability.LabelActive:
		return "ends in " + availability.FormatRemaining(a.EndsIn)
	}
	return a.Quiz.EndTime.Local().Format(time.RFC822)
}

// NewStatusCmd shows one quiz's availability next to its leaderboard summary.
func NewStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <quizID>",
		Short: "Show whether a quiz can be started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runStatus(cmd.Context(), rt.service, quizID, cmd.OutOrStdout())
		},
	}
}

func runStatus(ctx context.Context, service *app.QuizService, quizID int64, out io.Writer) error {
	var (
		avail app.QuizAvailability
		board domain.Leaderboard
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		avail, err = service.Availability(gctx, quizID)
		return err
	})
	g.Go(func() error {
		var err error
		board, err = service.Leaderboard(gctx, quizID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s (#%d)\n", avail.Quiz.Title, avail.Quiz.ID)
	fmt.Fprintf(out, "status:  %s\n", labelText(avail.Label))
	fmt.Fprintf(out, "window:  %s\n", windowText(avail))
	if avail.Status.Message != "" {
		fmt.Fprintf(out, "note:    %s\n", avail.Status.Message)
	}
	if d, ok := avail.Quiz.TimeLimit(); ok {
		fmt.Fprintf(out, "limit:   %s\n", availability.FormatRemaining(d))
	}
	fmt.Fprintf(out, "players: %d (top %g, avg %.1f)\n", board.Stats.TotalParticipants, board.Stats.TopScore, board.Stats.AverageScore)
	return nil
}

// NewLeaderboardCmd prints the ranking of a quiz.
func NewLeaderboardCmd(configPath *string) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "leaderboard <quizID>",
		Short: "Show the ranking of a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			board, err := rt.service.Leaderboard(cmd.Context(), quizID)
			if err != nil {
				return err
			}
			printLeaderboard(cmd.OutOrStdout(), board, top)
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of entries to show (0 for all)")
	return cmd
}

func printLeaderboard(out io.Writer, board domain.Leaderboard, top int) {
	if len(board.Entries) == 0 {
		fmt.Fprintln(out, "no submissions yet")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tNAME\tSCORE\tSUBMITTED")
	for i, e := range board.Entries {
		if top > 0 && i >= top {
			break
		}
		fmt.Fprintf(w, "%d\t%s\t%g\t%s\n", e.Rank, e.User.Name, e.TotalScore, e.SubmittedAt.Local().Format(time.Kitchen))
	}
	_ = w.Flush()
	fmt.Fprintf(out, "%d participants, average %.1f\n", board.Stats.TotalParticipants, board.Stats.AverageScore)
}

// NewResultsCmd prints a finished submission.
func NewResultsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "results <submissionID>",
		Short: "Show the result of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			submissionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			view, err := rt.service.Results(cmd.Context(), submissionID)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

func printResults(out io.Writer, view domain.SubmissionView) {
	sub := view.Submission
	fmt.Fprintf(out, "submission #%d of quiz #%d: %s\n", sub.ID, sub.QuizID, sub.Status)
	fmt.Fprintf(out, "score: %g\n", sub.TotalScore)
	if !view.ShowAnswers {
		return
	}
	for i, a := range sub.Answers {
		mark := " "
		if view.ShowCorrectAnswers && a.IsCorrect != nil {
			if *a.IsCorrect {
				mark = color.GreenString("✓")
			} else {
				mark = color.RedString("✗")
			}
		}
		fmt.Fprintf(out, "%s %d. question #%d: %s (%g pts)\n", mark, i+1, a.QuestionID, answerText(a), a.ScoreAwarded)
	}
}

func answerText(a domain.SubmittedAnswer) string {
	switch {
	case a.SelectedOptionID != nil:
		return "option #" + strconv.FormatInt(*a.SelectedOptionID, 10)
	case a.AnswerText != nil:
		return strconv.Quote(*a.AnswerText)
	}
	return "-"
}

// NewHistoryCmd lists locally archived attempts.
func NewHistoryCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your finished attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			records, err := rt.service.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of attempts")
	return cmd
}

func printHistory(out io.Writer, records []domain.AttemptRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no attempts recorded")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBMISSION\tQUIZ\tSTATUS\tSCORE\tRECORDED")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%d\t%s\t%g\t%s\n", r.SubmissionID, r.QuizID, r.Status, r.TotalScore, r.RecordedAt.Local().Format(time.RFC822))
	}
	_ = w.Flush()
}
