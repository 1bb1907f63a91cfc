package cli

import (
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"quizpoint/internal/mockapi"
)

// NewMockAPICmd serves an in-memory quiz backend for local development.
func NewMockAPICmd(port *string) *cobra.Command {
	var seedPath string
	cmd := &cobra.Command{
		Use:   "mock-api",
		Short: "Run an in-memory quiz backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := mockapi.SampleSeed(time.Now())
			if seedPath != "" {
				loaded, err := mockapi.LoadSeed(seedPath)
				if err != nil {
					return err
				}
				seed = loaded
			}

			finalPort := *port
			if finalPort == "" {
				finalPort = "8000"
			}

			srv := mockapi.New(seed)
			log.Printf("mock api seeded with %d quizzes and %d users", len(seed.Quizzes), len(seed.Users))

			server := &http.Server{
				Addr:        ":" + finalPort,
				Handler:     srv.Handler(),
				ReadTimeout: 15 * time.Second,
			}
			return serveUntilSignal(cmd.Context(), server, "mock api")
		},
	}
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML seed file (defaults to a built-in sample)")
	cmd.Flags().StringVar(port, "port", "", "port to listen on")
	return cmd
}
