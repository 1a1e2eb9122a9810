package cli

import (
	"encoding/json"
	"log"

	"github.com/spf13/cobra"

	"graphquiz/internal/app"
	"graphquiz/internal/config"
	"graphquiz/internal/domain"
)

// NewSeedCmd inserts a couple of demo questions into the configured store.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			store, cleanup, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			service := app.NewGameService(store, nil)
			for _, q := range sampleQuestions() {
				created, err := service.CreateQuestion(cmd.Context(), q)
				if err != nil {
					return err
				}
				log.Printf("seeded question %s", created.ID)
			}
			return nil
		},
	}
}

func sampleQuestions() []domain.Question {
	lineGraph := json.RawMessage(`{"type":"line","labels":["Jan","Feb","Mar","Apr"],"series":[[120,135,128,160]]}`)
	barGraph := json.RawMessage(`{"type":"bar","labels":["Rent","Food","Savings","Other"],"series":[[40,25,20,15]]}`)

	return []domain.Question{
		{
			GraphJSON:    lineGraph,
			Text:         "In which month did the value peak?",
			Options:      []string{"January", "February", "March", "April"},
			CorrectIndex: 3,
			Tip:          "Look for the highest point on the line.",
			Section:      1,
		},
		{
			GraphJSON:  barGraph,
			Text:       "Which categories take up at least a quarter of the budget?",
			Options:    []string{"Rent", "Food", "Savings", "Other"},
			Multi:      true,
			CorrectSet: []int{0, 1},
			Tip:        "Compare each bar against the 25% mark.",
			Section:    2,
		},
	}
}
