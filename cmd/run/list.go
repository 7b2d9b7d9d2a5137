package run

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPersistence()
		if err != nil {
			return err
		}

		records, err := p.LoadRuns()
		if err != nil {
			return err
		}

		headers := []string{"Id", "Started", "Duration", "Plant", "Setpoint", "Cycles", "Reason"}
		var rows [][]string
		for _, record := range records {
			rows = append(rows, []string{
				record.Id,
				record.StartedAt.Format(time.DateTime),
				record.EndedAt.Sub(record.StartedAt).Round(time.Millisecond).String(),
				record.Settings.PlantId,
				fmt.Sprintf("%.2f", record.Settings.Setpoint),
				fmt.Sprintf("%d", len(record.Samples)),
				record.Reason,
			})
		}

		return printTable(headers, rows)
	},
}

func init() {
	Command.AddCommand(listCmd)
}
