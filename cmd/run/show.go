package run

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/markusressel/depth2go/internal/persistence"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the settings and samples of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		p, err := openPersistence()
		if err != nil {
			return err
		}

		record, err := p.LoadRun(id)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no run with id: %s", id)
		} else if err != nil {
			return err
		}

		if err = printRecord(record); err != nil {
			return err
		}
		PrintSamples(record.Samples)
		return nil
	},
}

func printRecord(record persistence.RunRecord) error {
	settings := record.Settings
	headers := []string{"", ""}
	rows := [][]string{
		{"Id", record.Id},
		{"Plant", settings.PlantId},
		{"Started", record.StartedAt.Format(time.DateTime)},
		{"Ended", record.EndedAt.Format(time.DateTime)},
		{"Gains", fmt.Sprintf("p=%v i=%v d=%v", settings.Gains.P, settings.Gains.I, settings.Gains.D)},
		{"Setpoint", fmt.Sprintf("%.2f m", settings.Setpoint)},
		{"Time Step", settings.TimeStep.String()},
		{"Max Thrust", fmt.Sprintf("%.2f", settings.MaxThrust)},
		{"Anti-Windup", settings.AntiWindup},
		{"Mode", settings.Mode},
		{"Cycles", fmt.Sprintf("%d", len(record.Samples))},
		{"Reason", record.Reason},
	}
	if len(record.Error) > 0 {
		rows = append(rows, []string{"Error", record.Error})
	}
	return printTable(headers, rows)
}

func init() {
	Command.AddCommand(showCmd)
}
