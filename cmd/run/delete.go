package run

import (
	"github.com/markusressel/depth2go/internal/ui"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete recorded runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPersistence()
		if err != nil {
			return err
		}

		for _, id := range args {
			if err = p.DeleteRun(id); err != nil {
				return err
			}
			ui.Success("Deleted run %s", id)
		}
		return nil
	},
}

func init() {
	Command.AddCommand(deleteCmd)
}
