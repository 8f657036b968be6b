package cmd

import (
	"example.com/backstage/allegro/internal/services"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var importUserID uint

var importCmd = &cobra.Command{
	Use:   "import-auctions",
	Short: "Import a seller's listed auctions",
	Long: `Fetch every auction the seller currently lists on the marketplace and
create the ones missing locally. Imported auctions are not monitored until enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if importUserID == 0 {
			return errors.New("--user is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := services.NewAuctionService(a.db, a.readOnlyDB, a.client).Import(cmd.Context(), importUserID)
		if err != nil {
			return err
		}

		log.Info().Uint("user_id", importUserID).Int("created", created).Msg("Auctions imported")
		return nil
	},
}

func init() {
	importCmd.Flags().UintVar(&importUserID, "user", 0, "local id of the seller")
	rootCmd.AddCommand(importCmd)
}
