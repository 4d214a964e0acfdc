package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mcoot/liveshard/internal/api/request"
	"github.com/mcoot/liveshard/internal/api/response"
)

func newReceiptCmd() *cobra.Command {
	var req request.ReceiptRequest

	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Deliver a purchase receipt to the shard",
		Long: `Deliver a purchase receipt as the platform would. The decision is either
PurchaseGranted or NotProcessedYet; redeliver the same --purchase id to retry.
Without --purchase a fresh id is generated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.PurchaseID == "" {
				req.PurchaseID = uuid.NewString()
			}
			var result response.Decision
			if err := client.Post(cmd.Context(), "/api/v1/receipts", req, &result); err != nil {
				return err
			}

			out := output(cmd)
			if cfg.Verbose {
				out.PrintMessage("Purchase " + req.PurchaseID)
			}
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.PurchaseID, "purchase", "", "Purchase id")
	cmd.Flags().Int64Var(&req.PlayerID, "player", 0, "Buyer user id (required)")
	cmd.Flags().StringVar(&req.ProductID, "product", "", "Product id (required)")
	cmd.Flags().Int64Var(&req.CurrencySpent, "spent", 0, "Currency spent")
	_ = cmd.MarkFlagRequired("player")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}
