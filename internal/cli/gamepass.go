package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/mcoot/liveshard/internal/api/request"
)

func newGamePassCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gamepass",
		Short: "Game pass commands",
	}

	cmd.AddCommand(newGamePassSetActiveCmd("activate", true))
	cmd.AddCommand(newGamePassSetActiveCmd("deactivate", false))
	cmd.AddCommand(newGamePassPurchaseFinishedCmd())

	return cmd
}

func gamePassPath(userArg, pass, action string) (string, error) {
	id, err := parseUserID(userArg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/api/v1/sessions/%d/gamepasses/%s/%s", id, url.PathEscape(pass), action), nil
}

func newGamePassSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user_id> <pass_id>",
		Short: fmt.Sprintf("Set an owned game pass %sd", use),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := gamePassPath(args[0], args[1], "active")
			if err != nil {
				return err
			}
			if err := client.Put(cmd.Context(), path, request.SetActiveRequest{Active: active}, nil); err != nil {
				return err
			}

			output(cmd).PrintMessage(fmt.Sprintf("Game pass %s %sd", args[1], use))
			return nil
		},
	}
}

func newGamePassPurchaseFinishedCmd() *cobra.Command {
	var declined bool

	cmd := &cobra.Command{
		Use:   "purchase-finished <user_id> <pass_id>",
		Short: "Report that a game pass purchase prompt closed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := gamePassPath(args[0], args[1], "purchase-finished")
			if err != nil {
				return err
			}
			if err := client.Post(cmd.Context(), path, request.PurchaseFinishedRequest{Purchased: !declined}, nil); err != nil {
				return err
			}

			output(cmd).PrintMessage("Purchase prompt reported")
			return nil
		},
	}

	cmd.Flags().BoolVar(&declined, "declined", false, "The prompt closed without a purchase")

	return cmd
}
