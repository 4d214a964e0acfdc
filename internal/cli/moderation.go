package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/liveshard/internal/api/request"
)

func newModerationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "moderation",
		Short: "Developer moderation commands",
		Long: `Kick, ban and unban users. Outside development the shard only accepts
these from developers; pass your user id with --executor.`,
	}

	cmd.AddCommand(newKickCmd())
	cmd.AddCommand(newBanCmd())
	cmd.AddCommand(newUnbanCmd())

	return cmd
}

func newKickCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "kick <user_id>",
		Short: "Kick a connected player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if err := client.Post(cmd.Context(), "/api/v1/moderation/kick", request.KickRequest{UserID: id, Reason: reason}, nil); err != nil {
				return err
			}

			output(cmd).PrintMessage(fmt.Sprintf("Kicked %d", id))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Kick message shown to the player")

	return cmd
}

func newBanCmd() *cobra.Command {
	var (
		reason    string
		duration  time.Duration
		permanent bool
	)

	cmd := &cobra.Command{
		Use:   "ban <user_id>",
		Short: "Ban a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			seconds := int64(duration / time.Second)
			if permanent {
				seconds = -1
			}
			req := request.BanRequest{UserID: id, Reason: reason, DurationSeconds: seconds}
			if err := client.Post(cmd.Context(), "/api/v1/moderation/ban", req, nil); err != nil {
				return err
			}

			output(cmd).PrintMessage(fmt.Sprintf("Banned %d", id))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Ban reason")
	cmd.Flags().DurationVar(&duration, "duration", 24*time.Hour, "Ban length")
	cmd.Flags().BoolVar(&permanent, "permanent", false, "Ban with no end")

	return cmd
}

func newUnbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unban <user_id>",
		Short: "Lift a user's ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if err := client.Post(cmd.Context(), "/api/v1/moderation/unban", request.UnbanRequest{UserID: id}, nil); err != nil {
				return err
			}

			output(cmd).PrintMessage(fmt.Sprintf("Unbanned %d", id))
			return nil
		},
	}
}
