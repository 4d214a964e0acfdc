package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/liveshard/internal/api/request"
	"github.com/mcoot/liveshard/internal/api/response"
	"github.com/mcoot/liveshard/internal/world"
)

func newCharacterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "character",
		Short: "Character rig commands",
	}

	cmd.AddCommand(newCharacterGetCmd())
	cmd.AddCommand(newCharacterSpawnCmd())
	cmd.AddCommand(newCharacterDetachCmd())

	return cmd
}

func characterPath(arg string) (string, error) {
	id, err := parseUserID(arg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/api/v1/sessions/%d/character", id), nil
}

func newCharacterGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <user_id>",
		Short: "Show a player's rig and readiness state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := characterPath(args[0])
			if err != nil {
				return err
			}
			var result response.Character
			if err := client.Get(cmd.Context(), path, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

// parsePart reads a name=Class pair
func parsePart(s string) (world.Part, error) {
	name, class, ok := strings.Cut(s, "=")
	if !ok || name == "" || class == "" {
		return world.Part{}, fmt.Errorf("invalid part %q, expected name=Class", s)
	}
	return world.Part{Name: name, Class: world.PartClass(class)}, nil
}

func newCharacterSpawnCmd() *cobra.Command {
	var parts []string

	cmd := &cobra.Command{
		Use:   "spawn <user_id>",
		Short: "Spawn a new rig for a player",
		Long: `Spawn a new rig for a player. Without --part a full character is spawned;
with --part only the listed parts are, which can leave the rig never ready.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := characterPath(args[0])
			if err != nil {
				return err
			}
			req := request.SpawnCharacterRequest{}
			for _, s := range parts {
				p, err := parsePart(s)
				if err != nil {
					return err
				}
				req.Parts = append(req.Parts, p)
			}

			var result response.Character
			if err := client.Post(cmd.Context(), path, req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&parts, "part", nil, "Part as name=Class (repeatable)")

	return cmd
}

func newCharacterDetachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach <user_id>",
		Short: "Detach a player's rig from the world",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := characterPath(args[0])
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), path); err != nil {
				return err
			}

			output(cmd).PrintMessage("Character detached")
			return nil
		},
	}
}
