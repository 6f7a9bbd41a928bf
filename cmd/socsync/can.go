package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"socsync/internal/permissions"
	"socsync/pkg/models"
)

func newCanCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "can [action...]",
		Short: "Show which alert actions a role may perform",
		Long:  "Checks actions against the built-in role table. With no actions, every known action is listed. Exits non-zero when any requested action is denied.",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := &models.User{ID: "cli", Name: "cli", Role: models.Role(strings.ToUpper(role))}

			actions := models.Actions
			if len(args) > 0 {
				actions = make([]models.Action, len(args))
				for i, a := range args {
					actions[i] = models.Action(strings.ToLower(a))
				}
			}

			denied := printDecisions(cmd.OutOrStdout(), permissions.DefaultTable(), user, actions)
			if len(args) > 0 && denied > 0 {
				return fmt.Errorf("%d of %d actions denied for role %s", denied, len(actions), user.Role)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", "", "role to check (VIEWER, AUDITOR, ANALYST, SENIOR_ANALYST, ADMIN)")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func printDecisions(w io.Writer, table *permissions.Table, user *models.User, actions []models.Action) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tALLOWED\tMISSING")

	denied := 0
	for _, action := range actions {
		d := table.CheckAction(user, action)
		missing := make([]string, len(d.Missing))
		for i, p := range d.Missing {
			missing[i] = string(p)
		}
		if !d.Allowed {
			denied++
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", action, d.Allowed, strings.Join(missing, ","))
	}
	_ = tw.Flush()
	return denied
}
