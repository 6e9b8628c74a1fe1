package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prismbot/prism/internal/projects"
)

func newProjectCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage agent projects",
	}
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "data directory holding projects/")

	manager := func() *projects.Manager {
		return projects.NewManager(filepath.Join(dataDir, "projects"), nil)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name> [description]",
		Short: "Create a project with its directory scaffold",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := ""
			if len(args) > 1 {
				description = args[1]
			}
			project, err := manager().Create(args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s at %s\n", project.Name, project.Path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, project := range manager().List() {
				line := fmt.Sprintf("%s\t%s", project.Name, project.Status)
				if project.Description != "" {
					line += "\t" + project.Description
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status <name> <active|suspended|completed|archived>",
		Short: "Move a project to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := projects.Status(strings.ToLower(args[1]))
			if !projects.ValidStatus(target) {
				return fmt.Errorf("unknown status %q", args[1])
			}
			project, err := manager().SetStatus(args[0], target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", project.Name, project.Status)
			return nil
		},
	})

	return cmd
}
