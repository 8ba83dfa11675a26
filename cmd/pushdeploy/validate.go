package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"pushdeploy/internal/notify"
	"pushdeploy/internal/security"
	"pushdeploy/pkg/cmdutil"
)

var strictSecrets bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the project configuration",
	Long: `Load and validate the project configuration without starting the server.

Every problem of every project is reported. With --strict, weak webhook secrets
are errors instead of warnings.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&strictSecrets, "strict", false, "Treat weak secrets as errors")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, registry, err := loadRegistry()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration: %s\n", path)
	fmt.Fprintf(out, "Projects: %d\n", registry.Count())

	var errs []error
	for _, name := range registry.List() {
		proj, err := registry.Get(name)
		if err != nil {
			return err
		}

		channels := lo.Map(lo.Keys(proj.Notifications), func(k notify.Kind, _ int) string { return string(k) })
		slices.Sort(channels)

		fmt.Fprintf(out, "\n  %s\n", proj.Name)
		fmt.Fprintf(out, "    directory:     %s\n", proj.Directory)
		fmt.Fprintf(out, "    target branch: %s\n", proj.TargetBranch)
		fmt.Fprintf(out, "    timeout:       %s per command\n", proj.CommandTimeout)
		for i, command := range proj.Commands {
			fmt.Fprintf(out, "    %d. %s\n", i+1, cmdutil.FormatCommand(command))
		}
		if len(channels) > 0 {
			fmt.Fprintf(out, "    notifications: %s\n", strings.Join(channels, ", "))
		}

		if strictSecrets {
			if err := security.ValidateSecret(proj.Secret); err != nil {
				errs = append(errs, fmt.Errorf("project '%s': %w", name, err))
			}
		}
	}

	if warnings := registry.Warnings(); len(warnings) > 0 {
		fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nConfiguration is valid")
	return nil
}
