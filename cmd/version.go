package cmd

import (
	"billevents/internal/version"

	"github.com/spf13/cobra"
)

// Version information variables that will be set via ldflags during build.
// These are kept for build processes that inject into the cmd package
// instead of internal/version.
//
//nolint:gochecknoglobals // Required for build-time injection via ldflags.
var (
	Version   string
	Commit    string
	BuildTime string
)

// newVersionCmd creates and returns the version command.
func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Show the version, commit, and build time of the billevents binary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersion(cmd, short)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")
	return cmd
}

// runVersion writes the formatted version information.
func runVersion(cmd *cobra.Command, short bool) error {
	syncLegacyVersionVars()
	return version.GetVersion().Write(cmd.OutOrStdout(), short)
}

// syncLegacyVersionVars pushes cmd-level ldflags values into the version
// package. SetBuildVars overwrites existing values, so it only runs when at
// least one variable is set.
func syncLegacyVersionVars() {
	if Version != "" || Commit != "" || BuildTime != "" {
		version.SetBuildVars(Version, Commit, BuildTime)
	}
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newVersionCmd())
}
