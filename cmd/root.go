package cmd

import (
	"fmt"
	"os"

	"github.com/rlink-io/rlink/cmd/actor"
	"github.com/rlink-io/rlink/cmd/learner"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "rlink",
		Short: "transport layer for reinforcement learning pipelines",
		Long: fmt.Sprintf(`rlink (v%s)

A communication layer for reinforcement learning pipelines, connecting
actor nodes (experience producers) with learner nodes (trainers) over a
length-prefixed binary protocol with optional reliable delivery.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rlink",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rlink v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(learner.LearnerCmd)
	RootCmd.AddCommand(actor.ActorCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
