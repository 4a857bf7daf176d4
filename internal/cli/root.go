package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string

	// Global color control flag - inherited by all subcommands
	noColor bool

	// Build information - set via ldflags
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// runFlags are the flags of the root command.
type runFlags struct {
	bot    string
	first  int
	last   int
	cycles int
	quiet  bool
}

var flags runFlags

var rootCmd = &cobra.Command{
	Use:   "missionctl",
	Short: "Run reward-bot missions across a pool of chat sessions",
	Long: `missionctl drives a pool of chat sessions through a reward bot's mission
flow: it opens each session through the session gateway, asks the bot for a
mission, joins the linked channel or bot, presses verify until the bot reports
completion, and skips the mission when retries run out. The pool repeats the
cycle with a cooldown until interrupted.

Quick Start:
  missionctl config init                      # write a default config
  missionctl                                  # prompt for bot and session range
  missionctl --bot rewardbot --first 1 --last 20 --cycles 1`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPool(cmd, flags)
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/missionctl/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.Flags().StringVar(&flags.bot, "bot", "", "target bot username, skips the bot prompt")
	rootCmd.Flags().IntVar(&flags.first, "first", 0, "first session index, skips the prompt")
	rootCmd.Flags().IntVar(&flags.last, "last", 0, "last session index (inclusive), skips the prompt")
	rootCmd.Flags().IntVar(&flags.cycles, "cycles", 0, "stop after this many cycles (0 runs until interrupted)")
	rootCmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "do not echo mission trace lines to the console")

	rootCmd.AddCommand(
		newConfigCmd(),
		newVersionCmd(),
	)
}
