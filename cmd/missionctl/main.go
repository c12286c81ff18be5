package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const envConfig = "MISSIONCTL_CONFIG"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "missionctl",
	Short: "missionctl - cron mission scheduler",
	Long: `missionctl keeps cron job timers in step with a persisted job store.

Available commands:
  serve     - Run the scheduler and the operator HTTP API
  describe  - Describe a cron expression in plain English
  next      - Show upcoming fire times of a cron expression
  jobs      - List and edit jobs in the store
  status    - Query a running server for scheduler status

Examples:
  missionctl serve --config ./config.json
  missionctl describe "30 9 * * *"
  missionctl next "*/15 * * * *" -n 5
  missionctl jobs add --name digest --schedule "0 18 * * 1"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// A missing .env is normal.
	_ = godotenv.Load()

	def := strings.TrimSpace(os.Getenv(envConfig))
	if def == "" {
		def = "./config.json"
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", def, "path to config file (json/yaml); env "+envConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
