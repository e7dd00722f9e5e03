package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "posyandu",
	Short: "Posyandu Klitikan participant health records",
	Long: `posyandu manages the participant health records of Posyandu Klitikan.

Run "posyandu serve" for the browser backend, or use the record and
account commands directly from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
				return err
			}
		}
		if logLevel != "" {
			return os.Setenv("LOG_LEVEL", logLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (or set CONFIG_FILE env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (or set LOG_LEVEL env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd, logoutCmd, signupCmd, forgotPasswordCmd, whoamiCmd)
	rootCmd.AddCommand(listCmd, addCmd, editCmd, deleteCmd, exportCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
