package main

import (
	"os"
	"strconv"

	"paintroom-be/pkg/roomclient"

	"github.com/spf13/cobra"
)

var apiURL string

var rootCmd = &cobra.Command{
	Use:           "roomsim",
	Short:         "Drive paintroom rooms from the terminal",
	Long:          `Client side tooling for the paintroom API. Commands: rooms, watch, start, finish, draw.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	def := os.Getenv("ROOMSIM_API")
	if def == "" {
		def = "http://localhost:3000/api"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", def, "API root of the paintroom server")

	rootCmd.AddCommand(roomsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(finishCmd)
	rootCmd.AddCommand(drawCmd)
}

func apiClient() *roomclient.Client {
	return roomclient.New(apiURL)
}

func parseRoomID(arg string) (int64, error) {
	return strconv.ParseInt(arg, 10, 64)
}
