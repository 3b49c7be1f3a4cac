package main

import (
	"log"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "plc",
		Short:        "Manage did:plc identifiers",
		SilenceUsage: true,
	}
	var (
		directoryURL string
		keystorePath string
	)
	root.PersistentFlags().StringVar(&directoryURL, "directory", "https://plc.directory", "PLC directory base URL")
	root.PersistentFlags().StringVar(&keystorePath, "keystore", "plc-keys.json", "path to the local key store file")

	root.AddCommand(
		newCreateCmd(&directoryURL, &keystorePath),
		newUpdateCmd(&directoryURL, &keystorePath),
		newRotateCmd(&directoryURL, &keystorePath),
		newDeactivateCmd(&directoryURL, &keystorePath),
		newResolveCmd(&directoryURL),
	)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
