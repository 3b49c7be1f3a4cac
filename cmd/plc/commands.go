package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atplc/plc/directory"
	"github.com/atplc/plc/keystore"
	"github.com/atplc/plc/manager"
)

func buildManager(directoryURL, keystorePath string) (*manager.Manager, error) {
	dir, err := directory.New(directoryURL)
	if err != nil {
		return nil, err
	}
	store, err := keystore.Open(keystorePath)
	if err != nil {
		return nil, err
	}
	return manager.New(dir, store), nil
}

func newCreateCmd(directoryURL, keystorePath *string) *cobra.Command {
	var handle, service string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new did:plc identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildManager(*directoryURL, *keystorePath)
			if err != nil {
				return err
			}
			result, err := m.Create(cmd.Context(), handle, service)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"did":             result.DID,
				"rotationKey":     result.RotationKey.EncodePublic(),
				"verificationKey": result.VerificationKey.EncodePublic(),
				"handle":          result.Handle,
				"serviceEndpoint": result.ServiceEndpoint,
			})
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "at:// handle to publish in alsoKnownAs")
	cmd.Flags().StringVar(&service, "service", "", "atproto PDS service endpoint URL")
	return cmd
}

func newUpdateCmd(directoryURL, keystorePath *string) *cobra.Command {
	var handle, service string
	cmd := &cobra.Command{
		Use:   "update <did>",
		Short: "Update a did:plc identifier's handle or service endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildManager(*directoryURL, *keystorePath)
			if err != nil {
				return err
			}
			changes := manager.Changes{}
			if cmd.Flags().Changed("handle") {
				changes.Handle = &handle
			}
			if cmd.Flags().Changed("service") {
				changes.ServiceEndpoint = &service
			}
			return m.Update(cmd.Context(), args[0], changes)
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "new at:// handle, replacing alsoKnownAs entirely")
	cmd.Flags().StringVar(&service, "service", "", "new atproto PDS service endpoint URL")
	return cmd
}

func newRotateCmd(directoryURL, keystorePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate <did>",
		Short: "Rotate the rotation and verification keys for a did:plc identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildManager(*directoryURL, *keystorePath)
			if err != nil {
				return err
			}
			return m.RotateKeys(cmd.Context(), args[0])
		},
	}
	return cmd
}

func newDeactivateCmd(directoryURL, keystorePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <did>",
		Short: "Deactivate a did:plc identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildManager(*directoryURL, *keystorePath)
			if err != nil {
				return err
			}
			return m.Deactivate(cmd.Context(), args[0])
		},
	}
	return cmd
}

func newResolveCmd(directoryURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <did>",
		Short: "Resolve a did:plc identifier's DID document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := directory.New(*directoryURL)
			if err != nil {
				return err
			}
			doc, err := dir.ResolveDID(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
