// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stacklok/authguard/pkg/auth/keys"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
	}
	cmd.AddCommand(newKeysGenerateCmd())
	return cmd
}

func newKeysGenerateCmd() *cobra.Command {
	var (
		out       string
		algorithm string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a PEM encoded signing key",
		Long: `Generate a private signing key and write it as PKCS8 PEM. Point keys.keyDir
and keys.signingKeyFile at the result to sign tokens with it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(out); err == nil {
					return fmt.Errorf("%s already exists, use --force to overwrite it", out)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("failed to check %s: %w", out, err)
				}
			}

			signer, err := keys.GenerateKey(algorithm)
			if err != nil {
				return err
			}
			data, err := keys.EncodePEM(signer)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("failed to write key: %w", err)
			}

			kid, err := keys.DeriveKeyID(signer)
			if err != nil {
				return err
			}
			cmd.Printf("Wrote %s key %s to %s\n", algorithm, kid, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "File to write the key to")
	cmd.Flags().StringVar(&algorithm, "alg", keys.DefaultAlgorithm, "Signing algorithm (ES256, ES384 or ES512)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
