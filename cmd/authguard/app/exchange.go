// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/stacklok/authguard/pkg/auth"
	"github.com/stacklok/authguard/pkg/logger"
)

func newExchangeCmd() *cobra.Command {
	var (
		from string
		to   string
		req  auth.AuthRequest
	)

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Run one exchange against the configured stores",
		Long: `Run a single exchange and print the resulting AuthResponse as JSON.

Example:
  authguard exchange --config authguard.yaml --from basic --to accessToken \
    --identifier alice --password s3cret`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEngine(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := e.Close(context.WithoutCancel(cmd.Context())); err != nil {
					logger.Warnw("failed to release engine resources", "error", err)
				}
			}()

			if req.Domain == "" {
				req.Domain = e.Config().Domain
			}
			ctx := auth.WithRequestContext(cmd.Context(), auth.RequestContext{Source: "cli"})
			resp, err := e.Exchanger().Exchange(ctx, req, nil, from, to)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Token type to exchange")
	cmd.Flags().StringVar(&to, "to", "", "Token type to mint")
	cmd.Flags().StringVar(&req.Identifier, "identifier", "", "Username or email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password")
	cmd.Flags().StringVar(&req.Token, "token", "", "Credential to exchange, e.g. a refresh token or a Basic header value")
	cmd.Flags().StringVar(&req.Domain, "domain", "", "Account domain (defaults to the configured domain)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
