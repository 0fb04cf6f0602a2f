package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/jwtauth"
	"github.com/MrEthical07/jwtauth/principal"
	"github.com/spf13/cobra"
)

func newIssueCmd(opts *options) *cobra.Command {
	var (
		subject string
		pair    bool
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an access token for a principal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject == "" {
				return errors.New("--sub is required")
			}
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			rt, err := buildApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := rt.directory.Load(cmd.Context(), subject)
			if errors.Is(err, principal.ErrNotFound) {
				// Principals outside the file are issued as bare ids.
				p, err = principal.Principal{ID: subject, Active: true}, nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !pair {
				token, err := rt.engine.Issue(cmd.Context(), p)
				if err != nil {
					return fmt.Errorf("%s: %w", jwtauth.PublicMessage(err), err)
				}
				fmt.Fprintln(out, token)
				return nil
			}
			tp, err := rt.engine.IssuePair(cmd.Context(), p)
			if err != nil {
				return fmt.Errorf("%s: %w", jwtauth.PublicMessage(err), err)
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(tp)
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "principal id")
	cmd.Flags().BoolVar(&pair, "pair", false, "also issue a refresh token and print JSON")
	return cmd
}

func newDecodeCmd(opts *options) *cobra.Command {
	var authenticate bool

	cmd := &cobra.Command{
		Use:   "decode TOKEN",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			rt, err := buildApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			token := strings.TrimSpace(strings.TrimPrefix(args[0], "Bearer "))
			payload, err := rt.engine.Decode(token)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			if authenticate {
				p, err := rt.engine.AuthenticateToken(cmd.Context(), token)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "principal: %s\n", p.ID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&authenticate, "authenticate", false, "also run the validation subscribers and resolve the principal")
	return cmd
}
