package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/api"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

func tokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return fmt.Errorf("--sub is required")
			}
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			auth, err := api.NewAuthenticator([]byte(cfg.JWTSecret))
			if err != nil {
				return err
			}
			token, err := auth.Token(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "Caller identity")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")
	return cmd
}

var schemaTypes = map[string]any{
	"save-request": &promptz.SaveRequest{},
	"entity":       &promptz.Entity{},
	"event":        &promptz.Event{},
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema {save-request|entity|event}",
		Short:     "Print the JSON schema of an API document",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"save-request", "entity", "event"},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok := schemaTypes[args[0]]
			if !ok {
				return fmt.Errorf("unknown document %q", args[0])
			}
			r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
			data, err := json.MarshalIndent(r.Reflect(v), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
