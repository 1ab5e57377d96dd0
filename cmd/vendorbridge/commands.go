package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/vendorbridge/internal/application"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
)

func newProvidersCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List registered vendors and the operations of each domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOMAIN\tVENDOR\tRATE LIMIT\tAUTH\tOPERATIONS")
			for _, b := range a.registry.Bindings() {
				ops := lo.Filter(operationNames(), func(name string, _ int) bool {
					return operations[name].domain == b.Domain
				})
				modes := lo.Map(b.Spec.AuthModes, func(m model.AuthMode, _ int) string { return string(m) })
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					b.Domain, b.Vendor, b.Spec.RateLimit, strings.Join(modes, ","), strings.Join(ops, ","))
			}
			return w.Flush()
		},
	}
}

func newCredentialsCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"creds"},
		Short:   "Manage encrypted vendor credentials per tenant",
	}
	cmd.AddCommand(
		newCredentialsSetCommand(get),
		newCredentialsDeleteCommand(get),
		newCredentialsListCommand(get),
	)
	return cmd
}

// parseKey validates a tenant, domain and vendor against the registry.
func parseKey(a *app, args []string) (model.CacheKey, error) {
	key := model.CacheKey{TenantID: args[0], Domain: model.Domain(args[1]), Vendor: args[2]}
	if key.TenantID == "" {
		return key, errors.New("tenant must not be empty")
	}
	if !key.Domain.IsValid() {
		return key, fmt.Errorf("unknown domain %q", args[1])
	}
	if _, ok := a.registry.Lookup(key.Domain, key.Vendor); !ok {
		return key, fmt.Errorf("no %s vendor named %q; run 'vendorbridge providers'", key.Domain, key.Vendor)
	}
	return key, nil
}

func newCredentialsSetCommand(get func() *app) *cobra.Command {
	var apiKey, accessToken, refreshToken, baseURL string

	cmd := &cobra.Command{
		Use:   "set <tenant> <domain> <vendor>",
		Short: "Store credentials for a tenant's vendor",
		Long:  "Store an API key (--api-key, or '-' to read it from stdin) or an OAuth2 access token. Existing credentials are replaced.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			key, err := parseKey(a, args)
			if err != nil {
				return err
			}
			if apiKey == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read api key: %w", err)
				}
				apiKey = strings.TrimSpace(string(raw))
			}

			var creds model.Credentials
			switch {
			case apiKey != "" && accessToken != "":
				return errors.New("--api-key and --access-token are mutually exclusive")
			case apiKey != "":
				creds = model.APIKeyCredentials{Token: apiKey, BaseURL: baseURL}
			case accessToken != "":
				creds = model.OAuth2Credentials{AccessToken: accessToken, RefreshToken: refreshToken, BaseURL: baseURL}
			default:
				return errors.New("one of --api-key or --access-token is required")
			}

			binding, _ := a.registry.Lookup(key.Domain, key.Vendor)
			if !binding.Spec.Accepts(creds.AuthMode()) {
				return fmt.Errorf("%s does not accept %s credentials", key.Vendor, creds.AuthMode())
			}
			if err := a.creds.Set(cmd.Context(), key, creds); err != nil {
				return err
			}
			a.factory.Invalidate(key)
			a.logger.Info("credentials stored", "key", key.String(), "auth_mode", creds.AuthMode())
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "static API token; '-' reads it from stdin")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "OAuth2 access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth2 refresh token, kept for an external refresher")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "override the vendor API base URL")
	return cmd
}

func newCredentialsDeleteCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant> <domain> <vendor>",
		Short: "Remove stored credentials",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			key, err := parseKey(a, args)
			if err != nil {
				return err
			}
			if err := a.creds.Delete(cmd.Context(), key); err != nil {
				return err
			}
			a.factory.Invalidate(key)
			return nil
		},
	}
}

func newCredentialsListCommand(get func() *app) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials without their secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stored, err := get().creds.List(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TENANT\tDOMAIN\tVENDOR\tAUTH\tUPDATED")
			for _, c := range stored {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					c.TenantID, c.Domain, c.Vendor, c.AuthMode, c.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "only list this tenant")
	return cmd
}

func newCallCommand(get func() *app) *cobra.Command {
	var tenant, vendor, input string

	cmd := &cobra.Command{
		Use:   "call <operation>",
		Short: "Run one contract operation and print the result as JSON",
		Long:  "Run one contract operation. The input is a JSON document read from --input, or from stdin when --input is '-'.\n\nOperations: " + strings.Join(operationNames(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, input)
			if err != nil {
				return err
			}
			result, err := runOperation(cmd.Context(), get().service, args[0],
				application.Target{TenantID: tenant, Vendor: vendor}, raw)
			if err != nil {
				if ce := describeError(err); ce != nil {
					_ = writeJSON(cmd.ErrOrStderr(), ce)
				}
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant to act for")
	cmd.Flags().StringVar(&vendor, "vendor", "", "vendor to use; defaults to the tenant's configured vendor for the domain")
	cmd.Flags().StringVar(&input, "input", "", "JSON input file, or '-' for stdin")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return raw, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAuditCommand(get func() *app) *cobra.Command {
	var tenant string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show a tenant's recent provider calls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := get().actions.List(cmd.Context(), tenant, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tOPERATION\tDOMAIN\tVENDOR\tSTATUS\tKIND\tATTEMPTS\tDURATION")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.StartedAt.Format(time.RFC3339), r.Operation, r.Domain, lo.CoalesceOrEmpty(r.Vendor, "-"),
					r.Status, lo.CoalesceOrEmpty(string(r.ErrorKind), "-"), r.Attempts, r.Duration)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant whose calls to show")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
