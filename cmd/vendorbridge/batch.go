package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/vendorbridge/internal/application"
)

const defaultBatchConcurrency = 4

// batchFile lists calls to run concurrently:
//
//	concurrency: 8
//	calls:
//	  - tenant: acme
//	    operation: create_contact
//	    input:
//	      contact: {email: ada@example.com}
type batchFile struct {
	Concurrency int         `yaml:"concurrency"`
	Calls       []batchCall `yaml:"calls"`
}

type batchCall struct {
	Tenant    string    `yaml:"tenant"`
	Vendor    string    `yaml:"vendor"`
	Operation string    `yaml:"operation"`
	Input     yaml.Node `yaml:"input"`
}

type batchResult struct {
	Index     int        `json:"index"`
	Tenant    string     `json:"tenant"`
	Operation string     `json:"operation"`
	Result    any        `json:"result,omitempty"`
	Error     *callError `json:"error,omitempty"`
}

func parseBatch(r io.Reader) (*batchFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f batchFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode batch file: %w", err)
	}
	for i, c := range f.Calls {
		if c.Tenant == "" {
			return nil, fmt.Errorf("call %d: tenant is required", i)
		}
		if _, ok := operations[c.Operation]; !ok {
			return nil, fmt.Errorf("call %d: unknown operation %q", i, c.Operation)
		}
	}
	if f.Concurrency <= 0 {
		f.Concurrency = defaultBatchConcurrency
	}
	return &f, nil
}

// inputJSON converts a call's YAML input into the JSON the operation decodes.
func (c batchCall) inputJSON() ([]byte, error) {
	if c.Input.Kind == 0 {
		return nil, nil
	}
	var v any
	if err := c.Input.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return json.Marshal(v)
}

// runBatch runs every call with at most f.Concurrency in flight. A failed
// call is reported in its result and does not stop the others.
func runBatch(ctx context.Context, svc *application.IntegrationService, f *batchFile) []batchResult {
	results := make([]batchResult, len(f.Calls))

	var g errgroup.Group
	g.SetLimit(f.Concurrency)
	for i, c := range f.Calls {
		g.Go(func() error {
			res := batchResult{Index: i, Tenant: c.Tenant, Operation: c.Operation}
			raw, err := c.inputJSON()
			if err == nil {
				res.Result, err = runOperation(ctx, svc, c.Operation,
					application.Target{TenantID: c.Tenant, Vendor: c.Vendor}, raw)
			}
			if err != nil {
				res.Result = nil
				res.Error = describeError(err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func newBatchCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file.yaml>",
		Short: "Run many calls concurrently and print one JSON result per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open batch file: %w", err)
			}
			defer file.Close()

			f, err := parseBatch(file)
			if err != nil {
				return err
			}

			results := runBatch(cmd.Context(), get().service, f)

			enc := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, r := range results {
				if r.Error != nil {
					failed++
				}
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d calls failed", failed, len(results))
			}
			return nil
		},
	}
}
