package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// HealthOptions holds flags for the health command.
type HealthOptions struct {
	*RootOptions
	GraphOptions
}

// HealthResult is the health command output.
type HealthResult struct {
	Endpoint     string `json:"endpoint"`
	Triples      int    `json:"triples"`
	Device       string `json:"device,omitempty"`
	GraphURI     string `json:"graph_uri,omitempty"`
	GraphTriples *int   `json:"graph_triples,omitempty"`
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HealthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "health [device]",
		Short: "Find a responding SPARQL endpoint",
		Long: `Probe the configured SPARQL endpoints in order and report the first one
that answers, with the total number of triples it holds. With a device, also
report the number of triples in the device's named graph.

Example:
  fixity health
  fixity health floppy --endpoint http://localhost:9999/blazegraph/sparql`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(opts, args, cmd)
		},
	}
	opts.GraphOptions.register(cmd)

	return cmd
}

func runHealth(opts *HealthOptions, args []string, cmd *cobra.Command) error {
	sess, err := newSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := sess.signalContext(cmd)
	defer cancel()
	qctx, qcancel := context.WithTimeout(ctx, sess.cfg.Graph.QueryTimeout)
	defer qcancel()

	client := sess.graphClient(opts.Endpoints)
	health, err := client.Health(qctx)
	if err != nil {
		return sess.out.Fail("no SPARQL endpoint is reachable", err)
	}
	result := HealthResult{Endpoint: health.Endpoint, Triples: health.Triples}

	if len(args) == 1 {
		dev, err := sess.resolveDevice(args[0])
		if err != nil {
			return sess.out.Fail("failed to resolve device", err)
		}
		graphURI, err := opts.target(sess.cfg, dev)
		if err != nil {
			return sess.out.Fail("failed to resolve graph", err)
		}
		n, err := client.GraphTripleCount(qctx, graphURI)
		if err != nil {
			return sess.out.Fail("failed to count graph triples", err)
		}
		result.Device, result.GraphURI, result.GraphTriples = dev.Name, graphURI, &n
	}

	if sess.out.Format == "json" {
		return sess.out.Success(result)
	}
	return sess.out.Success(formatHealth(result))
}

func formatHealth(r HealthResult) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	p.Fprintf(&b, "Endpoint: %s (%d triples)", r.Endpoint, r.Triples)
	if r.GraphTriples != nil {
		p.Fprintf(&b, "\nGraph:    %s (%d triples)", r.GraphURI, *r.GraphTriples)
		if *r.GraphTriples == 0 {
			b.WriteString("\nWarning: the device graph is empty or absent")
		}
	}
	return b.String()
}
