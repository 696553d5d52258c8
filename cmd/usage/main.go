// Command usage prints token ledger aggregates for reconciliation.
//
//	usage --driver sqlite --dsn file:ledger.db --group-by model --from 2024-05-01
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/agentconfig"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/ledger"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// Options are the command line flags.
type Options struct {
	Driver         string   `long:"driver" default:"sqlite" choice:"sqlite" choice:"postgres" description:"ledger database driver"`
	DSN            string   `long:"dsn" env:"LEDGER_DSN" required:"true" description:"ledger database DSN"`
	GroupBy        string   `short:"g" long:"group-by" default:"operation_type" description:"operation_type, model, agent, organization, conversation, hour or day"`
	From           string   `long:"from" description:"inclusive start, RFC 3339 or YYYY-MM-DD"`
	To             string   `long:"to" description:"exclusive end, RFC 3339 or YYYY-MM-DD"`
	Operations     []string `short:"o" long:"operation" description:"operation type filter (repeatable)"`
	Models         []string `short:"m" long:"model" description:"model filter (repeatable)"`
	Agents         []string `short:"a" long:"agent" description:"agent id filter (repeatable)"`
	Conversation   string   `long:"conversation" description:"conversation id filter"`
	Organization   string   `long:"organization" description:"organization filter, needs --agent-config-dir"`
	AgentConfigDir string   `long:"agent-config-dir" env:"AGENT_CONFIG_DIR" description:"agent YAML directory used to resolve organizations"`
	JSON           bool     `long:"json" description:"print JSON instead of a table"`
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}

	f, err := opts.filter()
	if err != nil {
		return err
	}
	groupBy, err := ledger.ParseGroupBy(opts.GroupBy)
	if err != nil {
		return err
	}

	store, err := ledger.OpenSQL(ctx, ledger.Dialect(opts.Driver), opts.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	var orgs ledger.OrgResolver
	if opts.AgentConfigDir != "" {
		src, err := agentconfig.OpenDir(opts.AgentConfigDir, nil)
		if err != nil {
			return err
		}
		orgs = src
	}

	resp, err := ledger.New(store, orgs).Summarize(ctx, f, groupBy)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return printTable(out, resp)
}

func (o *Options) filter() (ledger.Filter, error) {
	f := ledger.Filter{
		Models:         o.Models,
		AgentIDs:       o.Agents,
		ConversationID: o.Conversation,
		OrganizationID: o.Organization,
	}
	for _, op := range o.Operations {
		f.Operations = append(f.Operations, model.OperationType(op))
	}

	var err error
	if f.From, err = parseTime(o.From); err != nil {
		return f, fmt.Errorf("--from: %w", err)
	}
	if f.To, err = parseTime(o.To); err != nil {
		return f, fmt.Errorf("--to: %w", err)
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func printTable(out io.Writer, resp *model.UsageResponse) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	group := resp.GroupBy
	if group == "" {
		group = "group"
	}
	fmt.Fprintf(w, "%s\tcalls\tprompt\tcompletion\ttotal\t\n", strings.ToUpper(group))
	for _, b := range resp.Buckets {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t\n", b.Group, b.Count, b.PromptTokens, b.CompletionTokens, b.TotalTokens)
	}
	fmt.Fprintf(w, "TOTAL\t%d\t\t\t%d\t\n", resp.Count, resp.TotalTokens)
	return w.Flush()
}
