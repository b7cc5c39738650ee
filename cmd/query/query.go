// Package query contains the command that queries the rows of an entity.
package query

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sheetql/sheetql/cmd"
	pkgquery "github.com/sheetql/sheetql/pkg/query"
	"github.com/sheetql/sheetql/pkg/record"
	"github.com/sheetql/sheetql/pkg/repository"
)

const (
	whereFlag    = "where"
	orWhereFlag  = "or-where"
	whereInFlag  = "where-in"
	selectFlag   = "select"
	orderByFlag  = "order-by"
	limitFlag    = "limit"
	offsetFlag   = "offset"
	withFlag     = "with"
	pageFlag     = "page"
	perPageFlag  = "per-page"
	countFlag    = "count"
	firstFlag    = "first"
	describeFlag = "describe"
)

type options struct {
	where    []string
	orWhere  []string
	whereIn  []string
	columns  []string
	orderBy  string
	limit    int
	offset   int
	with     []string
	page     int
	perPage  int
	count    bool
	first    bool
	describe bool
}

func NewQueryCommand() *cobra.Command {
	opts := &options{}

	command := &cobra.Command{
		Use:   "query ENTITY",
		Short: "Query the rows of an entity",
		Long: `Query the rows of an entity and print them as JSON.

Conditions are written column=value, or with one of the operators != > < >= <=, e.g. 'age>=30'.
The word operators contains, like, in and notin use the form column:operator:value, where like
accepts % wildcards and in/notin take a comma separated list.
Rows matching any --or-where condition are appended to the rows matching all --where conditions.`,
		Example: `  sheetql query users --where role=admin --or-where role=manager --with department,posts.comments
  sheetql query users --where 'age>=30' --order-by name:desc --limit 10
  sheetql query posts --where title:like:%go% --page 2 --per-page 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			return runQuery(command, args[0], opts)
		},
	}

	flags := command.Flags()
	cmd.AddConfigFlags(flags)

	flags.StringArrayVar(&opts.where, whereFlag, nil, "a condition all returned rows satisfy (repeatable)")
	flags.StringArrayVar(&opts.orWhere, orWhereFlag, nil, "a condition whose matching rows are added to the result (repeatable)")
	flags.StringArrayVar(&opts.whereIn, whereInFlag, nil, "a column=a,b,c membership condition (repeatable)")
	flags.StringSliceVar(&opts.columns, selectFlag, nil, "the columns to return (all if omitted)")
	flags.StringVar(&opts.orderBy, orderByFlag, "", "the column to sort by, optionally followed by :asc or :desc")
	flags.IntVar(&opts.limit, limitFlag, 0, "the maximum number of rows to return (0 for no limit)")
	flags.IntVar(&opts.offset, offsetFlag, 0, "the number of rows to skip")
	flags.StringArrayVar(&opts.with, withFlag, nil, "relations to eager-load, e.g. 'department,posts.comments' (repeatable)")
	flags.IntVar(&opts.page, pageFlag, 0, "return this page (1-based) of the result with pagination metadata")
	flags.IntVar(&opts.perPage, perPageFlag, pkgquery.DefaultPerPage, "the number of rows per page")
	flags.BoolVar(&opts.count, countFlag, false, "print the number of matching rows only")
	flags.BoolVar(&opts.first, firstFlag, false, "print the first matching row only")
	flags.BoolVar(&opts.describe, describeFlag, false, "print the relations declared on the entity")

	command.MarkFlagsMutuallyExclusive(countFlag, firstFlag, pageFlag, describeFlag)

	command.PreRun = cmd.BindConfigFlagsFunc(flags)

	return command
}

func runQuery(command *cobra.Command, entity string, opts *options) error {
	cfg, err := cmd.ReadConfig()
	if err != nil {
		return err
	}

	rt, err := cmd.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	repo, err := rt.Repository(entity)
	if err != nil {
		return err
	}

	return execute(command, repo, opts)
}

func execute(command *cobra.Command, repo *repository.Repository, opts *options) error {
	out := command.OutOrStdout()
	ctx := command.Context()

	if opts.describe {
		return writeJSON(out, describe(repo))
	}

	q, err := buildQuery(repo.Query(), opts)
	if err != nil {
		return err
	}

	switch {
	case opts.count:
		n, err := q.Count(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]int{"count": n})
	case opts.first:
		row, err := q.First(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, row)
	case opts.page > 0:
		page, err := q.Paginate(ctx, opts.perPage, opts.page)
		if err != nil {
			return err
		}
		return writeJSON(out, page)
	default:
		rows, err := q.Get(ctx)
		if err != nil {
			return err
		}
		if rows == nil {
			rows = []*record.Record{}
		}
		return writeJSON(out, rows)
	}
}

// buildQuery applies the query flags to q in pipeline order.
func buildQuery(q *repository.Query, opts *options) (*repository.Query, error) {
	for _, raw := range opts.where {
		c, err := ParseCondition(raw)
		if err != nil {
			return nil, err
		}
		q.WhereOp(c.Column, c.Operator, c.Value)
	}

	for _, raw := range opts.orWhere {
		c, err := ParseCondition(raw)
		if err != nil {
			return nil, err
		}
		q.OrWhereOp(c.Column, c.Operator, c.Value)
	}

	for _, raw := range opts.whereIn {
		column, values, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(column) == "" {
			return nil, fmt.Errorf("invalid --%s %q, expected column=a,b", whereInFlag, raw)
		}
		q.WhereIn(strings.TrimSpace(column), splitList(values))
	}

	if len(opts.columns) > 0 {
		q.Select(opts.columns...)
	}

	if opts.orderBy != "" {
		column, direction, _ := strings.Cut(opts.orderBy, ":")
		q.OrderBy(column, direction)
	}

	if opts.limit < 0 || opts.offset < 0 {
		return nil, fmt.Errorf("--%s and --%s must be non-negative", limitFlag, offsetFlag)
	}
	q.Limit(opts.limit).Offset(opts.offset)

	for _, dsl := range opts.with {
		specs, err := relationSpecs(dsl)
		if err != nil {
			return nil, err
		}
		q.With(specs)
	}

	return q, nil
}

type relationDescription struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Related    string `json:"related"`
	ForeignKey string `json:"foreign_key"`
	LocalKey   string `json:"local_key"`
}

func describe(repo *repository.Repository) map[string]any {
	rels := repo.DescribeRelations()
	described := make([]relationDescription, 0, len(rels))
	for _, rel := range rels {
		described = append(described, relationDescription{
			Name:       rel.Name,
			Kind:       string(rel.Kind),
			Related:    rel.Related,
			ForeignKey: rel.ForeignKey,
			LocalKey:   rel.LocalKey,
		})
	}

	entity := repo.Entity()
	return map[string]any{
		"entity":     entity.Name,
		"collection": entity.Collection,
		"relations":  described,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
