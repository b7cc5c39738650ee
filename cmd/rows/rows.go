// Package rows contains the commands that insert, update and delete the rows of an entity.
package rows

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"

	"github.com/sheetql/sheetql/cmd"
	"github.com/sheetql/sheetql/pkg/repository"
	"github.com/sheetql/sheetql/pkg/storage"
)

const (
	setFlag  = "set"
	dataFlag = "data"
)

type valueOptions struct {
	set  []string
	data string
}

func (o *valueOptions) register(flags *pflag.FlagSet) {
	flags.StringArrayVar(&o.set, setFlag, nil, "a column=value pair to write (repeatable)")
	flags.StringVar(&o.data, dataFlag, "", `a flat JSON object of the columns to write, e.g. '{"name":"Ann"}'`)
}

// values merges --data and --set. --set wins over --data for the same column.
func (o *valueOptions) values() (map[string]string, error) {
	out := map[string]string{}

	if o.data != "" {
		if !gjson.Valid(o.data) {
			return nil, fmt.Errorf("invalid --%s: not valid JSON", dataFlag)
		}
		parsed := gjson.Parse(o.data)
		if !parsed.IsObject() {
			return nil, fmt.Errorf("invalid --%s: expected a JSON object", dataFlag)
		}
		var err error
		parsed.ForEach(func(key, value gjson.Result) bool {
			if value.IsObject() || value.IsArray() {
				err = fmt.Errorf("invalid --%s: column %q must be a scalar", dataFlag, key.String())
				return false
			}
			out[key.String()] = value.String()
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	for _, pair := range o.set {
		column, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(column) == "" {
			return nil, fmt.Errorf("invalid --%s %q, expected column=value", setFlag, pair)
		}
		out[strings.TrimSpace(column)] = value
	}

	return out, nil
}

// NewInsertCommand returns the command creating a row.
func NewInsertCommand() *cobra.Command {
	opts := &valueOptions{}

	command := &cobra.Command{
		Use:   "insert ENTITY",
		Short: "Create a row of an entity",
		Long: `Create a row of an entity and print it as JSON.

A random id is generated unless one is given. Columns missing from the header of an existing
collection are ignored; the first row written to an empty collection defines its header.`,
		Example: `  sheetql insert users --set name=Ann --set role=admin
  sheetql insert users --data '{"id":"u9","name":"Ann"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			return withRepository(args[0], func(repo *repository.Repository) error {
				data, err := opts.values()
				if err != nil {
					return err
				}
				rec, err := repo.Create(command.Context(), data)
				if err != nil {
					return err
				}
				return writeJSON(command.OutOrStdout(), rec)
			})
		},
	}

	flags := command.Flags()
	cmd.AddConfigFlags(flags)
	opts.register(flags)
	command.PreRun = cmd.BindConfigFlagsFunc(flags)

	return command
}

// NewUpdateCommand returns the command merging values into a row.
func NewUpdateCommand() *cobra.Command {
	opts := &valueOptions{}

	command := &cobra.Command{
		Use:   "update ENTITY ID",
		Short: "Update a row of an entity",
		Long: `Update the row with the given id and print the merged row as JSON.

Given columns are replaced, the others are kept. The id cannot be changed.`,
		Example: `  sheetql update users u1 --set role=manager`,
		Args:    cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, args []string) error {
			return withRepository(args[0], func(repo *repository.Repository) error {
				data, err := opts.values()
				if err != nil {
					return err
				}
				rec, err := repo.Update(command.Context(), args[1], data)
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("%s %q: %w", args[0], args[1], storage.ErrNotFound)
				}
				return writeJSON(command.OutOrStdout(), rec)
			})
		},
	}

	flags := command.Flags()
	cmd.AddConfigFlags(flags)
	opts.register(flags)
	command.PreRun = cmd.BindConfigFlagsFunc(flags)

	return command
}

// NewDeleteCommand returns the command removing a row.
func NewDeleteCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "delete ENTITY ID",
		Short:   "Delete a row of an entity",
		Long:    "Delete the row with the given id. The collection is rewritten without it.",
		Example: `  sheetql delete users u1`,
		Args:    cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, args []string) error {
			return withRepository(args[0], func(repo *repository.Repository) error {
				deleted, err := repo.Delete(command.Context(), args[1])
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("%s %q: %w", args[0], args[1], storage.ErrNotFound)
				}
				return writeJSON(command.OutOrStdout(), map[string]any{"id": args[1], "deleted": true})
			})
		},
	}

	flags := command.Flags()
	cmd.AddConfigFlags(flags)
	command.PreRun = cmd.BindConfigFlagsFunc(flags)

	return command
}

func withRepository(entity string, fn func(*repository.Repository) error) error {
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
	return fn(repo)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
