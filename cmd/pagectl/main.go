package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"panel-runtime/internal/engine"
	"panel-runtime/internal/metadata"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pagectl",
		Short: "Check and exercise page definitions offline",
		Long: `pagectl works on page definition files (JSON or YAML) without a
running server or backend.

  pagectl validate pages/            # report every broken invariant
  pagectl compile -p orders.yaml -c '{"pagination":{"current":2}}'`,
		SilenceUsage: true,
	}
	root.AddCommand(newValidateCmd(), newCompileCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file-or-dir>...",
		Short: "Validate page definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandPageFiles(args)
			if err != nil {
				return err
			}
			bad := validateFiles(cmd.OutOrStdout(), files)
			if bad > 0 {
				return fmt.Errorf("%d of %d page files are invalid", bad, len(files))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d page files ok\n", len(files))
			return nil
		},
	}
}

func newCompileCmd() *cobra.Command {
	var pagePath, change, static string
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the fetch request a table change produces",
		Long: `compile runs a table change (pagination, filters, search and sorter,
as the grid reports them) through the filter compiler and prints the
request the page's read operation would receive.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := readPage(pagePath)
			if err != nil {
				return err
			}
			req, missing, err := compileChange(page, change, static)
			if err != nil {
				return err
			}
			out := map[string]any{"request": req}
			if len(missing) > 0 {
				out["missingFilters"] = missing
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&pagePath, "page", "p", "", "Page definition file")
	cmd.Flags().StringVarP(&change, "change", "c", "{}", "Table change as JSON")
	cmd.Flags().StringVarP(&static, "static", "s", "", "Static filters as JSON")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}

// expandPageFiles replaces directories with the page files directly inside them.
func expandPageFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".json", ".yaml", ".yml":
				if !e.IsDir() {
					files = append(files, filepath.Join(arg, e.Name()))
				}
			}
		}
	}
	return files, nil
}

// validateFiles prints one line per problem and returns how many files had any.
func validateFiles(w io.Writer, files []string) int {
	bad := 0
	for _, path := range files {
		data, err := metadata.ReadPageFile(path)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", path, err)
			bad++
			continue
		}
		var page metadata.PageDefinition
		if err := json.Unmarshal(data, &page); err != nil {
			fmt.Fprintf(w, "%s: invalid JSON: %v\n", path, err)
			bad++
			continue
		}
		issues := metadata.Validate(&page)
		for _, is := range issues {
			fmt.Fprintf(w, "%s: %s: %s\n", path, is.Path, is.Message)
		}
		if len(issues) > 0 {
			bad++
		}
	}
	return bad
}

func readPage(path string) (*metadata.PageDefinition, error) {
	data, err := metadata.ReadPageFile(path)
	if err != nil {
		return nil, err
	}
	page, err := metadata.ParsePage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return page, nil
}

func compileChange(page *metadata.PageDefinition, changeJSON, staticJSON string) (engine.FetchRequest, []string, error) {
	var change engine.TableChange
	if err := json.Unmarshal([]byte(changeJSON), &change); err != nil {
		return engine.FetchRequest{}, nil, fmt.Errorf("invalid --change: %w", err)
	}
	var static map[string]any
	if staticJSON != "" {
		if err := json.Unmarshal([]byte(staticJSON), &static); err != nil {
			return engine.FetchRequest{}, nil, fmt.Errorf("invalid --static: %w", err)
		}
	}
	if change.Pagination.PageSize <= 0 {
		change.Pagination.PageSize = page.Settings.PageSize
	}
	columns := page.DataColumns()
	missing := engine.MissingRequiredFilters(mergeFilters(change.RawFilters(), static), columns)
	return engine.OnTableChange(change, columns, static), missing, nil
}

func mergeFilters(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
