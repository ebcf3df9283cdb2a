package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/database"
	"github.com/nao1215/sitemapper/internal/export"
	"github.com/nao1215/sitemapper/internal/graph"
	"github.com/nao1215/sitemapper/internal/report"
	"github.com/nao1215/sitemapper/internal/urlscope"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect crawls stored in the history database",
		Long: `History gives access to previous crawls.

Every crawl is saved to a local SQLite database unless --no-history is
given. Runs can be listed, shown again as a report, compared with each
other and deleted.

Examples:
  # List the 20 most recent runs
  sitemapper history list

  # List runs of one site
  sitemapper history list https://example.com

  # Show a stored run as Markdown
  sitemapper history show --markdown 0190f5c2-...

  # Compare the two latest runs of a site
  sitemapper history diff --seed https://example.com

  # Rebuild the sitemap of a stored run
  sitemapper history sitemap -o old-sitemap.xml 0190f5c2-...`,
	}

	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDiffCmd())
	cmd.AddCommand(newHistoryDeleteCmd())
	cmd.AddCommand(newHistorySitemapCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [seed]",
		Short: "List stored runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistoryList,
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 lists all)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	cmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false, "Output in Markdown format")
	return cmd
}

func newHistoryDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [old-run-id new-run-id]",
		Short: "Compare the pages of two stored runs",
		Long: `Diff lists pages that were added, removed or changed between two runs.
A page is changed when its content hash or status code differs.

Without run IDs the two latest runs of --seed are compared.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 run IDs, received %d", len(args))
			}
			return nil
		},
		RunE: runHistoryDiff,
	}
	cmd.Flags().StringP("seed", "s", "", "Compare the two latest runs of this seed URL")
	cmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false, "Output in Markdown format")
	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>...",
		Short: "Delete stored runs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runHistoryDelete,
	}
}

func newHistorySitemapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemap <run-id>",
		Short: "Rebuild the sitemap of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistorySitemap,
	}
	cmd.Flags().StringP("output", "o", export.StdoutPath, "Sitemap output path ('-' for stdout)")
	return cmd
}

// openHistory opens the database named by --db-dir. The history commands
// never create a database.
func openHistory(cmd *cobra.Command) (*database.CrawlDB, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// normalizeSeed turns user input into the canonical form runs are stored
// under, so "example.com" finds runs of "http://example.com".
func normalizeSeed(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	canonical, err := urlscope.NewCanonicalizer().Canonicalize(raw)
	if err != nil {
		return raw
	}
	return canonical.String()
}

// listSeedRuns lists the runs of seed. A seed stored with a trailing
// slash is also found without it and the other way around.
func listSeedRuns(ctx context.Context, db *database.CrawlDB, seed string, limit int) ([]database.RunSummary, error) {
	if seed == "" {
		return db.ListRuns(ctx, "", limit)
	}
	alt := seed + "/"
	if strings.HasSuffix(seed, "/") {
		alt = strings.TrimSuffix(seed, "/")
	}
	runs, err := db.ListRuns(ctx, seed, limit)
	if err != nil || len(runs) > 0 {
		return runs, err
	}
	return db.ListRuns(ctx, alt, limit)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	var seed string
	if len(args) == 1 {
		seed = normalizeSeed(args[0])
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := listSeedRuns(cmd.Context(), db, seed, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No crawl runs found.")
		fmt.Fprintln(out, "\nUse 'sitemapper crawl <url>' to crawl a site.")
		return nil
	}
	writeRunTable(out, runs)
	return nil
}

func writeRunTable(w io.Writer, runs []database.RunSummary) {
	tbl := table.New("ID", "Seed", "Started", "Duration", "Visited", "Failed", "Stopped")
	tbl.WithWriter(w)
	for _, r := range runs {
		tbl.AddRow(
			r.ID,
			r.Seed,
			r.StartedAt.Local().Format(historyTimeLayout),
			r.Duration().Round(time.Millisecond),
			r.Visited,
			r.Failed,
			r.Stopped,
		)
	}
	tbl.Print()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var w report.Writer
	switch {
	case jsonOutput:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case markdownOutput:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(getVerboseFlag(cmd)))
	}
	_, err = w.Write(run)
	return err
}

func runHistoryDiff(cmd *cobra.Command, args []string) error {
	seed, err := cmd.Flags().GetString("seed")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	if len(args) == 0 && seed == "" {
		return errors.New("either two run IDs or --seed is required")
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	oldID, newID, err := diffTargets(ctx, db, args, normalizeSeed(seed))
	if err != nil {
		return err
	}

	diff, err := db.DiffRuns(ctx, oldID, newID)
	if err != nil {
		return fmt.Errorf("failed to compare runs: %w", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	case markdownOutput:
		return writeDiffMarkdown(out, diff)
	default:
		writeDiffText(out, diff)
		return nil
	}
}

// diffTargets resolves which runs to compare: the explicit IDs, or the
// two latest runs of seed.
func diffTargets(ctx context.Context, db *database.CrawlDB, args []string, seed string) (string, string, error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	runs, err := listSeedRuns(ctx, db, seed, 2)
	if err != nil {
		return "", "", fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) < 2 {
		return "", "", fmt.Errorf("at least 2 runs of %s are required for comparison (found %d)", seed, len(runs))
	}
	return runs[1].ID, runs[0].ID, nil
}

func writeDiffText(w io.Writer, diff *database.RunDiff) {
	fmt.Fprintf(w, "Run Comparison: %s -> %s\n", diff.OldRunID, diff.NewRunID)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	if !diff.HasChanges() {
		fmt.Fprintf(w, "\nNo changes (%d pages unchanged)\n", diff.Unchanged)
		return
	}
	if len(diff.Added) > 0 {
		fmt.Fprintf(w, "\nAdded (%d):\n", len(diff.Added))
		for _, u := range diff.Added {
			fmt.Fprintf(w, "  [+] %s\n", u)
		}
	}
	if len(diff.Removed) > 0 {
		fmt.Fprintf(w, "\nRemoved (%d):\n", len(diff.Removed))
		for _, u := range diff.Removed {
			fmt.Fprintf(w, "  [-] %s\n", u)
		}
	}
	if len(diff.Changed) > 0 {
		fmt.Fprintf(w, "\nChanged (%d):\n", len(diff.Changed))
		for _, c := range diff.Changed {
			fmt.Fprintf(w, "  [~] %s%s\n", c.URL, statusChange(c))
		}
	}
	fmt.Fprintf(w, "\nUnchanged: %d pages\n", diff.Unchanged)
}

func statusChange(c database.PageChange) string {
	if c.OldStatusCode == c.NewStatusCode {
		return ""
	}
	return fmt.Sprintf(" (status %d -> %d)", c.OldStatusCode, c.NewStatusCode)
}

func writeDiffMarkdown(w io.Writer, diff *database.RunDiff) error {
	md := markdown.NewMarkdown(w)
	md.H1("Run Comparison")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Old run", "New run", "Added", "Removed", "Changed", "Unchanged"},
		Rows: [][]string{{
			"`" + diff.OldRunID + "`",
			"`" + diff.NewRunID + "`",
			fmt.Sprint(len(diff.Added)),
			fmt.Sprint(len(diff.Removed)),
			fmt.Sprint(len(diff.Changed)),
			fmt.Sprint(diff.Unchanged),
		}},
	})
	md.PlainText("")

	if len(diff.Added) > 0 {
		md.H2(fmt.Sprintf("Added (%d)", len(diff.Added)))
		md.PlainText("")
		md.BulletList(diff.Added...)
		md.PlainText("")
	}
	if len(diff.Removed) > 0 {
		md.H2(fmt.Sprintf("Removed (%d)", len(diff.Removed)))
		md.PlainText("")
		md.BulletList(diff.Removed...)
		md.PlainText("")
	}
	if len(diff.Changed) > 0 {
		md.H2(fmt.Sprintf("Changed (%d)", len(diff.Changed)))
		md.PlainText("")
		rows := make([][]string, 0, len(diff.Changed))
		for _, c := range diff.Changed {
			rows = append(rows, []string{
				c.URL,
				fmt.Sprint(c.OldStatusCode),
				fmt.Sprint(c.NewStatusCode),
				shortHash(c.OldHash),
				shortHash(c.NewHash),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Old status", "New status", "Old hash", "New hash"},
			Rows:   rows,
		})
		md.PlainText("")
	}
	if !diff.HasChanges() {
		md.Tip("No pages were added, removed or changed.")
	}
	return md.Build()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, id := range args {
		if err := db.DeleteRun(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to delete run %s: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", id)
	}
	return nil
}

func runHistorySitemap(cmd *cobra.Command, args []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	g := graph.New(false)
	for _, u := range run.VisitedURLs() {
		g.RecordVisited(urlscope.CanonicalURL(u))
	}
	return export.WriteSitemap(output, g.SitemapDocument(), cmd.OutOrStdout())
}
