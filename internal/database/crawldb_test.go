package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitemapper/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestReport(seed string, started time.Time, pages map[string]string) *model.CrawlReport {
	r := model.NewCrawlReport(seed)
	r.StartedAt = started
	r.FinishedAt = started.Add(2 * time.Second)
	r.GraphEnabled = true

	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	slices.Sort(urls)
	for i, u := range urls {
		r.Pages = append(r.Pages, model.PageRecord{
			URL:        u,
			Depth:      i,
			StatusCode: 200,
			Title:      "title " + u,
			Hash:       pages[u],
			FetchedAt:  started.Add(time.Duration(i) * time.Millisecond),
		})
	}
	r.Stats.Visited = len(r.Pages)
	return r
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("unexpected error %q", err)
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		ctx := context.Background()
		report := newTestReport("http://example.com/", time.Now(), map[string]string{"http://example.com/": "aa"})
		if err := db1.SaveRun(ctx, report); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		if _, err := db2.GetRun(ctx, report.RunID); err != nil {
			t.Errorf("run should persist: %v", err)
		}
	})
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists || !opts.EnableWAL {
		t.Errorf("DefaultOptions() = %+v", opts)
	}
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 4, 10, 0, 0, 123456789, time.UTC)
	report := newTestReport("http://example.com/", started, map[string]string{
		"http://example.com/":      "h1",
		"http://example.com/about": "h2",
	})
	report.Domain = "example.com"
	report.Pages[1].RequestedURL = "http://example.com/old-about"
	report.Edges = append(report.Edges,
		model.Edge{From: "http://example.com/", To: "http://example.com/about"},
		model.Edge{From: "http://example.com/about", To: "http://example.com/"},
	)
	report.Failures = append(report.Failures, model.Failure{
		URL: "http://example.com/missing", Error: "unexpected status 404", StatusCode: 404, Attempts: 1,
	})
	report.Stats.Failed = 1
	report.Stats.Edges = 2

	if err := db.SaveRun(ctx, report); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := db.GetRun(ctx, report.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Seed != report.Seed || got.Domain != "example.com" || !got.GraphEnabled {
		t.Errorf("run metadata = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Stats != report.Stats {
		t.Errorf("Stats = %+v, want %+v", got.Stats, report.Stats)
	}
	if !slices.Equal(got.VisitedURLs(), report.VisitedURLs()) {
		t.Errorf("pages = %v", got.VisitedURLs())
	}
	if got.Pages[1].RequestedURL != "http://example.com/old-about" || got.Pages[1].Hash != "h2" {
		t.Errorf("page = %+v", got.Pages[1])
	}
	if !slices.Equal(got.Edges, report.Edges) {
		t.Errorf("edges = %v", got.Edges)
	}
	if !slices.Equal(got.Failures, report.Failures) {
		t.Errorf("failures = %v", got.Failures)
	}

	t.Run("saving again replaces the run", func(t *testing.T) {
		report.Pages = report.Pages[:1]
		if err := db.SaveRun(ctx, report); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		got, err := db.GetRun(ctx, report.RunID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Pages) != 1 {
			t.Errorf("pages = %d, want 1", len(got.Pages))
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		if _, err := db.GetRun(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("err = %v, want ErrRunNotFound", err)
		}
	})

	t.Run("report without run id", func(t *testing.T) {
		if err := db.SaveRun(ctx, &model.CrawlReport{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	first := newTestReport("http://a.example/", base, map[string]string{"http://a.example/": "1"})
	second := newTestReport("http://a.example/", base.Add(time.Hour), map[string]string{"http://a.example/": "2"})
	other := newTestReport("http://b.example/", base.Add(30*time.Minute), nil)
	other.Stopped = true
	for _, r := range []*model.CrawlReport{first, second, other} {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	all, err := db.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	if want := []string{second.RunID, other.RunID, first.RunID}; !slices.Equal(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if !all[1].Stopped || all[0].Visited != 1 || all[0].Duration() != 2*time.Second {
		t.Errorf("summaries = %+v", all)
	}

	bySeed, err := db.ListRuns(ctx, "http://a.example/", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(bySeed) != 1 || bySeed[0].ID != second.RunID {
		t.Errorf("bySeed = %+v", bySeed)
	}

	latest, err := db.LatestRun(ctx, "http://b.example/")
	if err != nil || latest.ID != other.RunID {
		t.Errorf("LatestRun() = %+v, %v", latest, err)
	}
	if _, err := db.LatestRun(ctx, "http://c.example/"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v", err)
	}

	recent, err := db.HasRecentRun(ctx, "http://a.example/", time.Since(base)+time.Minute)
	if err != nil || !recent {
		t.Errorf("HasRecentRun() = %v, %v", recent, err)
	}
	recent, err = db.HasRecentRun(ctx, "http://a.example/", time.Minute)
	if err != nil || recent {
		t.Errorf("HasRecentRun() short window = %v, %v", recent, err)
	}

	if err := db.DeleteRun(ctx, first.RunID); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if err := db.DeleteRun(ctx, first.RunID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestDiffRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	oldRun := newTestReport("http://example.com/", base, map[string]string{
		"http://example.com/":     "same",
		"http://example.com/gone": "x",
		"http://example.com/edit": "v1",
	})
	newRun := newTestReport("http://example.com/", base.Add(time.Hour), map[string]string{
		"http://example.com/":     "same",
		"http://example.com/new":  "y",
		"http://example.com/edit": "v2",
	})
	for _, r := range []*model.CrawlReport{oldRun, newRun} {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	diff, err := db.DiffRuns(ctx, oldRun.RunID, newRun.RunID)
	if err != nil {
		t.Fatalf("DiffRuns() error = %v", err)
	}
	if !slices.Equal(diff.Added, []string{"http://example.com/new"}) {
		t.Errorf("Added = %v", diff.Added)
	}
	if !slices.Equal(diff.Removed, []string{"http://example.com/gone"}) {
		t.Errorf("Removed = %v", diff.Removed)
	}
	if len(diff.Changed) != 1 || diff.Changed[0].OldHash != "v1" || diff.Changed[0].NewHash != "v2" {
		t.Errorf("Changed = %+v", diff.Changed)
	}
	if diff.Unchanged != 1 || !diff.HasChanges() {
		t.Errorf("Unchanged = %d", diff.Unchanged)
	}

	same, err := db.DiffRuns(ctx, oldRun.RunID, oldRun.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if same.HasChanges() {
		t.Errorf("diff with itself = %+v", same)
	}

	if _, err := db.DiffRuns(ctx, oldRun.RunID, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []string{
		"2026-01-02T03:04:05.000000000Z",
		"2026-01-02 03:04:05",
		"2026-01-02T03:04:05Z",
		"2026-01-02T03:04:05",
	}
	for _, in := range tests {
		if got := parseTimestamp(in); !got.Equal(want) {
			t.Errorf("parseTimestamp(%q) = %v", in, got)
		}
	}
	if !parseTimestamp("garbage").IsZero() {
		t.Error("garbage should parse to zero time")
	}
	if got := parseTimestamp(formatTimestamp(want)); !got.Equal(want) {
		t.Errorf("round trip = %v", got)
	}
}
