package database

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// PageChange is a page present in both runs whose body fingerprint or
// status changed.
type PageChange struct {
	URL           string
	OldHash       string
	NewHash       string
	OldStatusCode int
	NewStatusCode int
}

// RunDiff compares the pages of two runs.
type RunDiff struct {
	OldRunID string
	NewRunID string

	// Added are pages only the new run visited.
	Added []string

	// Removed are pages only the old run visited.
	Removed []string

	// Changed are pages whose content or status differs.
	Changed []PageChange

	// Unchanged counts pages that are identical in both runs.
	Unchanged int
}

// HasChanges reports whether the runs differ at all.
func (d *RunDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Changed) > 0
}

// DiffRuns compares the visited pages of oldID and newID. URL lists are
// sorted.
func (cdb *CrawlDB) DiffRuns(ctx context.Context, oldID, newID string) (*RunDiff, error) {
	oldPages, err := cdb.pageIndex(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newPages, err := cdb.pageIndex(ctx, newID)
	if err != nil {
		return nil, err
	}

	diff := &RunDiff{
		OldRunID: oldID,
		NewRunID: newID,
		Added:    make([]string, 0),
		Removed:  make([]string, 0),
		Changed:  make([]PageChange, 0),
	}
	for url, np := range newPages {
		op, ok := oldPages[url]
		switch {
		case !ok:
			diff.Added = append(diff.Added, url)
		case op.hash != np.hash || op.status != np.status:
			diff.Changed = append(diff.Changed, PageChange{
				URL:           url,
				OldHash:       op.hash,
				NewHash:       np.hash,
				OldStatusCode: op.status,
				NewStatusCode: np.status,
			})
		default:
			diff.Unchanged++
		}
	}
	for url := range oldPages {
		if _, ok := newPages[url]; !ok {
			diff.Removed = append(diff.Removed, url)
		}
	}

	slices.Sort(diff.Added)
	slices.Sort(diff.Removed)
	slices.SortFunc(diff.Changed, func(a, b PageChange) int {
		return strings.Compare(a.URL, b.URL)
	})
	return diff, nil
}

type pageFingerprint struct {
	hash   string
	status int
}

func (cdb *CrawlDB) pageIndex(ctx context.Context, runID string) (map[string]pageFingerprint, error) {
	var exists int
	if err := cdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := cdb.db.QueryContext(ctx, `SELECT url, raw_hash, status_code FROM pages WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	index := make(map[string]pageFingerprint)
	for rows.Next() {
		var url string
		var fp pageFingerprint
		var hash *string
		if err := rows.Scan(&url, &hash, &fp.status); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		if hash != nil {
			fp.hash = *hash
		}
		index[url] = fp
	}
	return index, rows.Err()
}
