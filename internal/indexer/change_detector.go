package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/mvp-joe/codemorph/internal/errs"
)

// ChangeSet contains the result of change detection.
type ChangeSet struct {
	Added     []string `json:"added"`     // on disk, not indexed
	Modified  []string `json:"modified"`  // indexed with a different checksum
	Deleted   []string `json:"deleted"`   // indexed, no longer on disk
	Unchanged []string `json:"unchanged"` // same checksum (mtime may have drifted)
}

// Empty reports whether nothing changed.
func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

type fileState struct {
	checksum string
	size     int64
	modTime  time.Time
}

// Changes compares the files on disk with the indexed records.
//
// Algorithm:
//  1. Discover files with the configured extensions and excludes plus filter
//  2. For each file:
//     a. Not indexed: Added
//     b. Same size and mtime as the record: Unchanged (skip hashing)
//     c. Otherwise hash the content: same checksum is Unchanged, else Modified
//  3. Indexed files not discovered: Deleted
func (idx *Index) Changes(ctx context.Context, filter Filter) (*ChangeSet, error) {
	if err := idx.checkOpen("changes"); err != nil {
		return nil, err
	}
	discovery, err := idx.discovery(filter)
	if err != nil {
		return nil, errs.Validation("changes", "", "", "exclude-pattern", err.Error())
	}
	files, err := discovery.DiscoverFiles(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.IO("changes", idx.root, fmt.Errorf("failed to discover files: %w", err))
	}

	known := make(map[string]fileState)
	idx.mu.RLock()
	for _, rec := range idx.records {
		known[rec.Path] = fileState{checksum: rec.Checksum, size: rec.Size, modTime: rec.ModTime}
	}
	idx.mu.RUnlock()

	changes := &ChangeSet{
		Added:     []string{},
		Modified:  []string{},
		Deleted:   []string{},
		Unchanged: []string{},
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state, indexed := known[rel]
		if !indexed {
			changes.Added = append(changes.Added, rel)
			continue
		}
		delete(known, rel) // mark as seen

		info, err := os.Stat(idx.AbsPath(rel))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				changes.Deleted = append(changes.Deleted, rel)
				continue
			}
			return nil, errs.IO("changes", rel, err)
		}

		// Mtime fast-path
		if info.Size() == state.size && info.ModTime().Equal(state.modTime) {
			changes.Unchanged = append(changes.Unchanged, rel)
			continue
		}

		hash, err := calculateHashForFile(idx.AbsPath(rel))
		if err != nil {
			return nil, errs.IO("changes", rel, fmt.Errorf("failed to calculate hash: %w", err))
		}
		if hash == state.checksum {
			changes.Unchanged = append(changes.Unchanged, rel)
		} else {
			changes.Modified = append(changes.Modified, rel)
		}
	}

	for rel := range known {
		changes.Deleted = append(changes.Deleted, rel)
	}
	sort.Strings(changes.Deleted)

	return changes, nil
}

// calculateHash returns the hex SHA-256 of content.
func calculateHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// calculateHashForFile calculates SHA-256 hash of a file.
func calculateHashForFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return calculateHash(data), nil
}
