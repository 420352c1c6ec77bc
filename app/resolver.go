// Package app contains the ResolverService for resolving single
// definition files.
package app

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/courseops/mimeo/core/discover"
	"github.com/courseops/mimeo/domain/materials"
	"github.com/rs/zerolog"
)

// ResolverService resolves single definition files the way a full
// discovery walk would, for previewing interpolation and validation
// results without publishing anything.
type ResolverService struct {
	logger zerolog.Logger
}

// NewResolverService creates a new resolver service.
func NewResolverService(logger zerolog.Logger) *ResolverService {
	return &ResolverService{
		logger: logger.With().Str("service", "resolver").Logger(),
	}
}

// ResolveFile resolves one collection.yaml or publication.yaml and
// returns the document with every reference replaced, exactly as
// discovery would see it.
func (s *ResolverService) ResolveFile(file string, vars map[string]any) (map[string]any, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", file, err)
	}

	switch filepath.Base(abs) {
	case discover.CollectionFilename:
		doc, _, err := discover.ResolveCollectionFile(abs, vars)
		return doc, err
	case discover.PublicationFilename:
		return s.resolvePublication(abs, vars)
	default:
		return nil, fmt.Errorf("%s is neither %s nor %s",
			file, discover.CollectionFilename, discover.PublicationFilename)
	}
}

// resolvePublication finds the governing collection and, when it is
// ordered, replays the sibling publications that precede the file so
// ${previous.*} carries the same values as in a full walk.
func (s *ResolverService) resolvePublication(file string, vars map[string]any) (map[string]any, error) {
	dir := filepath.Dir(file)

	spec, collectionDir, err := findCollection(dir, vars)
	if err != nil {
		return nil, err
	}

	var previous map[string]any
	if spec.IsOrdered {
		previous, err = replayPredecessors(collectionDir, dir, spec, vars)
		if err != nil {
			return nil, err
		}
	}

	_, doc, err := discover.ReadPublicationFile(file, spec, vars, previous)
	return doc, err
}

// findCollection walks up from dir to the nearest collection.yaml.
// Collections cannot nest, so the first hit is the governing one; a
// file outside any collection gets the permissive spec, same as
// discovery.
func findCollection(dir string, vars map[string]any) (*materials.PublicationSpec, string, error) {
	for d := dir; ; {
		candidate := filepath.Join(d, discover.CollectionFilename)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			spec, err := discover.ReadCollectionFile(candidate, vars)
			if err != nil {
				return nil, "", err
			}
			return spec, d, nil
		}

		parent := filepath.Dir(d)
		if parent == d {
			return materials.Permissive(), "", nil
		}
		d = parent
	}
}

// replayPredecessors resolves every publication in the collection that
// sorts before target, threading each document into the next, and
// returns the last one. Discovery orders publications by directory
// path, so the replay sorts the same way.
func replayPredecessors(collectionDir, target string, spec *materials.PublicationSpec, vars map[string]any) (map[string]any, error) {
	var dirs []string
	err := filepath.WalkDir(collectionDir, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if !d.IsDir() || p == target {
			return nil
		}
		marker := filepath.Join(p, discover.PublicationFilename)
		if info, serr := os.Stat(marker); serr == nil && info.Mode().IsRegular() {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan collection %s: %w", collectionDir, err)
	}
	sort.Strings(dirs)

	var previous map[string]any
	for _, d := range dirs {
		if d > target {
			break
		}
		_, doc, err := discover.ReadPublicationFile(filepath.Join(d, discover.PublicationFilename), spec, vars, previous)
		if err != nil {
			return nil, err
		}
		previous = doc
	}
	return previous, nil
}
