// Package discover finds collection and publication files under an
// input tree and resolves them into a materials universe. Collection
// files contribute publication specs; publication files are resolved
// against the schema their owning collection's spec induces.
package discover

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/courseops/mimeo/domain/materials"
	"github.com/rs/zerolog"
)

const (
	// CollectionFilename declares a collection in the directory holding it.
	CollectionFilename = "collection.yaml"

	// PublicationFilename declares a publication in the directory holding it.
	PublicationFilename = "publication.yaml"

	// DefaultCollectionKey names the synthetic collection that adopts
	// publications found outside any declared collection.
	DefaultCollectionKey = "default"
)

// DiscoveryError reports a filesystem-topology violation, as opposed to
// malformed file contents.
type DiscoveryError struct {
	Dir    string
	Reason string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed at %s: %s", e.Dir, e.Reason)
}

// Options adjust a discovery walk. The zero value walks everything with
// no variables and no cache.
type Options struct {
	// SkipDirectories names directories pruned from the walk wherever
	// they appear.
	SkipDirectories []string

	// Vars backs ${vars.*} references in every file resolved during the
	// walk.
	Vars map[string]any

	// Cache, when set, reuses resolved publication documents across
	// walks for files whose inputs have not changed.
	Cache *Cache

	Logger zerolog.Logger
}

// Discover walks the tree under root and assembles the universe of
// collections, publications, and unbuilt artifacts it declares.
// Publications are resolved in sorted path order, so within an ordered
// collection each file sees its predecessor as ${previous.*}. The first
// malformed file aborts the walk.
func Discover(root string, opts Options) (*materials.Universe[materials.UnbuiltArtifact], error) {
	skip := make(map[string]bool, len(opts.SkipDirectories))
	for _, name := range opts.SkipDirectories {
		skip[name] = true
	}

	collectionDirs, publicationDirs, err := searchDefinitions(root, skip, opts.Logger)
	if err != nil {
		return nil, err
	}

	sort.Slice(publicationDirs, func(i, j int) bool {
		return publicationDirs[i].dir < publicationDirs[j].dir
	})

	universe := materials.NewUniverse[materials.UnbuiltArtifact]()

	for _, dir := range collectionDirs {
		spec, err := ReadCollectionFile(filepath.Join(dir, CollectionFilename), opts.Vars)
		if err != nil {
			return nil, err
		}
		key := relKey(root, dir)
		universe.Put(key, materials.NewCollection[materials.UnbuiltArtifact](spec))
		opts.Logger.Debug().Str("collection", key).Msg("collection discovered")
	}
	universe.Put(DefaultCollectionKey, materials.NewCollection[materials.UnbuiltArtifact](materials.Permissive()))

	// Last resolved document per collection, the ${previous.*} source.
	previousDocs := map[string]map[string]any{}

	for _, found := range publicationDirs {
		collectionKey := DefaultCollectionKey
		publicationKey := relKey(root, found.dir)
		if found.collectionDir != "" {
			collectionKey = relKey(root, found.collectionDir)
			publicationKey = relKey(found.collectionDir, found.dir)
		}

		collection, _ := universe.Get(collectionKey)

		var previous map[string]any
		if collection.Spec.IsOrdered {
			previous = previousDocs[collectionKey]
		}

		path := filepath.Join(found.dir, PublicationFilename)
		pub, doc, err := readPublication(path, collection.Spec, opts, previous)
		if err != nil {
			return nil, err
		}

		collection.Put(publicationKey, pub)
		previousDocs[collectionKey] = doc
		opts.Logger.Debug().
			Str("collection", collectionKey).
			Str("publication", publicationKey).
			Int("artifacts", pub.Len()).
			Msg("publication discovered")
	}

	return universe, nil
}

type foundPublication struct {
	dir           string
	collectionDir string
}

// searchDefinitions walks breadth-first from root, children in sorted
// order, recording collection directories and publication directories
// with their owning collection.
func searchDefinitions(root string, skip map[string]bool, logger zerolog.Logger) ([]string, []foundPublication, error) {
	type frame struct {
		dir           string
		collectionDir string
	}

	queue := []frame{{dir: root}}
	var collections []string
	var publications []foundPublication

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		if fileExists(filepath.Join(f.dir, CollectionFilename)) {
			if f.collectionDir != "" {
				return nil, nil, &DiscoveryError{
					Dir:    f.dir,
					Reason: fmt.Sprintf("collection nested inside collection %s", f.collectionDir),
				}
			}
			collections = append(collections, f.dir)
			f.collectionDir = f.dir
		}

		if fileExists(filepath.Join(f.dir, PublicationFilename)) {
			publications = append(publications, foundPublication{dir: f.dir, collectionDir: f.collectionDir})
		}

		entries, err := os.ReadDir(f.dir)
		if err != nil {
			return nil, nil, fmt.Errorf("read dir %s: %w", f.dir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if skip[entry.Name()] {
				logger.Debug().Str("dir", filepath.Join(f.dir, entry.Name())).Msg("skipping directory")
				continue
			}
			queue = append(queue, frame{dir: filepath.Join(f.dir, entry.Name()), collectionDir: f.collectionDir})
		}
	}

	return collections, publications, nil
}

func readPublication(path string, spec *materials.PublicationSpec, opts Options, previous map[string]any) (*materials.Publication[materials.UnbuiltArtifact], map[string]any, error) {
	if opts.Cache == nil {
		return ReadPublicationFile(path, spec, opts.Vars, previous)
	}
	return opts.Cache.readPublication(path, spec, opts.Vars, previous)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// relKey keys a directory by its slash-separated path relative to base.
func relKey(base, dir string) string {
	rel, err := filepath.Rel(base, dir)
	if err != nil {
		return filepath.ToSlash(dir)
	}
	return filepath.ToSlash(rel)
}
