// Filename: runner/input.go
package runner

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const javaExt = ".java"

// InputFile is one source file queued for analysis: the path findings will be
// reported under and a loader for its content. Loaders run on the analysis
// workers, so enumeration stays cheap even over large trees.
type InputFile struct {
	Path string
	Load func() ([]byte, error)
}

// Filter narrows which enumerated paths get analyzed. Include and Exclude
// hold path.Match patterns tried against the full slash-separated path and
// against its base name. An empty Include list admits everything; Exclude
// always wins.
type Filter struct {
	include []string
	exclude []string
}

// NewFilter validates the patterns up front so a typo fails the scan instead
// of silently matching nothing.
func NewFilter(include, exclude []string) (Filter, error) {
	for _, pat := range include {
		if _, err := path.Match(pat, "probe"); err != nil {
			return Filter{}, fmt.Errorf("invalid include pattern %q: %w", pat, err)
		}
	}
	for _, pat := range exclude {
		if _, err := path.Match(pat, "probe"); err != nil {
			return Filter{}, fmt.Errorf("invalid exclude pattern %q: %w", pat, err)
		}
	}
	return Filter{include: include, exclude: exclude}, nil
}

func (f Filter) keep(p string) bool {
	if matchAny(f.exclude, p) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	return matchAny(f.include, p)
}

func matchAny(patterns []string, p string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
		if ok, _ := path.Match(pat, path.Base(p)); ok {
			return true
		}
	}
	return false
}

// EnumerateFS walks the given roots and collects every Java file that passes
// the filter. A root may also name a single file directly. Paths are reported
// as walked, so they stay resolvable from the working directory for consumers
// that re-open the file, such as the annotate reporter.
func EnumerateFS(roots []string, filter Filter) ([]InputFile, error) {
	if len(roots) == 0 {
		roots = []string{"."}
	}
	seen := make(map[string]struct{})
	var files []InputFile

	add := func(p string) {
		reported := filepath.ToSlash(filepath.Clean(p))
		if _, dup := seen[reported]; dup || !filter.keep(reported) {
			return
		}
		seen[reported] = struct{}{}
		files = append(files, InputFile{
			Path: reported,
			Load: func() ([]byte, error) { return os.ReadFile(reported) },
		})
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("cannot stat scan root %q: %w", root, err)
		}
		if !info.IsDir() {
			if !strings.HasSuffix(root, javaExt) {
				return nil, fmt.Errorf("scan root %q is not a Java source file", root)
			}
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				// Dot directories hold VCS and editor state, never sources.
				if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(d.Name(), javaExt) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking scan root %q: %w", root, err)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ResolveRevision resolves a revision string against a repository and
// returns the full commit hash, for callers that need to report which commit
// a scan actually covered.
func ResolveRevision(repoPath, rev string) (string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository %q: %w", repoPath, err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("cannot resolve revision %q: %w", rev, err)
	}
	return hash.String(), nil
}

// EnumerateGit reads Java files from a committed tree instead of the
// worktree: the revision is resolved, its commit tree enumerated, and each
// file loads straight from the object store. The checkout on disk never
// matters, which is what makes scanning historical refs safe.
func EnumerateGit(repoPath, rev string, filter Filter) ([]InputFile, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %q: %w", repoPath, err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve revision %q: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("cannot read commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("cannot load tree for %s: %w", hash, err)
	}

	var files []InputFile
	err = tree.Files().ForEach(func(f *object.File) error {
		if !strings.HasSuffix(f.Name, javaExt) || !filter.keep(f.Name) {
			return nil
		}
		name := f.Name
		blob := f.Blob
		files = append(files, InputFile{
			Path: name,
			Load: func() ([]byte, error) {
				r, err := blob.Reader()
				if err != nil {
					return nil, fmt.Errorf("cannot open blob for %s: %w", name, err)
				}
				defer r.Close()
				return io.ReadAll(r)
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating tree of %s: %w", hash, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
