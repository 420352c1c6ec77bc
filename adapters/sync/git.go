package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/courseops/mimeo/ports"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// DefaultRemoteName is the remote every git sync pushes to.
const DefaultRemoteName = "origin"

// GitOptions configure a git sync target.
type GitOptions struct {
	// URL of the remote repository. SSH URLs authenticate through the
	// ssh agent.
	URL string

	// Branch to push to, created on the remote if absent. Defaults to
	// "main".
	Branch string

	// Message used for each sync commit.
	Message string

	// Name and Email form the commit author.
	Name  string
	Email string
}

// Git mirrors the publish root onto one branch of a remote repository.
type Git struct {
	opts GitOptions
}

// NewGit creates a git sync target.
func NewGit(opts GitOptions) (*Git, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("git sync: url is required")
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.Message == "" {
		opts.Message = "publish materials"
	}
	if opts.Name == "" {
		opts.Name = "mimeo"
	}
	if opts.Email == "" {
		opts.Email = "mimeo@localhost"
	}
	return &Git{opts: opts}, nil
}

// Name identifies the target.
func (g *Git) Name() string { return "git" }

// Sync makes the remote branch look like dir: clone, switch branches,
// replace every file, commit, push. A clean worktree after the copy
// means the remote already matches and nothing is pushed.
func (g *Git) Sync(ctx context.Context, dir string) error {
	tmp, err := os.MkdirTemp("", "mimeo-git-sync-")
	if err != nil {
		return fmt.Errorf("git sync: %w", err)
	}
	defer os.RemoveAll(tmp)

	empty := false
	repo, err := gogit.PlainCloneContext(ctx, tmp, false, &gogit.CloneOptions{
		URL:        g.opts.URL,
		RemoteName: DefaultRemoteName,
	})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		empty = true
		repo, err = initEmptyClone(tmp, g.opts.URL)
	}
	if err != nil {
		return fmt.Errorf("git sync: clone %s: %w", g.opts.URL, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("git sync: %w", err)
	}

	if empty {
		// The first commit brings the branch into existence.
		head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(g.opts.Branch))
		if err := repo.Storer.SetReference(head); err != nil {
			return fmt.Errorf("git sync: %w", err)
		}
	} else if err := checkoutBranch(repo, wt, g.opts.Branch); err != nil {
		return fmt.Errorf("git sync: %w", err)
	}

	if err := clearWorktree(tmp); err != nil {
		return fmt.Errorf("git sync: clear worktree: %w", err)
	}
	if err := copyTree(dir, tmp); err != nil {
		return fmt.Errorf("git sync: copy %s: %w", dir, err)
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return fmt.Errorf("git sync: stage files: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("git sync: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	_, err = wt.Commit(g.opts.Message, &gogit.CommitOptions{
		Author: &object.Signature{Name: g.opts.Name, Email: g.opts.Email, When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("git sync: commit: %w", err)
	}

	refspec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", g.opts.Branch, g.opts.Branch))
	err = repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: DefaultRemoteName,
		RefSpecs:   []config.RefSpec{refspec},
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("git sync: push: %w", err)
	}
	return nil
}

// initEmptyClone stands in for a clone when the remote has no commits
// yet: a fresh repository wired to the same remote.
func initEmptyClone(dir, url string) (*gogit.Repository, error) {
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		return nil, err
	}
	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: DefaultRemoteName,
		URLs: []string{url},
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// checkoutBranch switches to branch, creating it when the clone does
// not have it. A new branch starts from the remote's copy when one
// exists, from the clone's HEAD otherwise.
func checkoutBranch(repo *gogit.Repository, wt *gogit.Worktree, branch string) error {
	ref := plumbing.NewBranchReferenceName(branch)
	if err := wt.Checkout(&gogit.CheckoutOptions{Branch: ref}); err == nil {
		return nil
	}

	opts := &gogit.CheckoutOptions{Branch: ref, Create: true}
	if remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(DefaultRemoteName, branch), true); err == nil {
		opts.Hash = remoteRef.Hash()
	}
	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("switch to branch %q: %w", branch, err)
	}
	return nil
}

// clearWorktree removes everything except the .git directory, so files
// deleted locally disappear from the remote too.
func clearWorktree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == gogit.GitDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var _ ports.SyncTarget = (*Git)(nil)
