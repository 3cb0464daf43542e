package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
)

// GoGitAdapter reads repositories with the pure-Go git implementation.
// It needs no git binary, which makes it the default for environments
// where installing one is not an option.
type GoGitAdapter struct {
	workDir string
	scanner *Scanner
	logger  *slog.Logger
}

// NewGoGitAdapter creates a GoGitAdapter that keeps clones under workDir.
func NewGoGitAdapter(workDir string, logger *slog.Logger) (*GoGitAdapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clone directory: %w", err)
	}
	return &GoGitAdapter{
		workDir: workDir,
		scanner: NewScanner(logger),
		logger:  logger,
	}, nil
}

// ValidateAccess lists remote refs into throwaway storage, without
// cloning. Rejected credentials and missing repositories report false.
func (g *GoGitAdapter) ValidateAccess(ctx context.Context, remoteURL string, cred Credential) (bool, error) {
	rem := gogit.NewRemote(memory.NewStorage(), &gitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteURL},
	})

	_, err := rem.ListContext(ctx, &gogit.ListOptions{Auth: httpAuth(cred)})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrRepositoryNotFound):
		return false, nil
	default:
		return false, fault.Wrap(fault.KindSourceUnavailable, "list remote refs", err)
	}
}

// ConnectRepository clones (or refreshes) the repository and reads what a
// bare clone can know: owner and name from the URL, the default branch,
// and the head commit time.
func (g *GoGitAdapter) ConnectRepository(ctx context.Context, remoteURL string, cred Credential) (repo.RemoteMetadata, error) {
	localPath, err := g.ensureClone(ctx, remoteURL, cred)
	if err != nil {
		return repo.RemoteMetadata{}, err
	}

	gitRepo, err := gogit.PlainOpen(localPath)
	if err != nil {
		return repo.RemoteMetadata{}, fmt.Errorf("open repository: %w", err)
	}

	def, err := g.defaultBranch(gitRepo)
	if err != nil {
		return repo.RemoteMetadata{}, err
	}

	owner, name := ownerNameFromURL(remoteURL)
	meta := repo.RemoteMetadata{Owner: owner, Name: name, DefaultBranch: def}
	if at, ok := g.headCommitTime(gitRepo, def); ok {
		meta.UpdatedAt = at
		meta.LastPushedAt = at
	}

	g.logger.Info("connected repository",
		slog.String("repository", owner+"/"+name),
		slog.String("default_branch", def),
	)

	return meta, nil
}

// ListBranches enumerates branches from the clone's refs. Remote-tracking
// refs win over stale local ones, and output is sorted by name.
func (g *GoGitAdapter) ListBranches(ctx context.Context, repository repo.Repository, cred Credential) ([]repo.Branch, error) {
	localPath, err := g.ensureClone(ctx, remoteOf(repository), cred)
	if err != nil {
		return nil, err
	}

	gitRepo, err := gogit.PlainOpen(localPath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	refs, err := gitRepo.References()
	if err != nil {
		return nil, fmt.Errorf("get references: %w", err)
	}
	defer refs.Close()

	local := make(map[string]string)
	tracking := make(map[string]string)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		switch {
		case ref.Name().IsBranch():
			local[ref.Name().Short()] = ref.Hash().String()
		case ref.Name().IsRemote():
			name := strings.TrimPrefix(ref.Name().Short(), "origin/")
			if name == "HEAD" || name == ref.Name().Short() {
				return nil
			}
			tracking[name] = ref.Hash().String()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}

	for name, sha := range local {
		if _, ok := tracking[name]; !ok {
			tracking[name] = sha
		}
	}

	names := make([]string, 0, len(tracking))
	for name := range tracking {
		names = append(names, name)
	}
	sort.Strings(names)

	def := repository.DefaultBranch()
	branches := make([]repo.Branch, 0, len(names))
	for _, name := range names {
		branch, err := repo.NewBranch(repository.ID(), name, name == def)
		if err != nil {
			continue
		}
		branches = append(branches, branch.WithLastCommit(tracking[name]))
	}
	return branches, nil
}

// ListCommits returns up to limit commits of a branch, newest first.
func (g *GoGitAdapter) ListCommits(ctx context.Context, repository repo.Repository, branch string, limit int, cred Credential) ([]repo.Commit, error) {
	if limit <= 0 {
		limit = 30
	}
	if limit > 100 {
		limit = 100
	}

	localPath, err := g.ensureClone(ctx, remoteOf(repository), cred)
	if err != nil {
		return nil, err
	}

	gitRepo, err := gogit.PlainOpen(localPath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	ref, err := g.findBranchRef(gitRepo, branchOrDefault(repository, branch))
	if err != nil {
		return nil, err
	}

	commitIter, err := gitRepo.Log(&gogit.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("get commit log: %w", err)
	}
	defer commitIter.Close()

	var commits []repo.Commit
	err = commitIter.ForEach(func(c *object.Commit) error {
		commit, cerr := repo.NewCommit(
			repository.ID(),
			c.Hash.String(),
			strings.TrimSpace(c.Message),
			commitAuthor(c.Author.Name, c.Author.Email),
			c.Author.When,
		)
		if cerr != nil {
			return nil
		}
		commits = append(commits, commit)
		if len(commits) == limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}

	return commits, nil
}

// AnalyzeStructure computes statistics by scanning the branch's worktree.
func (g *GoGitAdapter) AnalyzeStructure(ctx context.Context, repository repo.Repository, branch string, cred Credential) (repo.Statistics, error) {
	inventory, err := g.Inventory(ctx, repository, branch, cred)
	if err != nil {
		return repo.Statistics{}, err
	}
	return inventory.Statistics, nil
}

// Inventory checks out the branch head and scans the worktree.
func (g *GoGitAdapter) Inventory(ctx context.Context, repository repo.Repository, branch string, cred Credential) (Inventory, error) {
	localPath, err := g.ensureClone(ctx, remoteOf(repository), cred)
	if err != nil {
		return Inventory{}, err
	}

	gitRepo, err := gogit.PlainOpen(localPath)
	if err != nil {
		return Inventory{}, fmt.Errorf("open repository: %w", err)
	}

	if err := g.checkoutBranch(gitRepo, branchOrDefault(repository, branch)); err != nil {
		return Inventory{}, err
	}

	return g.scanner.Scan(ctx, localPath)
}

// ReadFile reads one file from the branch head commit without touching
// the worktree.
func (g *GoGitAdapter) ReadFile(ctx context.Context, repository repo.Repository, branch, path string, cred Credential) ([]byte, error) {
	localPath, err := g.ensureClone(ctx, remoteOf(repository), cred)
	if err != nil {
		return nil, err
	}

	gitRepo, err := gogit.PlainOpen(localPath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	ref, err := g.findBranchRef(gitRepo, branchOrDefault(repository, branch))
	if err != nil {
		return nil, err
	}

	commit, err := gitRepo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("get commit: %w", err)
	}

	file, err := commit.File(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindSourceNotFound, fmt.Sprintf("file %q not found", path), err)
	}
	if file.Size > MaxFileBytes {
		return nil, fault.Validationf("file %q is above the %d byte read limit", path, MaxFileBytes)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return []byte(content), nil
}

// ensureClone returns the local clone path, cloning on first use and
// fetching on subsequent ones. Fetch failures keep the cached clone
// usable. HTTP remotes clone shallow; local paths clone full because
// the file transport does not serve shallow fetches reliably.
func (g *GoGitAdapter) ensureClone(ctx context.Context, remoteURL string, cred Credential) (string, error) {
	localPath := ClonePathFromURI(g.workDir, remoteURL)
	if _, err := gogit.PlainOpen(localPath); err == nil {
		g.refreshClone(ctx, localPath, cred)
		return localPath, nil
	}

	opts := &gogit.CloneOptions{URL: remoteURL, Auth: httpAuth(cred)}
	if isHTTPRemote(remoteURL) {
		opts.Depth = shallowCloneDepth
	}

	g.logger.Info("cloning repository",
		slog.String("uri", remoteURL),
		slog.String("path", localPath),
	)

	if _, err := gogit.PlainCloneContext(ctx, localPath, false, opts); err != nil {
		_ = os.RemoveAll(localPath)
		return "", classifyGoGitError("clone repository", err)
	}
	return localPath, nil
}

func (g *GoGitAdapter) refreshClone(ctx context.Context, localPath string, cred Credential) {
	gitRepo, err := gogit.PlainOpen(localPath)
	if err != nil {
		return
	}

	err = gitRepo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: "origin",
		Force:      true,
		Auth:       httpAuth(cred),
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		g.logger.Debug("fetch failed, serving cached clone",
			slog.String("path", localPath),
			slog.String("error", err.Error()),
		)
	}
}

// checkoutBranch puts the worktree at the branch head. The checkout is
// detached at the resolved hash: local branches go stale after a fetch,
// and a read-only cache never needs one.
func (g *GoGitAdapter) checkoutBranch(gitRepo *gogit.Repository, branch string) error {
	ref, err := g.findBranchRef(gitRepo, branch)
	if err != nil {
		return err
	}

	worktree, err := gitRepo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if err := worktree.Checkout(&gogit.CheckoutOptions{Hash: ref.Hash(), Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branch, err)
	}
	return nil
}

// findBranchRef resolves a branch, preferring the remote-tracking ref:
// after a fetch it is ahead of any stale local branch.
func (g *GoGitAdapter) findBranchRef(gitRepo *gogit.Repository, branch string) (*plumbing.Reference, error) {
	ref, err := gitRepo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err == nil {
		return ref, nil
	}

	ref, err = gitRepo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err == nil {
		return ref, nil
	}

	return nil, fault.Newf(fault.KindSourceNotFound, "branch %q not found", branch)
}

// defaultBranch resolves the clone's default branch: origin/HEAD first,
// then well-known names, then the first local branch.
func (g *GoGitAdapter) defaultBranch(gitRepo *gogit.Repository) (string, error) {
	ref, err := gitRepo.Reference(plumbing.NewRemoteReferenceName("origin", "HEAD"), false)
	if err == nil && ref.Type() == plumbing.SymbolicReference {
		target := strings.TrimPrefix(ref.Target().Short(), "origin/")
		if target != "" && target != "HEAD" {
			return target, nil
		}
	}

	for _, candidate := range []string{"main", "master"} {
		if _, err := g.findBranchRef(gitRepo, candidate); err == nil {
			return candidate, nil
		}
	}

	branchIter, err := gitRepo.Branches()
	if err != nil {
		return "", fmt.Errorf("get branches: %w", err)
	}
	defer branchIter.Close()

	first, err := branchIter.Next()
	if err != nil {
		return "", fault.New(fault.KindSourceNotFound, "repository has no branches")
	}
	return first.Name().Short(), nil
}

func (g *GoGitAdapter) headCommitTime(gitRepo *gogit.Repository, branch string) (time.Time, bool) {
	ref, err := g.findBranchRef(gitRepo, branch)
	if err != nil {
		return time.Time{}, false
	}
	commit, err := gitRepo.CommitObject(ref.Hash())
	if err != nil {
		return time.Time{}, false
	}
	return commit.Committer.When.UTC(), true
}

// classifyGoGitError maps go-git transport errors onto the fault
// taxonomy.
func classifyGoGitError(op string, err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return fault.Wrap(fault.KindSourceAuth, op+": source host rejected credentials", err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return fault.Wrap(fault.KindSourceNotFound, op+": repository not found", err)
	default:
		return fault.Wrap(fault.KindSourceUnavailable, op, err)
	}
}

func httpAuth(cred Credential) transport.AuthMethod {
	if cred.Empty() {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: cred.Token}
}

func isHTTPRemote(remoteURL string) bool {
	return strings.HasPrefix(remoteURL, "http://") || strings.HasPrefix(remoteURL, "https://")
}

// Ensure GoGitAdapter implements the adapter contracts.
var (
	_ Adapter         = (*GoGitAdapter)(nil)
	_ InventorySource = (*GoGitAdapter)(nil)
)
