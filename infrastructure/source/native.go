package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	giteagit "code.gitea.io/gitea/modules/git"
	"code.gitea.io/gitea/modules/git/gitcmd"
	"code.gitea.io/gitea/modules/setting"

	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/repo"
)

// nativeLogFormat is the git log format for parsing commits. Fields are
// separated by \x00, records by \x01, so commit messages may span lines.
const nativeLogFormat = "--format=%x01%H%x00%B%x00%an%x00%ae%x00%aI"

var (
	nativeInitOnce sync.Once
	nativeInitErr  error
)

// initNativeGit initializes the git module once per process. Git config
// lives in a temporary home directory so host configuration never leaks
// into clones.
func initNativeGit() error {
	nativeInitOnce.Do(func() {
		home, err := os.MkdirTemp("", "codelore-git-home-*")
		if err != nil {
			nativeInitErr = fmt.Errorf("create git home directory: %w", err)
			return
		}
		setting.Git.HomePath = home
		nativeInitErr = giteagit.InitSimple()
	})
	return nativeInitErr
}

// NativeGitAdapter reads repositories through the git binary, keeping one
// shallow clone per repository under workDir. Clones persist between
// calls and are refreshed with fetch rather than recloned.
type NativeGitAdapter struct {
	workDir string
	scanner *Scanner
	logger  *slog.Logger
}

// NewNativeGitAdapter creates a NativeGitAdapter rooted at workDir. It
// fails when the git binary is not installed.
func NewNativeGitAdapter(workDir string, logger *slog.Logger) (*NativeGitAdapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := exec.LookPath("git"); err != nil {
		return nil, fault.New(fault.KindValidation, "git is not installed or not in PATH")
	}
	if err := initNativeGit(); err != nil {
		return nil, fmt.Errorf("init git: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clone directory: %w", err)
	}

	return &NativeGitAdapter{
		workDir: workDir,
		scanner: NewScanner(logger),
		logger:  logger,
	}, nil
}

// ValidateAccess lists remote heads without cloning. Rejected credentials
// and missing repositories report false; host failures are errors.
func (a *NativeGitAdapter) ValidateAccess(ctx context.Context, remoteURL string, cred Credential) (bool, error) {
	_, stderr, err := gitcmd.NewCommand("ls-remote", "--heads").
		AddDynamicArguments(authURL(remoteURL, cred)).
		RunStdString(ctx, &gitcmd.RunOpts{Dir: a.workDir})
	if err == nil {
		return true, nil
	}

	ferr := classifyGitError("validate access", stderr, err)
	if fault.Is(ferr, fault.KindSourceAuth) || fault.Is(ferr, fault.KindSourceNotFound) {
		return false, nil
	}
	return false, ferr
}

// ConnectRepository clones (or refreshes) the repository and reads what a
// bare clone can know: owner and name from the URL, the default branch,
// and the head commit time.
func (a *NativeGitAdapter) ConnectRepository(ctx context.Context, remoteURL string, cred Credential) (repo.RemoteMetadata, error) {
	localPath, err := a.ensureClone(ctx, remoteURL, cred)
	if err != nil {
		return repo.RemoteMetadata{}, err
	}

	def, err := a.defaultBranch(ctx, localPath)
	if err != nil {
		return repo.RemoteMetadata{}, err
	}

	owner, name := ownerNameFromURL(remoteURL)
	meta := repo.RemoteMetadata{Owner: owner, Name: name, DefaultBranch: def}
	if sha, err := a.ensureBranch(ctx, localPath, def); err == nil {
		if at, ok := a.commitTime(ctx, localPath, sha); ok {
			meta.UpdatedAt = at
			meta.LastPushedAt = at
		}
	}

	a.logger.Info("connected repository",
		slog.String("repository", owner+"/"+name),
		slog.String("default_branch", def),
	)

	return meta, nil
}

// ListBranches lists remote heads, falling back to remote-tracking refs
// from the last successful fetch when the host is unreachable.
func (a *NativeGitAdapter) ListBranches(ctx context.Context, repository repo.Repository, cred Credential) ([]repo.Branch, error) {
	localPath, err := a.ensureClone(ctx, remoteOf(repository), cred)
	if err != nil {
		return nil, err
	}

	def := repository.DefaultBranch()
	stdout, stderr, err := gitcmd.NewCommand("ls-remote", "--heads", "origin").
		RunStdString(ctx, &gitcmd.RunOpts{Dir: localPath})
	if err == nil {
		return parseHeadRefs(stdout, repository.ID(), def), nil
	}

	stdout, _, trackErr := gitcmd.NewCommand("branch", "-r", "--format=%(refname:short) %(objectname)").
		RunStdString(ctx, &gitcmd.RunOpts{Dir: localPath})
	if trackErr != nil {
		return nil, classifyGitError("list branches", stderr, err)
	}
	return parseTrackingBranches(stdout, repository.ID(), def), nil
}

// ListCommits returns up to limit commits of a branch, newest first.
func (a *NativeGitAdapter) ListCommits(ctx context.Context, repository repo.Repository, branch string, limit int, cred Credential) ([]repo.Commit, error) {
	if limit <= 0 {
		limit = 30
	}
	if limit > 100 {
		limit = 100
	}

	localPath, err := a.ensureClone(ctx, remoteOf(repository), cred)
	if err != nil {
		return nil, err
	}
	sha, err := a.ensureBranch(ctx, localPath, branchOrDefault(repository, branch))
	if err != nil {
		return nil, err
	}

	stdout, stderr, err := gitcmd.NewCommand("log", nativeLogFormat).
		AddOptionFormat("--max-count=%d", limit).
		AddDynamicArguments(sha).
		RunStdString(ctx, &gitcmd.RunOpts{Dir: localPath})
	if err != nil {
		return nil, classifyGitError("read commit log", stderr, err)
	}

	records := parseCommitLog(stdout)
	commits := make([]repo.Commit, 0, len(records))
	for _, r := range records {
		commit, err := repo.NewCommit(repository.ID(), r.sha, r.message, commitAuthor(r.authorName, r.authorEmail), r.authoredAt)
		if err != nil {
			continue
		}
		commits = append(commits, commit)
	}
	return commits, nil
}

// AnalyzeStructure computes statistics by scanning the branch's worktree.
func (a *NativeGitAdapter) AnalyzeStructure(ctx context.Context, repository repo.Repository, branch string, cred Credential) (repo.Statistics, error) {
	inventory, err := a.Inventory(ctx, repository, branch, cred)
	if err != nil {
		return repo.Statistics{}, err
	}
	return inventory.Statistics, nil
}

// Inventory checks out the branch head (detached) and scans the worktree.
func (a *NativeGitAdapter) Inventory(ctx context.Context, repository repo.Repository, branch string, cred Credential) (Inventory, error) {
	localPath, err := a.ensureClone(ctx, remoteOf(repository), cred)
	if err != nil {
		return Inventory{}, err
	}
	sha, err := a.ensureBranch(ctx, localPath, branchOrDefault(repository, branch))
	if err != nil {
		return Inventory{}, err
	}

	if _, stderr, err := gitcmd.NewCommand("checkout", "--force", "--detach").
		AddDynamicArguments(sha).
		RunStdString(ctx, &gitcmd.RunOpts{Dir: localPath}); err != nil {
		return Inventory{}, classifyGitError("checkout "+sha, stderr, err)
	}

	return a.scanner.Scan(ctx, localPath)
}

// ReadFile reads one file from the branch head commit without touching
// the worktree.
func (a *NativeGitAdapter) ReadFile(ctx context.Context, repository repo.Repository, branch, path string, cred Credential) ([]byte, error) {
	localPath, err := a.ensureClone(ctx, remoteOf(repository), cred)
	if err != nil {
		return nil, err
	}
	sha, err := a.ensureBranch(ctx, localPath, branchOrDefault(repository, branch))
	if err != nil {
		return nil, err
	}

	gitRepo, err := giteagit.OpenRepository(ctx, localPath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	defer func() { _ = gitRepo.Close() }()

	commit, err := gitRepo.GetCommit(sha)
	if err != nil {
		return nil, fault.Wrap(fault.KindSourceUnavailable, "resolve commit "+sha, err)
	}

	content, err := commit.GetFileContent(path, MaxFileBytes+1)
	if err != nil {
		return nil, fault.Wrap(fault.KindSourceNotFound, fmt.Sprintf("file %q not found", path), err)
	}
	if len(content) > MaxFileBytes {
		return nil, fault.Validationf("file %q is above the %d byte read limit", path, MaxFileBytes)
	}

	return []byte(content), nil
}

// ensureClone returns the local clone path, cloning on first use and
// fetching on subsequent ones. Fetch failures keep the cached clone
// usable.
func (a *NativeGitAdapter) ensureClone(ctx context.Context, remoteURL string, cred Credential) (string, error) {
	localPath := ClonePathFromURI(a.workDir, remoteURL)
	if _, err := os.Stat(filepath.Join(localPath, ".git")); err == nil {
		a.refreshClone(ctx, localPath, remoteURL, cred)
		return localPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", fmt.Errorf("create clone directory: %w", err)
	}

	a.logger.Info("cloning repository",
		slog.String("uri", remoteURL),
		slog.String("path", localPath),
	)

	err := giteagit.Clone(ctx, authURL(remoteURL, cred), localPath, giteagit.CloneRepoOptions{Depth: shallowCloneDepth})
	if err != nil {
		_ = os.RemoveAll(localPath)
		return "", classifyGitError("clone repository", err.Error(), err)
	}
	return localPath, nil
}

func (a *NativeGitAdapter) refreshClone(ctx context.Context, localPath, remoteURL string, cred Credential) {
	if !cred.Empty() {
		if _, _, err := gitcmd.NewCommand("remote", "set-url", "origin").
			AddDynamicArguments(authURL(remoteURL, cred)).
			RunStdString(ctx, &gitcmd.RunOpts{Dir: localPath}); err != nil {
			a.logger.Debug("update remote url failed", slog.String("error", err.Error()))
		}
	}

	if _, stderr, err := gitcmd.NewCommand("fetch", "--force", "origin").
		RunStdString(ctx, &gitcmd.RunOpts{Dir: localPath}); err != nil {
		a.logger.Debug("fetch failed, serving cached clone",
			slog.String("path", localPath),
			slog.String("stderr", strings.TrimSpace(stderr)),
		)
	}
}

// ensureBranch resolves a branch to its head SHA. Shallow clones carry
// only the default branch, so unknown branches are fetched on demand.
func (a *NativeGitAdapter) ensureBranch(ctx context.Context, localPath, branch string) (string, error) {
	if branch == "" {
		var err error
		branch, err = a.defaultBranch(ctx, localPath)
		if err != nil {
			return "", err
		}
	}

	if sha, ok := a.lookupBranchSHA(ctx, localPath, branch); ok {
		return sha, nil
	}

	_, stderr, err := gitcmd.NewCommand("fetch", "origin").
		AddOptionFormat("--depth=%d", shallowCloneDepth).
		AddDynamicArguments("+refs/heads/" + branch + ":refs/remotes/origin/" + branch).
		RunStdString(ctx, &gitcmd.RunOpts{Dir: localPath})
	if err != nil {
		return "", classifyGitError("fetch branch "+branch, stderr, err)
	}

	if sha, ok := a.lookupBranchSHA(ctx, localPath, branch); ok {
		return sha, nil
	}
	return "", fault.Newf(fault.KindSourceNotFound, "branch %q not found", branch)
}

// lookupBranchSHA prefers the remote-tracking ref: after a fetch it is
// ahead of any stale local branch.
func (a *NativeGitAdapter) lookupBranchSHA(ctx context.Context, localPath, branch string) (string, bool) {
	gitRepo, err := giteagit.OpenRepository(ctx, localPath)
	if err != nil {
		return "", false
	}
	defer func() { _ = gitRepo.Close() }()

	if sha, err := gitRepo.GetRefCommitID("refs/remotes/origin/" + branch); err == nil {
		return sha, true
	}
	if sha, err := gitRepo.GetBranchCommitID(branch); err == nil {
		return sha, true
	}
	return "", false
}

// defaultBranch resolves the clone's default branch: origin/HEAD first,
// then well-known names, then the first branch.
func (a *NativeGitAdapter) defaultBranch(ctx context.Context, localPath string) (string, error) {
	stdout, _, err := gitcmd.NewCommand("symbolic-ref", "refs/remotes/origin/HEAD").
		RunStdString(ctx, &gitcmd.RunOpts{Dir: localPath})
	if err == nil {
		if ref := strings.TrimPrefix(strings.TrimSpace(stdout), "refs/remotes/origin/"); ref != "" {
			return ref, nil
		}
	}

	gitRepo, openErr := giteagit.OpenRepository(ctx, localPath)
	if openErr != nil {
		return "", fmt.Errorf("open repository: %w", openErr)
	}
	defer func() { _ = gitRepo.Close() }()

	for _, candidate := range []string{"main", "master"} {
		if gitRepo.IsBranchExist(candidate) {
			return candidate, nil
		}
	}

	names, _, namesErr := gitRepo.GetBranchNames(0, 1)
	if namesErr != nil || len(names) == 0 {
		return "", fault.New(fault.KindSourceNotFound, "repository has no branches")
	}
	return names[0], nil
}

func (a *NativeGitAdapter) commitTime(ctx context.Context, localPath, sha string) (time.Time, bool) {
	gitRepo, err := giteagit.OpenRepository(ctx, localPath)
	if err != nil {
		return time.Time{}, false
	}
	defer func() { _ = gitRepo.Close() }()

	commit, err := gitRepo.GetCommit(sha)
	if err != nil {
		return time.Time{}, false
	}
	return commit.Committer.When.UTC(), true
}

// classifyGitError maps git stderr onto the fault taxonomy. Hosts answer
// private repositories with "not found" when unauthenticated, so the
// auth patterns are matched first.
func classifyGitError(op, stderr string, err error) error {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "authentication failed"),
		strings.Contains(msg, "could not read username"),
		strings.Contains(msg, "invalid username or password"),
		strings.Contains(msg, "403"):
		return fault.Wrap(fault.KindSourceAuth, op+": source host rejected credentials", err)
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "no such file or directory"):
		return fault.Wrap(fault.KindSourceNotFound, op+": repository not found", err)
	case strings.Contains(msg, "could not resolve host"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection timed out"),
		strings.Contains(msg, "unable to access"):
		return fault.Wrap(fault.KindSourceUnavailable, op+": source host unreachable", err)
	default:
		return fault.Wrap(fault.KindSourceUnavailable, op, err)
	}
}

// parseHeadRefs parses ls-remote --heads output: "SHA\trefs/heads/NAME".
func parseHeadRefs(stdout string, repositoryID int64, defaultBranch string) []repo.Branch {
	var branches []repo.Branch
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		name := strings.TrimPrefix(fields[1], "refs/heads/")
		if name == fields[1] {
			continue
		}
		branch, err := repo.NewBranch(repositoryID, name, name == defaultBranch)
		if err != nil {
			continue
		}
		branches = append(branches, branch.WithLastCommit(fields[0]))
	}
	return branches
}

// parseTrackingBranches parses "origin/NAME SHA" lines from
// branch -r --format="%(refname:short) %(objectname)".
func parseTrackingBranches(stdout string, repositoryID int64, defaultBranch string) []repo.Branch {
	var branches []repo.Branch
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
		if len(parts) != 2 || parts[0] == "origin/HEAD" {
			continue
		}
		name := strings.TrimPrefix(parts[0], "origin/")
		branch, err := repo.NewBranch(repositoryID, name, name == defaultBranch)
		if err != nil {
			continue
		}
		branches = append(branches, branch.WithLastCommit(strings.TrimSpace(parts[1])))
	}
	return branches
}

type commitRecord struct {
	sha         string
	message     string
	authorName  string
	authorEmail string
	authoredAt  time.Time
}

// parseCommitLog parses git log output in nativeLogFormat.
func parseCommitLog(stdout string) []commitRecord {
	stdout = strings.TrimSpace(stdout)
	if stdout == "" {
		return nil
	}

	var records []commitRecord
	for _, record := range strings.Split(stdout, "\x01") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}

		fields := strings.SplitN(record, "\x00", 5)
		if len(fields) < 5 {
			continue
		}

		authoredAt, _ := time.Parse(time.RFC3339, strings.TrimSpace(fields[4]))
		records = append(records, commitRecord{
			sha:         strings.TrimSpace(fields[0]),
			message:     strings.TrimSpace(fields[1]),
			authorName:  strings.TrimSpace(fields[2]),
			authorEmail: strings.TrimSpace(fields[3]),
			authoredAt:  authoredAt,
		})
	}
	return records
}

// Ensure NativeGitAdapter implements the adapter contracts.
var (
	_ Adapter         = (*NativeGitAdapter)(nil)
	_ InventorySource = (*NativeGitAdapter)(nil)
)
