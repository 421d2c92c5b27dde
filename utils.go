package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

// RepoInfo describes the git repository the session runs in, if any. It only
// feeds the environment block of the system prompt and the startup banner.
type RepoInfo struct {
	ProjectRoot string
	Branch      string
	IsRepo      bool
}

// GetRepoInfo inspects the working directory for a git repository.
func GetRepoInfo() RepoInfo {
	cwd, err := os.Getwd()
	if err != nil {
		return RepoInfo{}
	}

	root := findProjectRoot(cwd)
	repo, err := gogit.PlainOpen(root)
	if err != nil {
		return RepoInfo{ProjectRoot: cwd}
	}

	return RepoInfo{
		ProjectRoot: root,
		Branch:      readCurrentBranch(repo),
		IsRepo:      true,
	}
}

// findProjectRoot walks up from start looking for a .git entry.
func findProjectRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func readCurrentBranch(repo *gogit.Repository) string {
	if repo == nil {
		return ""
	}
	ref, err := repo.Head()
	if err != nil {
		return ""
	}
	if ref.Name().IsBranch() {
		return ref.Name().Short()
	}
	return ref.Hash().String()[:7]
}

// buildEnvBlock constructs a markdown summary of key paths for the system
// prompt.
func buildEnvBlock(repoInfo RepoInfo) string {
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "(unknown)"
	}

	home, _ := os.UserHomeDir()
	if home == "" {
		home = "(unknown)"
	}

	root := repoInfo.ProjectRoot
	if root == "" {
		root = "(unknown)"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf(`- **cwd:** %s
- **project root:** %s
- **home:** %s`, cwd, root, home))

	if repoInfo.Branch != "" {
		b.WriteString(fmt.Sprintf("\n- **branch:** %s", repoInfo.Branch))
	}

	return b.String()
}

// kodoVersion resolves the version printed by the version command.
func kodoVersion() string {
	if strings.TrimSpace(version) != "" {
		return strings.TrimSpace(version)
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return strings.TrimPrefix(v, "v")
		}
	}

	return "dev"
}
