package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProjectRoot(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, ".git"), 0o755))
	nested := filepath.Join(tmp, "pkg", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, tmp, findProjectRoot(nested))
}

func TestFindProjectRootNoRepo(t *testing.T) {
	tmp := t.TempDir()
	// With no .git anywhere above, the starting directory is returned.
	assert.Equal(t, tmp, findProjectRoot(tmp))
}

func TestBuildEnvBlock(t *testing.T) {
	block := buildEnvBlock(RepoInfo{ProjectRoot: "/srv/app", Branch: "main", IsRepo: true})
	assert.Contains(t, block, "cwd:")
	assert.Contains(t, block, "/srv/app")
	assert.Contains(t, block, "branch:** main")

	noRepo := buildEnvBlock(RepoInfo{})
	assert.NotContains(t, noRepo, "branch:")
}

func TestKodoVersion(t *testing.T) {
	assert.NotEmpty(t, kodoVersion())
}
