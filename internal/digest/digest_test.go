package digest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTree_Deterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules/a.yaml", "alert: A")
	writeFile(t, root, "rules/b.yaml", "alert: B")
	writeFile(t, root, "dashboards/d.json", "{}")

	d1, err := Tree(root, "rules", "dashboards")
	require.NoError(t, err)
	d2, err := Tree(root, "rules", "dashboards")
	require.NoError(t, err)

	assert.True(t, d1.Equal(d2))
}

func TestTree_ChangesWithContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules/a.yaml", "alert: A")

	before, err := Tree(root, "rules")
	require.NoError(t, err)

	writeFile(t, root, "rules/a.yaml", "alert: A2")
	after, err := Tree(root, "rules")
	require.NoError(t, err)

	assert.False(t, before.Equal(after))
}

func TestTree_ChangesWithFileSet(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules/a.yaml", "alert: A")

	before, err := Tree(root, "rules")
	require.NoError(t, err)

	writeFile(t, root, "rules/b.yaml", "alert: B")
	withB, err := Tree(root, "rules")
	require.NoError(t, err)
	assert.False(t, before.Equal(withB))

	require.NoError(t, os.Remove(filepath.Join(root, "rules", "b.yaml")))
	afterRemove, err := Tree(root, "rules")
	require.NoError(t, err)
	assert.True(t, before.Equal(afterRemove))
}

// Shuffling names around must not change the digest as long as each file keeps
// its own content; swapping contents between files must.
func TestTree_PathContentBinding(t *testing.T) {
	root1 := t.TempDir()
	writeFile(t, root1, "rules/a.yaml", "one")
	writeFile(t, root1, "rules/b.yaml", "two")

	root2 := t.TempDir()
	writeFile(t, root2, "rules/b.yaml", "two")
	writeFile(t, root2, "rules/a.yaml", "one")

	root3 := t.TempDir()
	writeFile(t, root3, "rules/a.yaml", "two")
	writeFile(t, root3, "rules/b.yaml", "one")

	d1, err := Tree(root1, "rules")
	require.NoError(t, err)
	d2, err := Tree(root2, "rules")
	require.NoError(t, err)
	d3, err := Tree(root3, "rules")
	require.NoError(t, err)

	assert.True(t, d1.Equal(d2), "creation order must not matter")
	assert.False(t, d1.Equal(d3), "swapped contents must change the digest")
}

func TestTree_MissingSubpath(t *testing.T) {
	root := t.TempDir()

	d, err := Tree(root, "does-not-exist")
	require.NoError(t, err)

	empty, err := Tree(root, "also-missing")
	require.NoError(t, err)
	assert.True(t, d.Equal(empty), "all absent subpaths digest as the empty set")
}

func TestTree_UnreadableFile(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("cannot test permission errors as root")
	}
	root := t.TempDir()
	writeFile(t, root, "rules/secret.yaml", "alert: S")
	require.NoError(t, os.Chmod(filepath.Join(root, "rules", "secret.yaml"), 0o000))

	_, err := Tree(root, "rules")
	require.Error(t, err)
	var readErr *ReadError
	assert.ErrorAs(t, err, &readErr)
}

func TestZeroDigestNeverEqual(t *testing.T) {
	var zero Digest
	assert.False(t, zero.Equal(zero))
	assert.False(t, zero.Equal(Digest("abc")))
}
