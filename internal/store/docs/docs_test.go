package docs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string, mod time.Time) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	if !mod.IsZero() {
		require.NoError(t, os.Chtimes(full, mod, mod))
	}
}

func newWorkspace(t *testing.T) (*Store, string) {
	root := t.TempDir()
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	writeFile(t, root, "MEMORY.md", "# Memory\nNVDA breakout\n", base.Add(-3*time.Hour))
	writeFile(t, root, "AGENTS.md", "agents", base.Add(-1*time.Hour))
	writeFile(t, root, "notes.txt", "NVDA but not markdown", base)
	writeFile(t, root, "memory/lessons.md", "one\nnvda two\nthree\nNVDA four\nfive NVDA\nsix nvda\n", base.Add(-2*time.Hour))
	writeFile(t, root, "memory/learning/ai/deep.md", "nested NVDA\n", base)
	writeFile(t, root, ".git/HEAD.md", "NVDA hidden", base)
	writeFile(t, root, "node_modules/pkg/README.md", "NVDA vendored", base)
	s := New(root)
	s.now = func() time.Time { return base }
	return s, root
}

func TestList(t *testing.T) {
	s, _ := newWorkspace(t)

	docs, err := s.List()
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "AGENTS.md", docs[0].Name)
	assert.Equal(t, CategorySystem, docs[0].Category)
	assert.Equal(t, "1 hour ago", docs[0].Age)
	assert.Equal(t, "memory/lessons.md", docs[1].Path)
	assert.Equal(t, CategoryDocs, docs[1].Category)
	assert.Equal(t, "MEMORY.md", docs[2].Name)
	assert.NotEmpty(t, docs[2].SizeText)
}

func TestList_EmptyWorkspace(t *testing.T) {
	docs, err := New(filepath.Join(t.TempDir(), "missing")).List()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRead(t *testing.T) {
	s, _ := newWorkspace(t)

	f, err := s.Read("memory/lessons.md")
	require.NoError(t, err)
	assert.Contains(t, f.Content, "nvda two")
	assert.Equal(t, CategoryDocs, f.Category)

	_, err = s.Read("memory/nope.md")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Read("memory")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Read("../outside.md")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.Read("memory/../../outside.md")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.Read("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRead_SymlinkEscape(t *testing.T) {
	s, root := newWorkspace(t)
	outside := filepath.Join(t.TempDir(), "secret.md")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link.md")))

	_, err := s.Read("link.md")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSearch(t *testing.T) {
	s, _ := newWorkspace(t)

	res, err := s.Search("nvda")
	require.NoError(t, err)
	assert.Equal(t, "nvda", res.Query)
	require.Equal(t, 3, res.Count)

	top := res.Results[0]
	assert.Equal(t, "memory/lessons.md", top.Path)
	require.Len(t, top.Matches, 3)
	assert.Equal(t, 2, top.Matches[0].Line)
	assert.Equal(t, "one\nnvda two\nthree", top.Matches[0].Context)

	for _, r := range res.Results {
		assert.False(t, strings.HasPrefix(r.Path, ".git"))
		assert.False(t, strings.HasPrefix(r.Path, "node_modules"))
		assert.True(t, strings.HasSuffix(r.Path, ".md"))
	}
}

func TestSearch_FirstAndLastLineContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "hit first\nmiddle\nhit last", time.Time{})

	res, err := New(root).Search("HIT")
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "hit first\nmiddle", res.Results[0].Matches[0].Context)
	assert.Equal(t, "middle\nhit last", res.Results[0].Matches[1].Context)
}

func TestSearch_LimitsFiles(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 25; i++ {
		writeFile(t, root, filepath.Join("memory", string(rune('a'+i))+".md"), "term", time.Time{})
	}
	res, err := New(root).Search("term")
	require.NoError(t, err)
	assert.Equal(t, 20, res.Count)
}

func TestSearch_RequiresQuery(t *testing.T) {
	_, err := New(t.TempDir()).Search("  ")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseTodo(t *testing.T) {
	items := ParseTodo([]byte("# Queue\r\n- [ ] 研究 TSM\r\n* [x] 寫週報\n  - [X] nested done\n- not a task\n- [] broken\n"))
	require.Len(t, items, 3)
	assert.Equal(t, TodoItem{Done: false, Text: "研究 TSM", Raw: "- [ ] 研究 TSM"}, items[0])
	assert.True(t, items[1].Done)
	assert.True(t, items[2].Done)
}

func TestTodo(t *testing.T) {
	s, root := newWorkspace(t)
	_, err := s.Todo()
	assert.ErrorIs(t, err, ErrNotFound)

	writeFile(t, root, "memory/todo_queue.md", "- [ ] a\n- [x] b\n- [ ] c\n", time.Time{})
	list, err := s.Todo()
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 2, list.Pending)
	assert.Equal(t, 1, list.Done)
}

func TestSaveNote(t *testing.T) {
	s, root := newWorkspace(t)

	name, err := s.SaveNote("worth keeping")
	require.NoError(t, err)
	assert.Equal(t, "selection-2026-10-17T09-00-00-000Z.md", name)

	data, err := os.ReadFile(filepath.Join(root, "memory", "notes", name))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Selection Note\n"))
	assert.Contains(t, string(data), "worth keeping")

	_, err = s.SaveNote(" ")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestQueueResearch(t *testing.T) {
	s, root := newWorkspace(t)

	n, err := s.QueueResearch("why did TSM gap")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.QueueResearch("ASML guidance")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var queue []ResearchItem
	data, err := os.ReadFile(filepath.Join(root, "memory", "state", "research_queue.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &queue))
	assert.Equal(t, "ASML guidance", queue[1].Text)
	assert.Equal(t, "2026-10-17T09:00:00Z", queue[1].Timestamp)

	_, err = s.QueueResearch("")
	assert.ErrorIs(t, err, ErrInvalid)
}
