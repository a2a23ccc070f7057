// Package docs serves the agents' markdown workspace: listing, reading,
// full-text search, the todo queue and the text-selection actions.
package docs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

const (
	CategorySystem = "System"
	CategoryDocs   = "Docs"

	maxMatchesPerFile = 3
	maxSearchFiles    = 20

	todoPath          = "memory/todo_queue.md"
	notesDir          = "memory/notes"
	researchQueuePath = "memory/state/research_queue.json"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrForbidden = errors.New("path escapes the workspace")
	ErrInvalid   = errors.New("invalid request")
)

var skipDirs = map[string]bool{"node_modules": true, "dist": true, "build": true}

// Store is rooted at the agents' workspace directory.
type Store struct {
	root string
	now  func() time.Time
	mu   sync.Mutex // serializes read-modify-write of queue files
}

func New(root string) *Store {
	return &Store{root: filepath.Clean(root), now: time.Now}
}

func (s *Store) Root() string { return s.root }

type Doc struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Category string    `json:"category"`
	Size     int64     `json:"size"`
	SizeText string    `json:"size_text"`
	Modified time.Time `json:"modified"`
	Age      string    `json:"age"`
}

// List returns the top-level markdown files as System docs and memory/*.md
// as Docs, newest first. Missing directories contribute nothing.
func (s *Store) List() ([]Doc, error) {
	docs := s.scan("", CategorySystem)
	docs = append(docs, s.scan("memory", CategoryDocs)...)
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Modified.After(docs[j].Modified)
	})
	return docs, nil
}

func (s *Store) scan(rel, category string) []Doc {
	entries, err := os.ReadDir(filepath.Join(s.root, rel))
	if err != nil {
		return nil
	}
	var docs []Doc
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		docs = append(docs, s.describe(filepath.ToSlash(filepath.Join(rel, e.Name())), category, info))
	}
	return docs
}

func (s *Store) describe(rel, category string, info fs.FileInfo) Doc {
	return Doc{
		Name:     info.Name(),
		Path:     rel,
		Category: category,
		Size:     info.Size(),
		SizeText: humanize.Bytes(uint64(info.Size())),
		Modified: info.ModTime(),
		Age:      humanize.RelTime(info.ModTime(), s.now(), "ago", "from now"),
	}
}

// resolve joins rel onto the root and rejects anything that lands outside it.
func (s *Store) resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", errors.Wrap(ErrInvalid, "path is required")
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	inside, err := filepath.Rel(s.root, full)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", ErrForbidden
	}
	if resolved, err := filepath.EvalSymlinks(full); err == nil {
		realRoot, rerr := filepath.EvalSymlinks(s.root)
		if rerr == nil {
			if r, err := filepath.Rel(realRoot, resolved); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
				return "", ErrForbidden
			}
		}
	}
	return full, nil
}

type File struct {
	Doc
	Content string `json:"content"`
}

// Read returns one file below the workspace root.
func (s *Store) Read(rel string) (File, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return File{}, err
	}
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return File{}, ErrNotFound
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return File{}, errors.Wrapf(err, "read %s", rel)
	}
	category := CategoryDocs
	if !strings.Contains(filepath.ToSlash(rel), "/") {
		category = CategorySystem
	}
	return File{Doc: s.describe(filepath.ToSlash(filepath.Clean(rel)), category, info), Content: string(content)}, nil
}

type Match struct {
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Context string `json:"context"`
}

type Result struct {
	Path    string  `json:"path"`
	Name    string  `json:"name"`
	Matches []Match `json:"matches"`
	total   int
}

type SearchResults struct {
	Query   string   `json:"query"`
	Count   int      `json:"count"`
	Results []Result `json:"results"`
}

// Search does a case-insensitive substring search over every markdown file
// in the workspace, skipping hidden, node_modules, dist and build
// directories. Files with more matches rank first; each result keeps at most
// three matches and at most twenty files are returned.
func (s *Store) Search(query string) (SearchResults, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResults{}, errors.Wrap(ErrInvalid, "query parameter 'q' is required")
	}
	needle := strings.ToLower(query)

	var results []Result
	_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != s.root {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".md") {
			return nil
		}
		matches, total := searchFile(path, needle)
		if total == 0 {
			return nil
		}
		rel, _ := filepath.Rel(s.root, path)
		results = append(results, Result{
			Path:    filepath.ToSlash(rel),
			Name:    name,
			Matches: matches,
			total:   total,
		})
		return nil
	})

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].total > results[j].total
	})
	if len(results) > maxSearchFiles {
		results = results[:maxSearchFiles]
	}
	if results == nil {
		results = []Result{}
	}
	return SearchResults{Query: query, Count: len(results), Results: results}, nil
}

func searchFile(path, needle string) ([]Match, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0
	}
	lines := strings.Split(string(data), "\n")
	var (
		matches []Match
		total   int
	)
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		total++
		if len(matches) >= maxMatchesPerFile {
			continue
		}
		lo, hi := max(0, i-1), min(len(lines)-1, i+1)
		matches = append(matches, Match{
			Line:    i + 1,
			Text:    line,
			Context: strings.Join(lines[lo:hi+1], "\n"),
		})
	}
	return matches, total
}

var todoLine = regexp.MustCompile(`^\s*[-*]\s*\[( |x|X)\]\s*(.+)$`)

type TodoItem struct {
	Done bool   `json:"done"`
	Text string `json:"text"`
	Raw  string `json:"raw"`
}

type TodoList struct {
	Path    string     `json:"path"`
	Items   []TodoItem `json:"items"`
	Total   int        `json:"total"`
	Pending int        `json:"pending"`
	Done    int        `json:"done"`
}

// ParseTodo extracts markdown checkbox items.
func ParseTodo(content []byte) []TodoItem {
	items := []TodoItem{}
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		m := todoLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		items = append(items, TodoItem{
			Done: strings.EqualFold(m[1], "x"),
			Text: strings.TrimSpace(m[2]),
			Raw:  line,
		})
	}
	return items
}

// Todo reads the agents' work queue from memory/todo_queue.md.
func (s *Store) Todo() (TodoList, error) {
	full := filepath.Join(s.root, filepath.FromSlash(todoPath))
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return TodoList{}, ErrNotFound
	}
	if err != nil {
		return TodoList{}, errors.Wrap(err, "read todo queue")
	}
	list := TodoList{Path: todoPath, Items: ParseTodo(data)}
	list.Total = len(list.Items)
	for _, it := range list.Items {
		if it.Done {
			list.Done++
		}
	}
	list.Pending = list.Total - list.Done
	return list, nil
}

// SaveNote writes a selection into memory/notes and returns the file name.
func (s *Store) SaveNote(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.Wrap(ErrInvalid, "text is required")
	}
	now := s.now().UTC()
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(now.Format("2006-01-02T15:04:05.000Z"))
	filename := "selection-" + stamp + ".md"

	dir := filepath.Join(s.root, filepath.FromSlash(notesDir))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "create notes dir")
	}
	body := "# Selection Note\n\nCreated: " + now.Format(time.RFC3339) + "\n\n---\n\n" + text + "\n"
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(body), 0644); err != nil {
		return "", errors.Wrap(err, "write note")
	}
	return filename, nil
}

type ResearchItem struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// QueueResearch appends text to the research queue and returns its length.
func (s *Store) QueueResearch(text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, errors.Wrap(ErrInvalid, "text is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	full := filepath.Join(s.root, filepath.FromSlash(researchQueuePath))
	var queue []ResearchItem
	if data, err := os.ReadFile(full); err == nil {
		// A corrupt queue is replaced rather than blocking new items.
		_ = json.Unmarshal(data, &queue)
	}
	queue = append(queue, ResearchItem{Text: text, Timestamp: s.now().UTC().Format(time.RFC3339)})

	out, err := json.MarshalIndent(queue, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return 0, errors.Wrap(err, "create research queue dir")
	}
	if err := os.WriteFile(full, out, 0644); err != nil {
		return 0, errors.Wrap(err, "write research queue")
	}
	return len(queue), nil
}
