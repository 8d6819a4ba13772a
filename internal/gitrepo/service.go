// Package gitrepo keeps the revision history of editable site documents in
// local git repositories, one repository per document name. Every save is a
// commit of content.json on the main branch.
package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile = "content.json"
	mainBranch  = "main"
)

var (
	ErrNoHistory       = errors.New("no revisions recorded")
	ErrUnknownRevision = errors.New("unknown revision")
)

// Revision describes one commit of a document.
type Revision struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"shortHash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	now     func() time.Time
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit records content as the newest revision of name, creating the
// repository on first use. Saving content equal to the current head does not
// create a commit; the head revision is returned with created=false.
func (s *Service) Commit(name string, content map[string]any, author, message string) (rev Revision, created bool, err error) {
	lock := s.documentLock(name)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(name)
	if err != nil {
		return Revision{}, false, err
	}

	if head, err := headCommit(repo); err == nil {
		current, err := readContentFromCommit(head)
		if err == nil && !HasChanges(current, content) {
			return toRevision(head), false, nil
		}
	} else if !errors.Is(err, ErrNoHistory) {
		return Revision{}, false, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return Revision{}, false, fmt.Errorf("marshal content: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, contentFile), append(payload, '\n'), 0o644); err != nil {
		return Revision{}, false, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return Revision{}, false, fmt.Errorf("git add content: %w", err)
	}

	if message == "" {
		message = "Update " + name
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.sitecms.dev", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit content: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), true, nil
}

// History lists revisions newest first. A document never committed has an
// empty history.
func (s *Service) History(name string, limit int) ([]Revision, error) {
	lock := s.documentLock(name)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(name))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := headCommit(repo)
	if errors.Is(err, ErrNoHistory) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the content recorded by a revision. hash may be
// abbreviated.
func (s *Service) ContentAt(name, hash string) (map[string]any, Revision, error) {
	lock := s.documentLock(name)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(name))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, Revision{}, ErrNoHistory
	}
	if err != nil {
		return nil, Revision{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return nil, Revision{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, Revision{}, fmt.Errorf("%w %s", ErrUnknownRevision, hash)
	}
	if err != nil {
		return nil, Revision{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return nil, Revision{}, err
	}
	return content, toRevision(commitObj), nil
}

func (s *Service) repoPath(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *Service) documentLock(name string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[name]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[name] = lock
	return lock
}

func (s *Service) openOrInit(name string) (*git.Repository, error) {
	path := s.repoPath(name)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return commitObj, nil
}

func readContentFromCommit(commitObj *object.Commit) (map[string]any, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read content bytes: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	content := map[string]any{}
	if err := decoder.Decode(&content); err != nil {
		return nil, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

// ChangedKeys lists the top-level keys whose values differ, sorted.
func ChangedKeys(from, to map[string]any) []string {
	a, b := normalize(from), normalize(to)
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	changed := make([]string, 0)
	for k := range keys {
		if !reflect.DeepEqual(a[k], b[k]) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func HasChanges(from, to map[string]any) bool {
	return !reflect.DeepEqual(normalize(from), normalize(to))
}

// normalize round-trips through JSON so that numbers and nested values
// compare the same regardless of how they were built.
func normalize(content map[string]any) map[string]any {
	out := map[string]any{}
	if len(content) == 0 {
		return out
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

func toRevision(commitObj *object.Commit) Revision {
	hash := commitObj.Hash.String()
	return Revision{
		Hash:      hash,
		ShortHash: hash[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w %s: %w", ErrUnknownRevision, hash, err)
	}
	return *resolved, nil
}
