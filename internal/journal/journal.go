// Package journal keeps one git repository per document recording every
// applied description together with the mapping it produced.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"schsync/internal/fault"
	"schsync/internal/schematicmap"
)

const (
	descriptionFile = "description.json"
	mappingFile     = "mapping.json"
	branch          = "main"
)

type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Journal struct {
	baseDir string
	author  string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Journal {
	return &Journal{
		baseDir: baseDir,
		author:  "schsync",
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits the description and mapping of one apply and returns the
// short commit hash.
func (j *Journal) Record(_ context.Context, documentID string, description []byte, mapping *schematicmap.Map) (string, error) {
	path, err := j.repoPath(documentID)
	if err != nil {
		return "", err
	}
	lock := j.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := openOrInit(path)
	if err != nil {
		return "", err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	var desc any
	if err := json.Unmarshal(description, &desc); err != nil {
		return "", fmt.Errorf("decode description: %w", err)
	}
	files := map[string]any{descriptionFile: desc, mappingFile: mapping}
	for name, v := range files {
		payload, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(path, name), append(payload, '\n'), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := worktree.Add(name); err != nil {
			return "", fmt.Errorf("git add %s: %w", name, err)
		}
	}

	message := fmt.Sprintf("Apply schematic description\n\nmapped=%d", mapping.Len())
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  j.author,
			Email: j.author + "@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit apply: %w", err)
	}
	return hash.String()[:7], nil
}

// History lists the most recent revisions first. limit <= 0 means all.
func (j *Journal) History(_ context.Context, documentID string, limit int) ([]Revision, error) {
	repo, unlock, err := j.open(documentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0, max(limit, 0))
	err = iter.ForEach(func(c *object.Commit) error {
		items = append(items, toRevision(c))
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

// MappingAt returns the mapping recorded at hash, or at the latest revision
// when hash is empty.
func (j *Journal) MappingAt(_ context.Context, documentID, hash string) (*schematicmap.Map, Revision, error) {
	raw, rev, err := j.fileAt(documentID, hash, mappingFile)
	if err != nil {
		return nil, Revision{}, err
	}
	m, err := schematicmap.Decode(raw)
	if err != nil {
		return nil, Revision{}, fmt.Errorf("decode journalled mapping: %w", err)
	}
	return m, rev, nil
}

// DescriptionAt returns the description recorded at hash, or at the latest
// revision when hash is empty.
func (j *Journal) DescriptionAt(_ context.Context, documentID, hash string) ([]byte, Revision, error) {
	return j.fileAt(documentID, hash, descriptionFile)
}

func (j *Journal) fileAt(documentID, hash, name string) ([]byte, Revision, error) {
	repo, unlock, err := j.open(documentID)
	if err != nil {
		return nil, Revision{}, err
	}
	defer unlock()

	var resolved plumbing.Hash
	if hash == "" {
		ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
		if err != nil {
			return nil, Revision{}, fmt.Errorf("resolve branch %s: %w", branch, err)
		}
		resolved = ref.Hash()
	} else if resolved, err = resolveHash(repo, hash); err != nil {
		return nil, Revision{}, fault.Wrap(fault.NotFound, err, "Revision not found: "+hash)
	}

	c, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, Revision{}, fault.Wrap(fault.NotFound, err, "Revision not found: "+hash)
	}
	file, err := c.File(name)
	if err != nil {
		return nil, Revision{}, fmt.Errorf("load %s from commit: %w", name, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, Revision{}, fmt.Errorf("read %s: %w", name, err)
	}
	return []byte(contents), toRevision(c), nil
}

func (j *Journal) open(documentID string) (*git.Repository, func(), error) {
	path, err := j.repoPath(documentID)
	if err != nil {
		return nil, nil, err
	}
	lock := j.documentLock(documentID)
	lock.Lock()
	repo, err := git.PlainOpen(path)
	if err != nil {
		lock.Unlock()
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil, fault.Newf(fault.NotFound, "No journal for document %s", documentID)
		}
		return nil, nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, lock.Unlock, nil
}

// repoPath escapes the document id into a single directory name.
func (j *Journal) repoPath(documentID string) (string, error) {
	name := url.PathEscape(documentID)
	if documentID == "" || name == "." || name == ".." {
		return "", fault.Newf(fault.InvalidParams, "invalid document id %q", documentID)
	}
	return filepath.Join(j.baseDir, name), nil
}

func (j *Journal) documentLock(documentID string) *sync.Mutex {
	j.lockMu.Lock()
	defer j.lockMu.Unlock()
	lock, ok := j.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	j.locks[documentID] = lock
	return lock
}

func openOrInit(path string) (*git.Repository, error) {
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
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branch, err)
	}
	return repo, nil
}

func toRevision(c *object.Commit) Revision {
	return Revision{
		Hash:      c.Hash.String()[:7],
		Message:   c.Message,
		Author:    c.Author.Name,
		CreatedAt: c.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
