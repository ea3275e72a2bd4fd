// Package filesystem persists expectations as YAML files, one directory per
// project, and serves reads from an in-memory snapshot.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sophialabs/mockexpect/internal/domain/expectation"
	"github.com/sophialabs/mockexpect/internal/infrastructure/dto"
	"github.com/sophialabs/mockexpect/internal/infrastructure/ports"
)

var _ expectation.Store = (*Store)(nil)

// tempPrefix marks in-flight writes so the watcher can ignore them.
const tempPrefix = ".mockexpect-"

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// record is a stored expectation plus where it came from. index is -1 for a
// file holding a single expectation, otherwise the position in a sequence file.
type record struct {
	exp   *expectation.Expectation
	file  string
	index int
}

// Store keeps expectations under rootDir/<project>/*.yaml. A file holds one
// expectation or a sequence of them, and may use !include. Directories whose
// name starts with "_" hold include fragments and are not loaded.
// Expectations created through the API get their own <id>.yaml file.
//
// Reads never touch the disk; Reload rebuilds the snapshot.
type Store struct {
	rootDir  string
	clock    ports.Clock
	logger   ports.Logger
	includes *includeResolver

	// writeMu serialises Reload with Create, Update and Delete so a reload
	// that read the disk before a write cannot drop it from the snapshot.
	writeMu  sync.Mutex
	mu       sync.RWMutex
	projects map[string]map[string]*record
}

// NewStore creates a store rooted at rootDir and performs the initial load.
func NewStore(rootDir string, clock ports.Clock, logger ports.Logger) (*Store, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	s := &Store{
		rootDir:  absRoot,
		clock:    clock,
		logger:   logger,
		includes: &includeResolver{rootDir: absRoot},
		projects: make(map[string]map[string]*record),
	}
	if err := s.Reload(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// RootDir returns the absolute root directory.
func (s *Store) RootDir() string { return s.rootDir }

// Reload re-reads every project directory and swaps the snapshot. On error
// the previous snapshot stays in place.
func (s *Store) Reload(_ context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	projects := make(map[string]map[string]*record)

	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return fmt.Errorf("failed to read root directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || !projectIDPattern.MatchString(entry.Name()) {
			continue
		}
		project := entry.Name()
		records, err := s.loadProject(project)
		if err != nil {
			return fmt.Errorf("project %s: %w", project, err)
		}
		projects[project] = records
	}

	s.mu.Lock()
	s.projects = projects
	s.mu.Unlock()

	total := 0
	for _, p := range projects {
		total += len(p)
	}
	s.logger.Debug("expectations loaded", "projects", len(projects), "expectations", total)
	return nil
}

func (s *Store) loadProject(project string) (map[string]*record, error) {
	records := make(map[string]*record)
	dir := filepath.Join(s.rootDir, project)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isYAMLFile(path) || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		loaded, err := s.loadFile(project, path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		for _, rec := range loaded {
			if prev, dup := records[rec.exp.ID]; dup {
				return fmt.Errorf("duplicate expectation id %q in %s and %s", rec.exp.ID, prev.file, rec.file)
			}
			records[rec.exp.ID] = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) loadFile(project, path string) ([]*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	if err := s.includes.resolve(&doc, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to resolve includes: %w", err)
	}

	content := doc.Content[0]
	if content.Kind != yaml.SequenceNode {
		rec, err := s.decode(project, path, -1, content, info.ModTime())
		if err != nil {
			return nil, err
		}
		return []*record{rec}, nil
	}

	records := make([]*record, 0, len(content.Content))
	for i, item := range content.Content {
		rec, err := s.decode(project, path, i, item, info.ModTime())
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// decode turns one YAML node into a record. Hand-written entries may omit id
// and create_time: the id is derived from the file location so it survives
// reloads, entries of one file keep their written order, and unnamed
// matchers and actions are numbered.
func (s *Store) decode(project, path string, index int, node *yaml.Node, modTime time.Time) (*record, error) {
	var d dto.Expectation
	if err := node.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode expectation: %w", err)
	}
	e := d.ToDomain(project)
	if e.ID == "" {
		rel, _ := filepath.Rel(s.rootDir, path)
		e.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", filepath.ToSlash(rel), index))).String()
	}
	if e.CreateTime.IsZero() {
		e.CreateTime = modTime.UTC().Add(time.Duration(index+1) * time.Nanosecond)
	}
	for i := range e.Matchers {
		if e.Matchers[i].ID == "" {
			e.Matchers[i].ID = fmt.Sprintf("m%d", i)
		}
	}
	for i := range e.Actions {
		if e.Actions[i].ID == "" {
			e.Actions[i].ID = fmt.Sprintf("a%d", i)
		}
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("expectation %s: %w", e.ID, err)
	}
	return &record{exp: e, file: path, index: index}, nil
}

func (s *Store) ListActive(_ context.Context, projectID string) ([]*expectation.Expectation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*expectation.Expectation, 0, len(s.projects[projectID]))
	for _, rec := range s.projects[projectID] {
		all = append(all, rec.exp)
	}
	return expectation.SortActive(all), nil
}

func (s *Store) List(_ context.Context, projectID string) ([]*expectation.Expectation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*expectation.Expectation, 0, len(s.projects[projectID]))
	for _, rec := range s.projects[projectID] {
		all = append(all, rec.exp.Clone())
	}
	expectation.Sort(all)
	return all, nil
}

func (s *Store) Get(_ context.Context, projectID, id string) (*expectation.Expectation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.projects[projectID][id]
	if !ok {
		return nil, expectation.ErrNotFound
	}
	return rec.exp.Clone(), nil
}

func (s *Store) Create(_ context.Context, e *expectation.Expectation) (*expectation.Expectation, error) {
	if !projectIDPattern.MatchString(e.ProjectID) {
		return nil, fmt.Errorf("%w: invalid project id %q", expectation.ErrInvalid, e.ProjectID)
	}
	out := e.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	} else if !projectIDPattern.MatchString(out.ID) {
		return nil, fmt.Errorf("%w: invalid expectation id %q", expectation.ErrInvalid, out.ID)
	}
	out.CreateTime = s.clock.Now().UTC()
	assignIDs(out)
	if err := out.Validate(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[out.ProjectID][out.ID]; exists {
		return nil, fmt.Errorf("%w: %s", expectation.ErrConflict, out.ID)
	}

	dir := filepath.Join(s.rootDir, out.ProjectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}
	file := filepath.Join(dir, out.ID+".yaml")
	if _, err := os.Stat(file); err == nil {
		return nil, fmt.Errorf("%w: file %s exists", expectation.ErrConflict, file)
	}
	if err := writeSingle(file, out); err != nil {
		return nil, err
	}

	if s.projects[out.ProjectID] == nil {
		s.projects[out.ProjectID] = make(map[string]*record)
	}
	s.projects[out.ProjectID][out.ID] = &record{exp: out, file: file, index: -1}
	return out.Clone(), nil
}

func (s *Store) Update(_ context.Context, projectID, id string, p expectation.Patch) (*expectation.Expectation, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.projects[projectID][id]
	if !ok {
		return nil, expectation.ErrNotFound
	}
	updated, err := p.Apply(rec.exp)
	if err != nil {
		return nil, err
	}
	assignIDs(updated)

	if rec.index < 0 {
		err = writeSingle(rec.file, updated)
	} else {
		err = replaceInSequence(rec.file, rec.index, dto.FromDomain(updated), s.identities(projectID, rec.file))
	}
	if err != nil {
		return nil, err
	}

	s.projects[projectID][id] = &record{exp: updated, file: rec.file, index: rec.index}
	return updated.Clone(), nil
}

func (s *Store) Delete(_ context.Context, projectID, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.projects[projectID][id]
	if !ok {
		return expectation.ErrNotFound
	}

	if rec.index < 0 {
		if err := os.Remove(rec.file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete expectation file: %w", err)
		}
	} else {
		if err := removeFromSequence(rec.file, rec.index, s.identities(projectID, rec.file)); err != nil {
			return err
		}
		for _, other := range s.projects[projectID] {
			if other.file == rec.file && other.index > rec.index {
				other.index--
			}
		}
	}

	delete(s.projects[projectID], id)
	return nil
}

// Projects lists every project directory, including empty ones.
func (s *Store) Projects(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// identities maps each entry position of a sequence file to the id and create
// time the snapshot holds for it. Callers hold s.mu.
func (s *Store) identities(projectID, file string) map[int]entryIdentity {
	out := make(map[int]entryIdentity)
	for _, rec := range s.projects[projectID] {
		if rec.file == file && rec.index >= 0 {
			out[rec.index] = entryIdentity{id: rec.exp.ID, created: rec.exp.CreateTime}
		}
	}
	return out
}

func writeSingle(file string, e *expectation.Expectation) error {
	out, err := yaml.Marshal(dto.FromDomain(e))
	if err != nil {
		return fmt.Errorf("failed to encode expectation: %w", err)
	}
	return atomicWriteFile(file, out)
}

// assignIDs gives every matcher and action without an id a fresh one.
func assignIDs(e *expectation.Expectation) {
	for i := range e.Matchers {
		if e.Matchers[i].ID == "" {
			e.Matchers[i].ID = uuid.NewString()
		}
	}
	for i := range e.Actions {
		if e.Actions[i].ID == "" {
			e.Actions[i].ID = uuid.NewString()
		}
	}
}
