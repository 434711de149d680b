package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/plugmock/internal/domain/platform"
)

// ErrInvalidNamespace is returned for a namespace that is not a plain file name.
var ErrInvalidNamespace = errors.New("invalid state namespace")

var (
	_ platform.Provider   = (*StateFile)(nil)
	_ platform.FlagLister = (*StateFile)(nil)
	_ platform.Resetter   = (*StateFile)(nil)
)

// StateFile persists platform overlay state to <dir>/<namespace>.yaml.
//
// The whole document is rewritten atomically on every change. Reads are served
// from memory after the initial load.
type StateFile struct {
	path string

	mu    sync.RWMutex
	state yamlState
}

// OpenStateFile loads the state for namespace from dir, creating dir if needed.
// A missing file is an empty state. The namespace becomes the file name, so
// separators and dot segments are rejected.
func OpenStateFile(dir, namespace string) (*StateFile, error) {
	if namespace == "" {
		return nil, platform.ErrMissingName
	}
	if err := validNamespace(namespace); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &StateFile{path: filepath.Join(dir, namespace+".yaml")}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &s.state); err != nil {
			return nil, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
		}
	}
	return s, nil
}

func validNamespace(namespace string) error {
	if namespace == "." || namespace == ".." ||
		strings.ContainsAny(namespace, `/\`+"\x00") ||
		filepath.Base(namespace) != namespace || filepath.IsAbs(namespace) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
	}
	return nil
}

// Path returns the backing file.
func (s *StateFile) Path() string { return s.path }

func (s *StateFile) Flag(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.Flags[name]
	if !ok {
		return false, platform.ErrNotFound
	}
	return v, nil
}

// FlagNames returns the stored flag names, sorted.
func (s *StateFile) FlagNames() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.state.Flags))
	for name := range s.state.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Reset empties the state and rewrites the file.
func (s *StateFile) Reset() error {
	return s.update(func(st *yamlState) { *st = yamlState{} })
}

func (s *StateFile) SetFlag(name string, value bool) error {
	return s.update(func(st *yamlState) {
		if st.Flags == nil {
			st.Flags = make(map[string]bool)
		}
		st.Flags[name] = value
	})
}

func (s *StateFile) Status(endpointID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.Statuses[endpointID]
	if !ok {
		return 0, platform.ErrNotFound
	}
	return v, nil
}

func (s *StateFile) SetStatus(endpointID string, status int) error {
	return s.update(func(st *yamlState) {
		if st.Statuses == nil {
			st.Statuses = make(map[string]int)
		}
		st.Statuses[endpointID] = status
	})
}

func (s *StateFile) ActiveScenario() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.ActiveScenario == nil {
		return "", platform.ErrNotFound
	}
	return *s.state.ActiveScenario, nil
}

func (s *StateFile) SetActiveScenario(id string) error {
	return s.update(func(st *yamlState) { st.ActiveScenario = &id })
}

func (s *StateFile) EndpointScenario(endpointID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.EndpointScenarios[endpointID]
	if !ok {
		return "", platform.ErrNotFound
	}
	return v, nil
}

func (s *StateFile) SetEndpointScenario(endpointID, scenarioID string) error {
	return s.update(func(st *yamlState) {
		if st.EndpointScenarios == nil {
			st.EndpointScenarios = make(map[string]string)
		}
		st.EndpointScenarios[endpointID] = scenarioID
	})
}

// update applies fn and writes the result. The in-memory state only changes
// when the write succeeds.
func (s *StateFile) update(fn func(*yamlState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	fn(&next)

	out, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := atomicWriteFile(s.path, out); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (st yamlState) clone() yamlState {
	out := yamlState{
		Flags:             make(map[string]bool, len(st.Flags)),
		Statuses:          make(map[string]int, len(st.Statuses)),
		EndpointScenarios: make(map[string]string, len(st.EndpointScenarios)),
	}
	for k, v := range st.Flags {
		out.Flags[k] = v
	}
	for k, v := range st.Statuses {
		out.Statuses[k] = v
	}
	for k, v := range st.EndpointScenarios {
		out.EndpointScenarios[k] = v
	}
	if st.ActiveScenario != nil {
		id := *st.ActiveScenario
		out.ActiveScenario = &id
	}
	return out
}

// atomicWriteFile writes content to a temp file then renames it to the target path.
func atomicWriteFile(target string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".plugmock-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
