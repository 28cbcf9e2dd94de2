package prefstore

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	storeDirPerm     = 0o750
	appDirName       = "ccdb"
	scopeSeparator   = "@"
	escapedSeparator = "%40"
	tempPattern      = ".prefs-*"
	envStateHome     = "XDG_STATE_HOME"
)

// Sentinel errors.
var (
	// ErrUnknownCodec is returned for an unsupported store format name.
	ErrUnknownCodec = errors.New("unknown store codec")
	// ErrEmptyProject is returned when a scope has no project name.
	ErrEmptyProject = errors.New("store scope requires a project name")
)

// Scope names the project and build configuration a node belongs to.
type Scope struct {
	Project string
	Config  string
}

// filename builds the file name for the scope. Both parts are escaped,
// separator included, so distinct scopes never share a file.
func (s Scope) filename(ext string) string {
	name := escapeScopePart(s.Project)
	if s.Config != "" {
		name += scopeSeparator + escapeScopePart(s.Config)
	}

	return name + ext
}

// PathEscape leaves "@" alone; it is the separator here.
func escapeScopePart(part string) string {
	return strings.ReplaceAll(url.PathEscape(part), scopeSeparator, escapedSeparator)
}

// document is the on-disk layout of a node.
type document struct {
	Project    string           `json:"project"              yaml:"project"`
	Config     string           `json:"config,omitempty"     yaml:"config,omitempty"`
	Timestamps map[string]int64 `json:"timestamps"           yaml:"timestamps"`
}

// Node is a file-backed key/value preference node. Put stages a value in
// memory; Flush writes the whole node atomically. A Node is safe for use by
// multiple goroutines of one process. Nothing coordinates separate processes.
type Node struct {
	mu     sync.Mutex
	path   string
	codec  Codec
	scope  Scope
	values map[string]int64
	dirty  bool
}

// Open loads the node for scope from dir, or starts an empty one when the file
// does not exist yet.
func Open(dir string, scope Scope, codec Codec) (*Node, error) {
	if scope.Project == "" {
		return nil, ErrEmptyProject
	}

	if codec == nil {
		codec = JSONCodec{}
	}

	node := &Node{
		path:   filepath.Join(dir, scope.filename(codec.Extension())),
		codec:  codec,
		scope:  scope,
		values: make(map[string]int64),
	}

	err := node.load()
	if err != nil {
		return nil, err
	}

	return node, nil
}

// Path returns the backing file path.
func (n *Node) Path() string {
	return n.path
}

// Get returns the stored value, or 0 when absent.
func (n *Node) Get(key string) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.values[key], nil
}

// Put stages a value until the next Flush.
func (n *Node) Put(key string, value int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.values[key] = value
	n.dirty = true

	return nil
}

// Remove stages the deletion of key.
func (n *Node) Remove(key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.values[key]; ok {
		delete(n.values, key)
		n.dirty = true
	}

	return nil
}

// Keys returns the stored keys in sorted order.
func (n *Node) Keys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	keys := make([]string, 0, len(n.values))
	for key := range n.values {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Flush writes staged changes to disk. It is a no-op when nothing changed.
func (n *Node) Flush() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.dirty {
		return nil
	}

	err := n.write()
	if err != nil {
		return err
	}

	n.dirty = false

	return nil
}

func (n *Node) load() error {
	file, err := os.Open(n.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("open store %s: %w", n.path, err)
	}
	defer file.Close()

	var doc document

	err = n.codec.Decode(file, &doc)
	if err != nil {
		return fmt.Errorf("decode store %s: %w", n.path, err)
	}

	for key, value := range doc.Timestamps {
		n.values[key] = value
	}

	return nil
}

func (n *Node) write() error {
	dir := filepath.Dir(n.path)

	err := os.MkdirAll(dir, storeDirPerm)
	if err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}

	tmpName := tmp.Name()

	doc := document{
		Project:    n.scope.Project,
		Config:     n.scope.Config,
		Timestamps: n.values,
	}

	err = n.codec.Encode(tmp, doc)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("encode store: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("close temp store file: %w", err)
	}

	err = os.Rename(tmpName, n.path)
	if err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("commit store file: %w", err)
	}

	return nil
}

// DefaultDir returns $XDG_STATE_HOME/ccdb, falling back to ~/.local/state/ccdb.
func DefaultDir() (string, error) {
	if stateHome := os.Getenv(envStateHome); stateHome != "" {
		return filepath.Join(stateHome, appDirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}

	return filepath.Join(home, ".local", "state", appDirName), nil
}
