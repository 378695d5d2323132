// Package securefs is the only component that touches the filesystem. It
// confines every read to the configured project root, enforces an extension
// allow-list and a size cap, and serves repeated reads from an in-memory
// cache. The rest of the core feeds file content into prompts without
// re-checking path safety.
package securefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	gocache "github.com/patrickmn/go-cache"

	"reasongate/internal/logging"
	"reasongate/internal/reasonerr"
)

// MaxFileSize is the hard cap on a single read.
const MaxFileSize = 10 << 20 // 10 MiB

// allowedExtensions is the fixed allow-list: source, config, and docs.
var allowedExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".java": true, ".rb": true, ".rs": true, ".c": true,
	".h": true, ".cpp": true, ".hpp": true, ".cc": true, ".cs": true,
	".php": true, ".swift": true, ".kt": true, ".scala": true, ".sql": true,
	".sh": true, ".bash": true, ".proto": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true,
	".env": true, ".mod": true, ".sum": true,
	".md": true, ".txt": true, ".rst": true, ".html": true, ".css": true,
	".xml": true,
}

// relatedSuffixes are the well-known companion-file name fragments probed by
// FindRelated.
var relatedSuffixes = []string{"_test", ".test", ".spec", "Service", "Controller", "Client"}

// Reader validates and caches file reads under a single project root.
type Reader struct {
	mu      sync.RWMutex
	root    string
	cache   *gocache.Cache
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewReader creates a Reader rooted at the absolute directory root.
func NewReader(root string) (*Reader, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("project root must be absolute, got %q", root)
	}
	clean := filepath.Clean(root)
	info, err := os.Stat(clean)
	if err != nil {
		return nil, reasonerr.New(reasonerr.CodeFSError, "cannot stat project root %s", clean).WithCause(err)
	}
	if !info.IsDir() {
		return nil, reasonerr.New(reasonerr.CodeNotAFile, "project root %s is not a directory", clean)
	}
	return &Reader{
		root:  clean,
		cache: gocache.New(gocache.NoExpiration, 0),
	}, nil
}

// Root returns the current project root.
func (r *Reader) Root() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// SetRoot changes the project root and invalidates the cache.
func (r *Reader) SetRoot(root string) error {
	if !filepath.IsAbs(root) {
		return fmt.Errorf("project root must be absolute, got %q", root)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root = filepath.Clean(root)
	r.cache.Flush()
	return nil
}

// ClearCache drops all cached content.
func (r *Reader) ClearCache() {
	r.cache.Flush()
}

// resolve maps a requested path to an absolute path strictly inside root.
// Relative paths are joined to the root; any `..` escape is rejected after
// normalization.
func (r *Reader) resolve(path string) (string, error) {
	r.mu.RLock()
	root := r.root
	r.mu.RUnlock()

	if strings.ContainsRune(path, 0) {
		return "", reasonerr.New(reasonerr.CodePathTraversal, "path contains NUL byte")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	// Clean has collapsed any dot segments; a surviving ".." means the
	// path escapes above the filesystem root.
	for _, seg := range strings.Split(abs, string(filepath.Separator)) {
		if seg == ".." {
			return "", reasonerr.New(reasonerr.CodePathTraversal, "path %q escapes project root", path)
		}
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", reasonerr.New(reasonerr.CodePathTraversal, "path %q resolves outside project root", path)
	}
	return abs, nil
}

// Read returns the content of path after validating confinement, type, and
// size. Content is cached by requested path until ClearCache or a root
// change (or a watcher event for the file).
func (r *Reader) Read(path string) ([]byte, error) {
	if cached, ok := r.cache.Get(path); ok {
		return cached.([]byte), nil
	}

	abs, err := r.resolve(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(abs))
	if base := filepath.Base(abs); !allowedExtensions[ext] && !isBareAllowed(base) {
		return nil, reasonerr.New(reasonerr.CodeInvalidFileType, "extension %q is not readable", ext)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, reasonerr.New(reasonerr.CodeFSError, "cannot stat %s", path).WithCause(err)
	}
	if !info.Mode().IsRegular() {
		return nil, reasonerr.New(reasonerr.CodeNotAFile, "%s is not a regular file", path)
	}
	if info.Size() > MaxFileSize {
		return nil, reasonerr.New(reasonerr.CodeFileTooLarge, "%s is %d bytes, limit is %d", path, info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, reasonerr.New(reasonerr.CodeFSError, "failed to read %s", path).WithCause(err)
	}

	r.cache.Set(path, data, gocache.NoExpiration)
	logging.SecureFS("read %s (%d bytes)", path, len(data))
	return data, nil
}

// isBareAllowed admits the handful of extensionless files worth reading.
func isBareAllowed(base string) bool {
	switch base {
	case "Makefile", "Dockerfile", "README", "LICENSE", ".env":
		return true
	}
	return false
}

// FindRelated returns sibling paths in the same directory whose names share
// the base's stem or a well-known companion suffix. Results stay under root.
func (r *Reader) FindRelated(base string) ([]string, error) {
	abs, err := r.resolve(base)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(abs)
	stem := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, reasonerr.New(reasonerr.CodeFSError, "failed to list %s", dir).WithCause(err)
	}

	var related []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == filepath.Base(abs) {
			continue
		}
		nameStem := strings.TrimSuffix(name, filepath.Ext(name))
		if nameStem == stem {
			related = append(related, filepath.Join(dir, name))
			continue
		}
		for _, suf := range relatedSuffixes {
			if nameStem == stem+suf || stem == nameStem+suf {
				related = append(related, filepath.Join(dir, name))
				break
			}
		}
	}
	return related, nil
}

// Watch starts a background fsnotify watcher on the project root that evicts
// changed files from the cache. Optional; Close stops it.
func (r *Reader) Watch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(r.root); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", r.root, err)
	}
	r.watcher = w
	r.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					r.evict(ev.Name)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-r.done:
				return
			}
		}
	}()
	return nil
}

// evict drops any cache entries that resolve to the changed file.
func (r *Reader) evict(abs string) {
	for key := range r.cache.Items() {
		resolved, err := r.resolve(key)
		if err == nil && resolved == abs {
			r.cache.Delete(key)
			logging.SecureFS("evicted %s after change", key)
		}
	}
}

// Close stops the watcher if one is running.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		close(r.done)
		r.watcher.Close()
		r.watcher = nil
	}
}
