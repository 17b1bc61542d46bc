package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// WorkflowConfigDir and WorkflowConfigFile locate the flow document under
// a working directory.
const (
	WorkflowConfigDir  = ".taskorchestrator"
	WorkflowConfigFile = "config.yaml"
)

// workflowCacheTTL is how long a parsed config is trusted before the file
// is re-examined. Short on purpose: agents edit the file mid-session.
const workflowCacheTTL = 2 * time.Second

type workflowCacheEntry struct {
	cfg      *WorkflowConfig // nil means V1-compatibility mode
	loadedAt time.Time
	modTime  time.Time
	hasFile  bool
}

// WorkflowConfigLoader loads and caches the workflow flow configuration.
// The cache is keyed on working directory with a short TTL and is
// invalidated when the file's modification timestamp changes.
//
// Load returns nil exactly when the engine must run in V1-compatibility
// mode: the file exists but cannot be parsed. A missing file yields the
// bundled default instead.
type WorkflowConfigLoader struct {
	workdir string
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]*workflowCacheEntry

	// overridable in tests
	ttl time.Duration
	now func() time.Time
}

// NewWorkflowConfigLoader creates a loader rooted at the given working
// directory.
func NewWorkflowConfigLoader(workdir string, logger *zap.Logger) *WorkflowConfigLoader {
	return &WorkflowConfigLoader{
		workdir: workdir,
		logger:  logger,
		cache:   make(map[string]*workflowCacheEntry),
		ttl:     workflowCacheTTL,
		now:     time.Now,
	}
}

// Active returns the workflow config for the loader's working directory,
// or nil in V1-compatibility mode.
func (l *WorkflowConfigLoader) Active() *WorkflowConfig {
	return l.Load(l.workdir)
}

// Load returns the workflow config for an explicit working directory.
func (l *WorkflowConfigLoader) Load(workdir string) *WorkflowConfig {
	path := filepath.Join(workdir, WorkflowConfigDir, WorkflowConfigFile)

	l.mu.RLock()
	entry, ok := l.cache[workdir]
	l.mu.RUnlock()
	if ok && l.now().Sub(entry.loadedAt) < l.ttl {
		return entry.cfg
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Re-check under the write lock; another goroutine may have rebuilt.
	if entry, ok = l.cache[workdir]; ok && l.now().Sub(entry.loadedAt) < l.ttl {
		return entry.cfg
	}

	info, statErr := os.Stat(path)
	if ok && entry.hasFile && statErr == nil && info.ModTime().Equal(entry.modTime) {
		// File unchanged since last parse; just extend the TTL.
		entry.loadedAt = l.now()
		return entry.cfg
	}
	if ok && !entry.hasFile && statErr != nil {
		entry.loadedAt = l.now()
		return entry.cfg
	}

	fresh := &workflowCacheEntry{loadedAt: l.now()}
	if statErr != nil {
		fresh.cfg = DefaultWorkflowConfig()
	} else {
		fresh.hasFile = true
		fresh.modTime = info.ModTime()
		fresh.cfg = l.parse(path)
	}
	l.cache[workdir] = fresh
	return fresh.cfg
}

// parse reads and validates the document. Any failure drops to V1 mode
// rather than blocking the engine.
func (l *WorkflowConfigLoader) parse(path string) *WorkflowConfig {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("Failed to read workflow config, falling back to V1 mode",
			zap.String("path", path), zap.Error(err))
		return nil
	}

	var cfg WorkflowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		l.logger.Warn("Malformed workflow config, falling back to V1 mode",
			zap.String("path", path), zap.Error(err))
		return nil
	}
	if cfg.StatusProgression == nil {
		cfg.StatusProgression = DefaultWorkflowConfig().StatusProgression
	}
	cfg.normalize()
	return &cfg
}
