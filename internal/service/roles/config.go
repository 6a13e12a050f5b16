package roles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/sandevgo/aide/pkg/log"
)

// RoleOverride is the per-role section of the config file.
type RoleOverride struct {
	CustomInstructions string `yaml:"custom_instructions"`
	EnableActions      *bool  `yaml:"enable_actions"`
	EnableSearch       *bool  `yaml:"enable_search"`
	EnableFetch        *bool  `yaml:"enable_fetch"`
}

type configFile struct {
	GlobalInstructions string                  `yaml:"global_instructions"`
	Roles              map[string]RoleOverride `yaml:"roles"`
}

// Config holds the current override set. Reload swaps the whole snapshot, so
// readers never see a half-applied file.
type Config struct {
	path string

	mu      sync.RWMutex
	current configFile
}

func NewConfig(path string) *Config {
	c := &Config{path: path}
	// A missing or broken file means built-in defaults only
	_ = c.Reload()
	return c
}

// Reload re-reads the config file. Unreadable or invalid files leave the
// previous snapshot in place.
func (c *Config) Reload() error {
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.mu.Lock()
			c.current = configFile{}
			c.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read role config: %w", err)
	}

	var parsed configFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse role config: %w", err)
	}

	c.mu.Lock()
	c.current = parsed
	c.mu.Unlock()
	return nil
}

func (c *Config) snapshot() configFile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Watch reloads the config whenever the file changes, until ctx is done.
func (c *Config) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the directory: editors replace files rather than write in place
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		logger := log.FromCtx(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != c.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.Reload(); err != nil {
					logger.Warn().Err(err).Msg("role config reload failed, keeping previous")
					continue
				}
				logger.Info().Str("path", c.path).Msg("role config reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("role config watcher error")
			}
		}
	}()
	return nil
}
