package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aretw0/weft/pkg/ports"
)

// Loader implements ports.FlowLoader over a directory of YAML flow
// documents. Every *.yaml and *.yml file in the directory (non
// recursive) is one source.
type Loader struct {
	Dir string

	// PollInterval controls the Watch polling cadence. Zero means one
	// second.
	PollInterval time.Duration
}

// NewLoader creates a loader for the given directory.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Load reads every flow document, sorted by filename for stable
// compilation order.
func (l *Loader) Load() ([]ports.FlowSource, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow directory %q: %w", l.Dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	sources := make([]ports.FlowSource, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(l.Dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read flow file %q: %w", name, err)
		}
		sources = append(sources, ports.FlowSource{Name: name, Data: data})
	}
	return sources, nil
}

// Watch polls the directory for modification time changes and signals
// when a reload is required. It satisfies ports.Watchable; hosts that
// want hot reload in dev mode consume the channel.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	interval := l.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	last, err := l.fingerprint()
	if err != nil {
		return nil, err
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := l.fingerprint()
				if err != nil || current == last {
					continue
				}
				last = current
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}

func (l *Loader) fingerprint() (string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to read flow directory %q: %w", l.Dir, err)
	}
	fp := ""
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		fp += fmt.Sprintf("%s:%d:%d;", entry.Name(), info.Size(), info.ModTime().UnixNano())
	}
	return fp, nil
}
