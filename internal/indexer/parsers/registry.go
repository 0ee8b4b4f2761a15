package parsers

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// RegisterOptions controls how an adapter joins a Registry.
type RegisterOptions struct {
	// Priority breaks ties when two adapters claim the same extension.
	Priority int

	// Override replaces an adapter already registered for the same language.
	Override bool
}

type registration struct {
	adapter  Adapter
	priority int
	seq      int
}

// Registry maps languages and file extensions to adapters.
type Registry struct {
	mu         sync.RWMutex
	byLanguage map[string]*registration
	byExt      map[string][]*registration
	seq        int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byLanguage: make(map[string]*registration),
		byExt:      make(map[string][]*registration),
	}
}

// DefaultRegistry returns a registry with every shipped adapter.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []Adapter{
		NewGoAdapter(),
		NewPythonAdapter(),
		NewTypeScriptAdapter(),
		NewTSXAdapter(),
		NewJavaScriptAdapter(),
		NewJavaAdapter(),
		NewCAdapter(),
		NewRustAdapter(),
		NewRubyAdapter(),
		NewPHPAdapter(),
	} {
		// Languages are distinct, so registration cannot fail here.
		_ = r.Register(a, RegisterOptions{})
	}
	return r
}

// Register adds an adapter. Registering a language twice without Override is
// an error.
func (r *Registry) Register(a Adapter, opts RegisterOptions) error {
	if a == nil {
		return fmt.Errorf("cannot register nil adapter")
	}
	lang := a.Language()
	if lang == "" {
		return fmt.Errorf("adapter has empty language tag")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byLanguage[lang]; ok {
		if !opts.Override {
			return fmt.Errorf("adapter for language %q already registered", lang)
		}
		r.unregisterLocked(old)
	}

	r.seq++
	reg := &registration{adapter: a, priority: opts.Priority, seq: r.seq}
	r.byLanguage[lang] = reg
	for _, ext := range a.Extensions() {
		ext = normalizeExt(ext)
		r.byExt[ext] = append(r.byExt[ext], reg)
		sort.SliceStable(r.byExt[ext], func(i, j int) bool {
			x, y := r.byExt[ext][i], r.byExt[ext][j]
			if x.priority != y.priority {
				return x.priority > y.priority
			}
			return x.seq < y.seq
		})
	}
	return nil
}

func (r *Registry) unregisterLocked(old *registration) {
	delete(r.byLanguage, old.adapter.Language())
	for ext, regs := range r.byExt {
		kept := regs[:0]
		for _, reg := range regs {
			if reg != old {
				kept = append(kept, reg)
			}
		}
		if len(kept) == 0 {
			delete(r.byExt, ext)
		} else {
			r.byExt[ext] = kept
		}
	}
}

// ForPath picks the adapter for a file by extension.
func (r *Registry) ForPath(p string) (Adapter, bool) {
	return r.Resolve(p, "")
}

// Resolve picks an adapter by extension first, then by language tag. The
// highest priority registration wins an extension.
func (r *Registry) Resolve(p, language string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if regs := r.byExt[normalizeExt(path.Ext(p))]; len(regs) > 0 {
		return regs[0].adapter, true
	}
	if reg, ok := r.byLanguage[language]; ok {
		return reg.adapter, true
	}
	return nil, false
}

// ForLanguage returns the adapter registered for a language tag.
func (r *Registry) ForLanguage(language string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byLanguage[language]
	if !ok {
		return nil, false
	}
	return reg.adapter, true
}

// Languages lists registered language tags, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Extensions lists every claimed extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
