package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

var (
	ErrModuleExists      = errors.New("loader: module already registered")
	ErrModuleNil         = errors.New("loader: module is nil")
	ErrInvalidModuleName = errors.New("loader: invalid module name")
)

// Module is an in-process evaluation target. Import runs on the first load
// of a session and Reload on every later one.
type Module interface {
	Name() string
	Import(stdout io.Writer) error
	Reload(stdout io.Writer) error
}

// ModuleFunc adapts plain functions to Module. A nil OnReload reruns OnImport.
type ModuleFunc struct {
	ID       string
	OnImport func(stdout io.Writer) error
	OnReload func(stdout io.Writer) error
}

func (m ModuleFunc) Name() string { return m.ID }

func (m ModuleFunc) Import(stdout io.Writer) error {
	if m.OnImport == nil {
		return nil
	}
	return m.OnImport(stdout)
}

func (m ModuleFunc) Reload(stdout io.Writer) error {
	if m.OnReload == nil {
		return m.Import(stdout)
	}
	return m.OnReload(stdout)
}

// Registry resolves module names to in-process modules and implements Loader.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Module
}

var _ Loader = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Module)}
}

func (r *Registry) Register(m Module) error {
	if m == nil {
		return ErrModuleNil
	}
	name := strings.TrimSpace(m.Name())
	if !ValidModuleName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidModuleName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; ok {
		return fmt.Errorf("%w: %q", ErrModuleExists, name)
	}
	r.items[name] = m
	return nil
}

func (r *Registry) Resolve(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[name]
	return m, ok
}

// Names returns registered module names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Load(ctx context.Context, module string, stdout io.Writer) error {
	return r.invoke(ctx, module, func(m Module) error { return m.Import(stdout) })
}

func (r *Registry) Reload(ctx context.Context, module string, stdout io.Writer) error {
	return r.invoke(ctx, module, func(m Module) error { return m.Reload(stdout) })
}

func (r *Registry) invoke(ctx context.Context, module string, fn func(Module) error) (err error) {
	if err := ctx.Err(); err != nil {
		return &EvalError{Module: module, Err: err}
	}
	m, ok := r.Resolve(module)
	if !ok {
		return &EvalError{
			Module: module,
			Trace:  fmt.Sprintf("ModuleNotFoundError: No module named %q", module),
			Err:    ErrModuleNotFound,
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = Recovered(module, rec)
		}
	}()
	if err := fn(m); err != nil {
		var evalErr *EvalError
		if IsExitRequest(err) || errors.As(err, &evalErr) {
			return err
		}
		return &EvalError{Module: module, Err: err, Trace: FormatTrace(err)}
	}
	return nil
}

// ValidModuleName accepts dotted identifiers such as "o" or "pkg.mod_1".
func ValidModuleName(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			c := part[i]
			isLetter := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
			isDigit := c >= '0' && c <= '9'
			if !isLetter && !(isDigit && i > 0) {
				return false
			}
		}
	}
	return true
}
