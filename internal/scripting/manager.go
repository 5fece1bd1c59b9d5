package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/charstats/internal/game/dice"
)

type hookCall struct {
	hook string
	args []lua.LValue
}

// Manager owns the sandboxed LState holding the effect hook scripts and
// exposes hook dispatch.
//
// Manager is safe for concurrent use. Calls into the VM are serialised.
// RunEffectHook queues its call when another one is already running, so a
// hook may trigger further hooks through the engine.* callbacks without
// re-entering the VM.
type Manager struct {
	mu     sync.Mutex // guards L, cancel, limit
	L      *lua.LState
	cancel context.CancelFunc
	limit  int

	qmu      sync.Mutex // guards queue, draining
	queue    []hookCall
	draining bool

	roller *dice.Roller
	logger *zap.Logger

	// Injected after construction. nil = no-op in engine.* modules.
	ApplyEffect    func(uid, effectID string) error
	RemoveEffect   func(uid, effectID string) error
	HasEffect      func(uid, effectID string) (bool, error)
	AttributeValue func(uid, name string) (int, error)
	SkillValue     func(uid, name string) (int, error)
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a non-nil Manager.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	if roller == nil {
		panic("scripting: NewManager requires a non-nil roller")
	}
	if logger == nil {
		panic("scripting: NewManager requires a non-nil logger")
	}
	return &Manager{roller: roller, logger: logger}
}

// LoadGlobal creates a sandboxed VM, registers all engine.* modules, then
// executes every *.lua file in scriptDir in lexicographic order. A previously
// loaded VM is replaced only when loading succeeds.
//
// Precondition: scriptDir must be a readable directory; instLimit >= 0, 0
// uses DefaultInstructionLimit.
// Postcondition: returns error on read or Lua load failure.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	limit := effectiveLimit(instLimit)
	L, cancel := NewSandboxedState(limit)
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		if err := L.DoFile(path); err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	m.closeLocked()
	m.L = L
	m.cancel = cancel
	m.limit = limit
	m.mu.Unlock()

	m.logger.Info("scripting: loaded effect scripts",
		zap.String("dir", scriptDir),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// Close releases the VM. Subsequent hook calls are no-ops.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.L != nil {
		m.L.Close()
		m.L = nil
	}
}

// CallHook calls the named Lua global function with a fresh instruction
// budget. Returns (LNil, nil) if no scripts are loaded or the hook is not
// defined. Lua runtime errors are logged at Warn level and never propagated.
//
// CallHook must not be called from inside a running hook; use RunEffectHook.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.L == nil {
		m.logger.Info("scripting: no scripts loaded", zap.String("hook", hook))
		return lua.LNil, nil
	}
	L := m.L

	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	release := budget(L, m.limit)
	defer func() {
		release()
		L.RemoveContext()
	}()

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// RunEffectHook calls hook(uid, effectID, magnitude). If a hook is already
// running, the call is queued and run by that caller once the current hook
// returns.
//
// Postcondition: the hook has run, or is queued behind the running one.
func (m *Manager) RunEffectHook(hook, charID, effectID string, magnitude int) {
	m.qmu.Lock()
	m.queue = append(m.queue, hookCall{
		hook: hook,
		args: []lua.LValue{lua.LString(charID), lua.LString(effectID), lua.LNumber(magnitude)},
	})
	if m.draining {
		m.qmu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		call := m.queue[0]
		m.queue = m.queue[1:]
		m.qmu.Unlock()

		m.CallHook(call.hook, call.args...) //nolint:errcheck // CallHook never returns an error

		m.qmu.Lock()
	}
	m.draining = false
	m.qmu.Unlock()
}
