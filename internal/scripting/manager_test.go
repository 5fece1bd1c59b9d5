package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/charstats/internal/game/dice"
	"github.com/cory-johannsen/charstats/internal/scripting"
)

func newTestManager(t testing.TB) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	roller := dice.NewRoller(dice.NewCryptoSource(), logger)
	mgr := scripting.NewManager(roller, logger)
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0644))
	return dir
}

func hasLevel(logs *observer.ObservedLogs, level zapcore.Level) bool {
	for _, e := range logs.All() {
		if e.Level == level {
			return true
		}
	}
	return false
}

func TestManager_LoadGlobal_CallsHook(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "hooks.lua", `
		function test_hook(a, b)
			return a + b
		end
	`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	ret, err := mgr.CallHook("test_hook", lua.LNumber(3), lua.LNumber(4))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(7), ret)
}

func TestManager_CallHook_MissingHook_NoOp(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "empty.lua", `-- no functions`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	ret, err := mgr.CallHook("nonexistent_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_CallHook_NothingLoaded_LogsInfoReturnsNil(t *testing.T) {
	mgr, logs := newTestManager(t)
	ret, err := mgr.CallHook("some_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zap.InfoLevel), "expected Info log when no scripts are loaded")
}

func TestManager_CallHook_RuntimeError_WarnLogNoPanic(t *testing.T) {
	mgr, logs := newTestManager(t)
	dir := writeTempLua(t, "bad.lua", `
		function bad_hook()
			error("intentional error")
		end
	`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	ret, err := mgr.CallHook("bad_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zap.WarnLevel), "expected Warn log for Lua runtime error")
}

func TestManager_CallHook_RunawayScriptStopped(t *testing.T) {
	mgr, logs := newTestManager(t)
	dir := writeTempLua(t, "loop.lua", `function spin() while true do end end`)
	require.NoError(t, mgr.LoadGlobal(dir, 1000))
	ret, err := mgr.CallHook("spin")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zap.WarnLevel))
}

func TestManager_CallHook_BudgetIsPerCall(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "count.lua", `
		function work()
			local s = 0
			for i = 1, 50 do s = s + i end
			return s
		end
	`)
	require.NoError(t, mgr.LoadGlobal(dir, 2000))
	// Far more opcodes in total than one budget allows.
	for i := 0; i < 100; i++ {
		ret, err := mgr.CallHook("work")
		require.NoError(t, err)
		require.Equal(t, lua.LNumber(1275), ret, "call %d", i)
	}
}

func TestManager_LoadGlobal_EmptyDir_NoError(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadGlobal(t.TempDir(), 0))
	ret, err := mgr.CallHook("anything")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_LoadGlobal_MissingDir_ReturnsError(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.LoadGlobal(filepath.Join(t.TempDir(), "missing"), 0))
}

func TestManager_LoadGlobal_InvalidLua_ReturnsError(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "bad.lua", `this is not valid lua @@@@`)
	assert.Error(t, mgr.LoadGlobal(dir, 0))
}

func TestManager_LoadGlobal_FailedReloadKeepsPreviousScripts(t *testing.T) {
	mgr, _ := newTestManager(t)
	good := writeTempLua(t, "good.lua", `function answer() return 42 end`)
	require.NoError(t, mgr.LoadGlobal(good, 0))
	bad := writeTempLua(t, "bad.lua", `@@@@`)
	require.Error(t, mgr.LoadGlobal(bad, 0))
	ret, err := mgr.CallHook("answer")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(42), ret)
}

func TestManager_LoadGlobal_MultipleFiles_OrderedByName(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`base_val = 10`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`
		function get_val() return base_val end
	`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte(`not lua`), 0644))
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	ret, err := mgr.CallHook("get_val")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(10), ret)
}

func TestManager_RunEffectHook_PassesArguments(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "hooks.lua", `
		seen = nil
		function on_test(uid, effect_id, magnitude)
			seen = uid .. "/" .. effect_id .. "/" .. magnitude
		end
		function get_seen() return seen end
	`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	mgr.RunEffectHook("on_test", "c1", "poison", -1)
	ret, err := mgr.CallHook("get_seen")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("c1/poison/-1"), ret)
}

func TestManager_RunEffectHook_NestedCallIsQueued(t *testing.T) {
	mgr, _ := newTestManager(t)
	var order []string
	mgr.ApplyEffect = func(uid, effectID string) error {
		order = append(order, "apply "+effectID)
		// A hook raised while another is running must not re-enter the VM.
		mgr.RunEffectHook("second", uid, effectID, 0)
		order = append(order, "returned")
		return nil
	}
	dir := writeTempLua(t, "hooks.lua", `
		function first(uid, effect_id, magnitude)
			engine.effects.apply(uid, "weakness")
		end
		function second(uid, effect_id, magnitude)
			engine.log.info("second " .. effect_id)
		end
	`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	mgr.RunEffectHook("first", "c1", "poison", 0)
	assert.Equal(t, []string{"apply weakness", "returned"}, order)
}

func TestNewManager_PanicsOnNilRoller(t *testing.T) {
	assert.Panics(t, func() {
		scripting.NewManager(nil, zap.NewNop())
	})
}

func TestNewManager_PanicsOnNilLogger(t *testing.T) {
	roller := dice.NewRoller(dice.NewCryptoSource(), zap.NewNop())
	assert.Panics(t, func() {
		scripting.NewManager(roller, nil)
	})
}

func TestManager_Close_ReleasesVM(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "init.lua", `function get_x() return 1 end`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	mgr.Close()
	ret, err := mgr.CallHook("get_x")
	assert.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestProperty_CallHookUnknownNeverPanics(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadGlobal(t.TempDir(), 0))
	rapid.Check(t, func(rt *rapid.T) {
		hook := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "hook")
		count := rapid.IntRange(1, 20).Draw(rt, "count")
		for i := 0; i < count; i++ {
			mgr.CallHook(hook) //nolint:errcheck
		}
	})
}

func TestManager_ConcurrentHooks_NoRace(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "hooks.lua", `
		total = 0
		function add(uid, effect_id, magnitude)
			total = total + magnitude
		end
		function get_total() return total end
		function sum(a, b) return a + b end
	`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))

	const goroutines = 10
	const callsEach = 5
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsEach; j++ {
				mgr.RunEffectHook("add", "c", "e", 1)
				ret, err := mgr.CallHook("sum", lua.LNumber(1), lua.LNumber(2))
				assert.NoError(t, err)
				assert.Equal(t, lua.LNumber(3), ret)
			}
		}()
	}
	wg.Wait()

	// Queued calls finish before the last drainer returns.
	assert.Eventually(t, func() bool {
		ret, _ := mgr.CallHook("get_total")
		return ret == lua.LNumber(goroutines*callsEach)
	}, time.Second, 10*time.Millisecond)
}
