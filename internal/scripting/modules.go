package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers all engine.* Lua tables into L:
//
//	engine.log.debug|info|warn|error(msg)
//	engine.dice.roll(expr)              -> {total, dice, modifier} or nil
//	engine.effects.apply(uid, id)       -> true, or nil and an error message
//	engine.effects.remove(uid, id)      -> true, or nil and an error message
//	engine.effects.has(uid, id)         -> bool or nil
//	engine.stats.attribute(uid, name)   -> int or nil
//	engine.stats.skill(uid, name)       -> int or nil
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", m.logModule(L))
	L.SetField(engine, "dice", m.diceModule(L))
	L.SetField(engine, "effects", m.effectsModule(L))
	L.SetField(engine, "stats", m.statsModule(L))
	L.SetGlobal("engine", engine)
}

func (m *Manager) logModule(L *lua.LState) *lua.LTable {
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"debug": logAt(m.logger.Debug),
		"info":  logAt(m.logger.Info),
		"warn":  logAt(m.logger.Warn),
		"error": logAt(m.logger.Error),
	})
}

func logAt(log func(string, ...zap.Field)) lua.LGFunction {
	return func(L *lua.LState) int {
		log("lua", zap.String("msg", L.CheckString(1)))
		return 0
	}
}

func (m *Manager) diceModule(L *lua.LState) *lua.LTable {
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"roll": func(L *lua.LState) int {
			result, err := m.roller.RollExpr(L.CheckString(1))
			if err != nil {
				L.Push(lua.LNil)
				L.Push(lua.LString(err.Error()))
				return 2
			}
			dice := L.NewTable()
			for _, d := range result.Dice {
				dice.Append(lua.LNumber(d))
			}
			t := L.NewTable()
			L.SetField(t, "total", lua.LNumber(result.Total()))
			L.SetField(t, "dice", dice)
			L.SetField(t, "modifier", lua.LNumber(result.Modifier))
			L.Push(t)
			return 1
		},
	})
}

func (m *Manager) effectsModule(L *lua.LState) *lua.LTable {
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"apply": func(L *lua.LState) int {
			return pushResult(L, m.ApplyEffect, L.CheckString(1), L.CheckString(2))
		},
		"remove": func(L *lua.LState) int {
			return pushResult(L, m.RemoveEffect, L.CheckString(1), L.CheckString(2))
		},
		"has": func(L *lua.LState) int {
			uid, id := L.CheckString(1), L.CheckString(2)
			if m.HasEffect == nil {
				L.Push(lua.LNil)
				return 1
			}
			has, err := m.HasEffect(uid, id)
			if err != nil {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(lua.LBool(has))
			return 1
		},
	})
}

func (m *Manager) statsModule(L *lua.LState) *lua.LTable {
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"attribute": func(L *lua.LState) int {
			return pushValue(L, m.AttributeValue, L.CheckString(1), L.CheckString(2))
		},
		"skill": func(L *lua.LState) int {
			return pushValue(L, m.SkillValue, L.CheckString(1), L.CheckString(2))
		},
	})
}

func pushResult(L *lua.LState, fn func(uid, id string) error, uid, id string) int {
	if fn == nil {
		L.Push(lua.LNil)
		return 1
	}
	if err := fn(uid, id); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func pushValue(L *lua.LState, fn func(uid, name string) (int, error), uid, name string) int {
	if fn == nil {
		L.Push(lua.LNil)
		return 1
	}
	v, err := fn(uid, name)
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(v))
	return 1
}
