package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/firerescue/viewer/internal/anim"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM holding the animation timing scripts.
// Single-goroutine access only (game loop).
//
// Recognised globals, all optional:
//
//	ease(t)                 -> eased progress for t in [0,1]
//	move_duration(dist, sp) -> seconds a walk of dist cells takes at speed sp
//	action_delay(action)    -> seconds a timed action lasts
//	door_transition(state)  -> seconds a door takes to swing into state
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a VM and loads every .lua file under scriptsDir.
// A missing directory yields an engine with no scripts (all fallbacks).
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log.Named("lua")}
	for _, sub := range []string{"", "anim"} {
		if err := e.loadDir(filepath.Join(scriptsDir, sub)); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// LoadString runs a chunk of Lua source in the engine's VM.
func (e *Engine) LoadString(src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("lua chunk: %w", err)
	}
	return nil
}

func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Has reports whether a global function is defined.
func (e *Engine) Has(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// Easing returns the script's ease() as an anim.Easing, or fallback when
// the script does not define one.
func (e *Engine) Easing(fallback anim.Easing) anim.Easing {
	if !e.Has("ease") {
		return fallback
	}
	return func(t float64) float64 {
		v, ok := e.callNumber("ease", lua.LNumber(t))
		if !ok {
			return fallback(t)
		}
		return clamp01(v)
	}
}

// MoveDuration asks move_duration(dist, speed). The fallback is dist/speed.
func (e *Engine) MoveDuration(dist, speed float64) time.Duration {
	fallback := time.Duration(0)
	if speed > 0 {
		fallback = seconds(dist / speed)
	}
	if !e.Has("move_duration") {
		return fallback
	}
	v, ok := e.callNumber("move_duration", lua.LNumber(dist), lua.LNumber(speed))
	if !ok || v < 0 {
		return fallback
	}
	return seconds(v)
}

// ActionDelay asks action_delay(action), returning fallback when the
// script is absent, errors, or answers nil.
func (e *Engine) ActionDelay(action string, fallback time.Duration) time.Duration {
	if !e.Has("action_delay") {
		return fallback
	}
	v, ok := e.callNumber("action_delay", lua.LString(action))
	if !ok || v < 0 {
		return fallback
	}
	return seconds(v)
}

// DoorTransition asks door_transition(state).
func (e *Engine) DoorTransition(state string, fallback time.Duration) time.Duration {
	if !e.Has("door_transition") {
		return fallback
	}
	v, ok := e.callNumber("door_transition", lua.LString(state))
	if !ok || v < 0 {
		return fallback
	}
	return seconds(v)
}

// callNumber calls a global with one return value. ok is false when the
// call fails or the result is not a number.
func (e *Engine) callNumber(name string, args ...lua.LValue) (float64, bool) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return 0, false
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua call error", zap.String("func", name), zap.Error(err))
		return 0, false
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	n, ok := result.(lua.LNumber)
	if !ok {
		return 0, false
	}
	return float64(n), true
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
