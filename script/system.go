// Package script runs Lua-defined systems inside a dispatch plan. A script
// declares its storage footprint through the reads/writes/resources globals
// and exposes an update(view) function; the view hands it checked access to
// the world's storages.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/weavework/loom/dispatch"
	"github.com/weavework/loom/ecs"
)

// ErrNoUpdate reports a script that defines no update function.
var ErrNoUpdate = errors.New("script defines no update function")

const viewTypeName = "loom.view"

// System is one Lua script adapted to the dispatch.System contract. Each
// system owns its VM; the dispatcher never runs the same system on two
// goroutines at once, so no locking is needed around it.
type System struct {
	name      string
	vm        *lua.LState
	log       *zap.Logger
	reads     []string
	writes    []string
	resources []string
	update    *lua.LFunction

	// runErr stashes a typed Go error before a RaiseError so it survives
	// the trip through the Lua call boundary.
	runErr error
}

// LoadFile loads a script system from a .lua file. The file name, minus the
// extension, is the fallback system name.
func LoadFile(path string, log *zap.Logger) (*System, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return LoadString(base, string(src), log)
}

// LoadString loads a script system from source. The script's name global,
// if set, overrides the given name.
func LoadString(name, src string, log *zap.Logger) (*System, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	s := &System{name: name, vm: vm, log: log}
	s.registerViewType()

	if err := vm.DoString(src); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	if n := vm.GetGlobal("name"); n != lua.LNil {
		s.name = lua.LVAsString(n)
	}
	s.reads = stringList(vm.GetGlobal("reads"))
	s.writes = stringList(vm.GetGlobal("writes"))
	s.resources = stringList(vm.GetGlobal("resources"))

	fn, ok := vm.GetGlobal("update").(*lua.LFunction)
	if !ok {
		vm.Close()
		return nil, fmt.Errorf("load %s: %w", s.name, ErrNoUpdate)
	}
	s.update = fn

	log.Debug("loaded lua system",
		zap.String("system", s.name),
		zap.Strings("reads", s.reads),
		zap.Strings("writes", s.writes),
		zap.Strings("resources", s.resources))
	return s, nil
}

func stringList(v lua.LValue) []string {
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	tbl.ForEach(func(_, item lua.LValue) {
		out = append(out, lua.LVAsString(item))
	})
	return out
}

func (s *System) Name() string { return s.name }

// Declare maps the script's declaration globals onto the access set. Unknown
// kind names surface at registration, not at run time.
func (s *System) Declare(a *dispatch.Access) {
	for _, k := range s.reads {
		a.ReadsNamed(k)
	}
	for _, k := range s.writes {
		a.WritesNamed(k)
	}
	for _, r := range s.resources {
		a.ReadsResourceNamed(r)
	}
}

// Run calls the script's update(view) under a protected frame.
func (s *System) Run(c *dispatch.Context) error {
	s.runErr = nil
	ud := s.vm.NewUserData()
	ud.Value = c
	s.vm.SetMetatable(ud, s.vm.GetTypeMetatable(viewTypeName))

	if err := s.vm.CallByParam(lua.P{
		Fn:      s.update,
		NRet:    0,
		Protect: true,
	}, ud); err != nil {
		if s.runErr != nil {
			return s.runErr
		}
		return fmt.Errorf("script %s: %w", s.name, err)
	}
	return nil
}

// Close shuts down the Lua VM.
func (s *System) Close() {
	s.vm.Close()
}

func (s *System) registerViewType() {
	mt := s.vm.NewTypeMetatable(viewTypeName)
	s.vm.SetField(mt, "__index", s.vm.SetFuncs(s.vm.NewTable(), map[string]lua.LGFunction{
		"each":     s.luaEach,
		"get":      s.luaGet,
		"set":      s.luaSet,
		"remove":   s.luaRemove,
		"resource": s.luaResource,
		"destroy":  s.luaDestroy,
		"alive":    s.luaAlive,
	}))
}

func (s *System) ctx(L *lua.LState) *dispatch.Context {
	ud := L.CheckUserData(1)
	c, ok := ud.Value.(*dispatch.Context)
	if !ok {
		L.ArgError(1, "view expected")
	}
	return c
}

// fail stashes the typed error and aborts the running Lua frame.
func (s *System) fail(L *lua.LState, err error) int {
	s.runErr = err
	L.RaiseError("%v", err)
	return 0
}

func (s *System) luaEach(L *lua.LState) int {
	c := s.ctx(L)
	kind := L.CheckString(2)
	fn := L.CheckFunction(3)

	view, err := c.ReadNamed(kind)
	if err != nil {
		return s.fail(L, err)
	}

	// Snapshot first so the callback may set or remove rows of this kind.
	type row struct {
		e ecs.Entity
		v any
	}
	rows := make([]row, 0, view.Len())
	view.Each(func(e ecs.Entity, v any) {
		rows = append(rows, row{e: e, v: v})
	})
	for _, r := range rows {
		tbl, terr := toTable(L, r.v)
		if terr != nil {
			return s.fail(L, terr)
		}
		L.Push(fn)
		L.Push(lua.LNumber(float64(r.e)))
		L.Push(tbl)
		L.Call(2, 0)
	}
	return 0
}

func (s *System) luaGet(L *lua.LState) int {
	c := s.ctx(L)
	kind := L.CheckString(2)
	id := uint64(L.CheckNumber(3))

	view, err := c.ReadNamed(kind)
	if err != nil {
		return s.fail(L, err)
	}
	v, ok := view.Get(ecs.Entity(id))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	tbl, err := toTable(L, v)
	if err != nil {
		return s.fail(L, err)
	}
	L.Push(tbl)
	return 1
}

// luaSet replaces an entity's value from a table. Stale handles report
// false instead of failing the system.
func (s *System) luaSet(L *lua.LState) int {
	c := s.ctx(L)
	kind := L.CheckString(2)
	id := uint64(L.CheckNumber(3))
	tbl := L.CheckTable(4)

	view, err := c.WriteNamed(kind)
	if err != nil {
		return s.fail(L, err)
	}
	val, err := fromTable(tbl, view.Type())
	if err != nil {
		return s.fail(L, err)
	}
	if err := view.Set(ecs.Entity(id), val); err != nil {
		if errors.Is(err, ecs.ErrStaleEntity) {
			L.Push(lua.LFalse)
			return 1
		}
		return s.fail(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

func (s *System) luaRemove(L *lua.LState) int {
	c := s.ctx(L)
	kind := L.CheckString(2)
	id := uint64(L.CheckNumber(3))

	view, err := c.WriteNamed(kind)
	if err != nil {
		return s.fail(L, err)
	}
	removed, err := view.Remove(ecs.Entity(id))
	if err != nil {
		return s.fail(L, err)
	}
	L.Push(lua.LBool(removed))
	return 1
}

// luaResource returns a snapshot table of a resource value.
func (s *System) luaResource(L *lua.LState) int {
	c := s.ctx(L)
	name := L.CheckString(2)

	p, err := c.ResourceNamed(name)
	if err != nil {
		return s.fail(L, err)
	}
	tbl, err := toTable(L, p)
	if err != nil {
		return s.fail(L, err)
	}
	L.Push(tbl)
	return 1
}

// luaDestroy queues the entity for destruction at the next flush.
func (s *System) luaDestroy(L *lua.LState) int {
	c := s.ctx(L)
	id := uint64(L.CheckNumber(2))
	c.World().QueueDeallocate(ecs.Entity(id))
	return 0
}

func (s *System) luaAlive(L *lua.LState) int {
	c := s.ctx(L)
	id := uint64(L.CheckNumber(2))
	L.Push(lua.LBool(c.World().Alive(ecs.Entity(id))))
	return 1
}
