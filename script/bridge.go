package script

import (
	"fmt"
	"reflect"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// toTable copies a flat struct value, or a pointer to one, into a fresh Lua
// table keyed by lowercased field names. Only scalar fields cross the
// boundary; anything else is a conversion error.
func toTable(L *lua.LState, v any) (*lua.LTable, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("value %T is not a struct", v)
	}
	t := rv.Type()
	tbl := L.NewTable()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		lv, err := toLValue(rv.Field(i))
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name(), f.Name, err)
		}
		tbl.RawSetString(strings.ToLower(f.Name), lv)
	}
	return tbl, nil
}

func toLValue(v reflect.Value) (lua.LValue, error) {
	switch v.Kind() {
	case reflect.Bool:
		return lua.LBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(v.Float()), nil
	case reflect.String:
		return lua.LString(v.String()), nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", v.Kind())
	}
}

// fromTable builds a struct of the given type from a Lua table. The table
// fully replaces the prior value: absent fields come back zero.
func fromTable(tbl *lua.LTable, typ reflect.Type) (any, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("kind %s is not a struct", typ)
	}
	out := reflect.New(typ).Elem()
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		lv := tbl.RawGetString(strings.ToLower(f.Name))
		if lv == lua.LNil {
			continue
		}
		if err := setField(out.Field(i), lv); err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", typ.Name(), f.Name, err)
		}
	}
	return out.Interface(), nil
}

func setField(v reflect.Value, lv lua.LValue) error {
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(lua.LVAsBool(lv))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(int64(lua.LVAsNumber(lv)))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(uint64(lua.LVAsNumber(lv)))
	case reflect.Float32, reflect.Float64:
		v.SetFloat(float64(lua.LVAsNumber(lv)))
	case reflect.String:
		v.SetString(lua.LVAsString(lv))
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}
