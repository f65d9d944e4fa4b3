package service

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// LoadObjects runs the script at path and returns its object tables. The
// script either returns a list of tables or stores it in the global
// "objects".
func LoadObjects(L *lua.LState, path string) ([]*lua.LTable, error) {
	top := L.GetTop()
	if err := L.DoFile(path); err != nil {
		return nil, fmt.Errorf("run %s: %w", path, err)
	}
	defer L.SetTop(top)

	var list *lua.LTable
	if L.GetTop() > top {
		list, _ = L.Get(top + 1).(*lua.LTable)
	}
	if list == nil {
		list, _ = L.GetGlobal("objects").(*lua.LTable)
	}
	if list == nil || list.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoObjects)
	}

	objects := make([]*lua.LTable, 0, list.Len())
	for i := 1; i <= list.Len(); i++ {
		t, ok := list.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("%s: object #%d is not a table", path, i)
		}
		objects = append(objects, t)
	}
	return objects, nil
}
