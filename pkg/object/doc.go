// Package object binds script-defined LWM2M objects to the management engine.
//
// A script object is a Lua table. Its numeric keys hold instance tables,
// and the instance tables carry the resource handlers:
//
//	local temperature = { id = 3303 }
//
//	local instance = { value = 21 }
//	function instance:list() return { 5700, 5701 } end
//	function instance:type(resourceID) return 2 end
//	function instance:read(resourceID) return 0x45, self.value end
//	function instance:write(resourceID, value) self.value = value return 0x44 end
//	function instance:execute(resourceID, payload) return 0x44 end
//	function instance:delete() return 0x42 end
//
//	temperature[0] = instance
//
//	function temperature:create(instanceID) ... return 0x41, newInstance end
//
// Handlers are resolved by name on every call and never cached, so a script
// may replace them at runtime, and instance tables may share handlers
// through a metatable. Every handler is optional; an operation whose handler
// is missing answers 4.05 Method Not Allowed.
//
// Bindings follow the single-threaded contract of package script: all calls
// must come from the goroutine that owns the Lua state.
package object
