// Package luabind exposes the LWM2M client to Lua scripts.
//
// Preload registers a "lwm2m" module:
//
//	local lwm2m = require("lwm2m")
//	local client = lwm2m.init("my-device", { device, location },
//	  function(data, host, port) socket:sendto(data, host, port) end)
//	client:addserver(123, "127.0.0.1", 5683, 300, "", "U")
//	client:register()
//	while true do
//	  local data, host, port = socket:receivefrom(client:step(1))
//	  if data then client:handle(data, host, port) end
//	end
//
// PreloadUDP registers a minimal "udp" module so a script can own its
// socket loop.
package luabind
