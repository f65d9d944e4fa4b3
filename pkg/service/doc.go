// Package service runs an LWM2M client whose objects are defined by a Lua
// script.
//
// DeviceService owns the Lua state, the UDP socket and the client. All
// client and script calls happen on the goroutine running Run: a reader
// goroutine only moves datagrams into a channel, and callers reach the
// client through Do.
//
// Example usage:
//
//	cfg, _ := config.Load("device.yaml")
//	svc, err := service.NewDeviceService(*cfg, service.WithLogger(logger))
//	if err := svc.Start(ctx); err != nil { ... }
//	defer svc.Stop()
//	go svc.Run(ctx)
//
//	svc.Do(ctx, func(c *lwm2m.Client) error {
//		return c.ResourceChanged("/3303/0/5700")
//	})
//
// # Events
//
// Handlers registered with OnEvent are called on the loop goroutine when the
// service starts or stops and when a server's registration state changes.
package service
