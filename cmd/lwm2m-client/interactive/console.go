// Package interactive provides the interactive command-line interface
// for lwm2m-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/sbernard31/lualwm2m/pkg/lwm2m"
	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/service"
)

// commandTimeout bounds how long a console command waits for the client
// loop.
const commandTimeout = 5 * time.Second

// Runner executes fn on the goroutine that owns the client.
type Runner interface {
	Do(ctx context.Context, fn func(*lwm2m.Client) error) error
}

// Console handles interactive mode for lwm2m-client.
type Console struct {
	runner Runner
	rl     *readline.Instance
	out    io.Writer
}

// New creates a console. Attach must be called before Run.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lwm2m> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Attach connects the console to svc and prints its events.
func (c *Console) Attach(svc *service.DeviceService) {
	c.runner = svc
	svc.OnEvent(c.handleEvent)
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use this for log output.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.execute(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// execute runs one command line. It returns false when the console
// should exit.
func (c *Console) execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "objects", "o":
		err = c.cmdObjects(ctx)
	case "read", "r":
		err = c.cmdRead(ctx, args)
	case "write", "w":
		err = c.cmdWrite(ctx, args)
	case "exec", "x":
		err = c.cmdExec(ctx, args)
	case "create":
		err = c.cmdCreate(ctx, args)
	case "delete":
		err = c.cmdDelete(ctx, args)
	case "changed", "c":
		err = c.cmdChanged(ctx, args)
	case "servers", "s":
		err = c.cmdServers(ctx)
	case "register":
		err = c.do(ctx, func(client *lwm2m.Client) error { return client.Register() })
		if err == nil {
			fmt.Fprintln(c.out, "Registration started")
		}
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
LWM2M Client Commands:
  Objects:
    objects                     - List objects and their instances
    read <uri>                  - Read an instance or a resource
    write <uri> <value>         - Write a resource
    exec <uri> [args]           - Execute a resource
    create <obj/inst> [id=val]  - Create an instance with initial values
    delete <obj/inst>           - Delete an instance
    changed <uri>               - Report a resource change to observers

  Servers:
    servers                     - List servers and their registration state
    register                    - Register with pending servers

  General:
    help                        - Show this help
    quit                        - Exit

  URI Format:
    /object/instance/resource   - e.g. /3303/0/5700`)
}

func (c *Console) do(ctx context.Context, fn func(*lwm2m.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return c.runner.Do(ctx, fn)
}

func (c *Console) cmdObjects(ctx context.Context) error {
	return c.do(ctx, func(client *lwm2m.Client) error {
		for _, obj := range client.Objects() {
			ids := obj.InstanceIDs()
			parts := make([]string, len(ids))
			for i, id := range ids {
				parts[i] = strconv.Itoa(int(id))
			}
			fmt.Fprintf(c.out, "  /%d  instances: [%s]\n", obj.ID(), strings.Join(parts, " "))
		}
		return nil
	})
}

func (c *Console) cmdRead(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: read <uri>")
	}
	uri, err := parseInstanceURI(args[0])
	if err != nil {
		return err
	}

	return c.do(ctx, func(client *lwm2m.Client) error {
		obj, ok := client.Object(uri.ObjectID)
		if !ok {
			return fmt.Errorf("unknown object %d", uri.ObjectID)
		}
		var ids []uint16
		if uri.HasResource() {
			ids = []uint16{uri.ResourceID}
		}
		records, status := obj.Read(uri.InstanceID, ids)
		fmt.Fprintf(c.out, "%s: %s\n", uri, status)
		for _, rec := range records {
			fmt.Fprintf(c.out, "  %s\n", rec)
		}
		return nil
	})
}

func (c *Console) cmdWrite(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: write <uri> <value>")
	}
	uri, err := parseResourceURI(args[0])
	if err != nil {
		return err
	}
	rec := model.Record{ID: uri.ResourceID, Value: parseValue(strings.Join(args[1:], " "))}

	return c.do(ctx, func(client *lwm2m.Client) error {
		obj, ok := client.Object(uri.ObjectID)
		if !ok {
			return fmt.Errorf("unknown object %d", uri.ObjectID)
		}
		status := obj.Write(uri.InstanceID, []model.Record{rec})
		fmt.Fprintf(c.out, "%s: %s\n", uri, status)
		return nil
	})
}

func (c *Console) cmdExec(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: exec <uri> [args]")
	}
	uri, err := parseResourceURI(args[0])
	if err != nil {
		return err
	}
	payload := []byte(strings.Join(args[1:], " "))

	return c.do(ctx, func(client *lwm2m.Client) error {
		obj, ok := client.Object(uri.ObjectID)
		if !ok {
			return fmt.Errorf("unknown object %d", uri.ObjectID)
		}
		status := obj.Execute(uri.InstanceID, uri.ResourceID, payload)
		fmt.Fprintf(c.out, "%s: %s\n", uri, status)
		return nil
	})
}

func (c *Console) cmdCreate(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: create <obj/inst> [id=value ...]")
	}
	uri, err := parseInstanceURI(args[0])
	if err != nil {
		return err
	}
	if uri.HasResource() {
		return fmt.Errorf("%s: expected an instance URI", args[0])
	}

	records := make([]model.Record, 0, len(args)-1)
	for _, arg := range args[1:] {
		key, val, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid initial value %q (expected id=value)", arg)
		}
		id, err := strconv.ParseUint(key, 10, 16)
		if err != nil || id == uint64(model.MaxID) {
			return fmt.Errorf("invalid resource id %q", key)
		}
		records = append(records, model.Record{ID: uint16(id), Value: parseValue(val)})
	}

	return c.do(ctx, func(client *lwm2m.Client) error {
		obj, ok := client.Object(uri.ObjectID)
		if !ok {
			return fmt.Errorf("unknown object %d", uri.ObjectID)
		}
		status := obj.Create(uri.InstanceID, records)
		fmt.Fprintf(c.out, "%s: %s\n", uri, status)
		return nil
	})
}

func (c *Console) cmdDelete(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: delete <obj/inst>")
	}
	uri, err := parseInstanceURI(args[0])
	if err != nil {
		return err
	}
	if uri.HasResource() {
		return fmt.Errorf("%s: expected an instance URI", args[0])
	}

	return c.do(ctx, func(client *lwm2m.Client) error {
		obj, ok := client.Object(uri.ObjectID)
		if !ok {
			return fmt.Errorf("unknown object %d", uri.ObjectID)
		}
		status := obj.Delete(uri.InstanceID)
		fmt.Fprintf(c.out, "%s: %s\n", uri, status)
		return nil
	})
}

func (c *Console) cmdChanged(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: changed <uri>")
	}
	return c.do(ctx, func(client *lwm2m.Client) error {
		if err := client.ResourceChanged(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s marked as changed\n", args[0])
		return nil
	})
}

func (c *Console) cmdServers(ctx context.Context) error {
	return c.do(ctx, func(client *lwm2m.Client) error {
		servers := client.Servers()
		if len(servers) == 0 {
			fmt.Fprintln(c.out, "No servers configured")
			return nil
		}
		for _, srv := range servers {
			addr := "-"
			if srv.Session != nil {
				addr = fmt.Sprintf("%s:%d", srv.Session.Host, srv.Session.Port)
			}
			fmt.Fprintf(c.out, "  [%d] %s %s lifetime=%s binding=%s",
				srv.ShortID, addr, srv.State, srv.Lifetime, srv.Binding)
			if srv.Location != "" {
				fmt.Fprintf(c.out, " location=%s", srv.Location)
			}
			fmt.Fprintln(c.out)
		}
		return nil
	})
}

func (c *Console) handleEvent(event service.Event) {
	switch event.Type {
	case service.EventServerStateChanged:
		fmt.Fprintf(c.out, "[EVENT] Server %d is now %s\n", event.ShortID, event.State)
	case service.EventStepFailed:
		fmt.Fprintf(c.out, "[EVENT] Step failed: %v\n", event.Error)
	case service.EventStopped:
		fmt.Fprintln(c.out, "[EVENT] Client stopped")
	}
}

// parseInstanceURI parses a URI that names at least an instance.
func parseInstanceURI(s string) (model.URI, error) {
	uri, err := model.ParseURI(s)
	if err != nil {
		return uri, err
	}
	if !uri.HasInstance() {
		return uri, fmt.Errorf("%s: expected an instance or resource URI", s)
	}
	return uri, nil
}

// parseResourceURI parses a URI that names a resource.
func parseResourceURI(s string) (model.URI, error) {
	uri, err := model.ParseURI(s)
	if err != nil {
		return uri, err
	}
	if !uri.HasResource() {
		return uri, fmt.Errorf("%s: expected a resource URI", s)
	}
	return uri, nil
}

// parseValue interprets console input as a boolean, an integer or text.
func parseValue(s string) model.Value {
	switch strings.ToLower(s) {
	case "true":
		return model.Bool(true)
	case "false":
		return model.Bool(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return model.Int(i)
	}
	return model.String(strings.Trim(s, `"`))
}
