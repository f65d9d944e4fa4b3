package object

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/script"
	"github.com/sbernard31/lualwm2m/pkg/wire"
)

// Handler names looked up on script tables.
const (
	HandlerList    = "list"
	HandlerType    = "type"
	HandlerRead    = "read"
	HandlerWrite   = "write"
	HandlerExecute = "execute"
	HandlerCreate  = "create"
	HandlerDelete  = "delete"
)

// ErrNilTable is returned when binding a nil table.
var ErrNilTable = errors.New("object table is nil")

// Observer receives the outcome of every operation a Binding serves.
type Observer interface {
	ObserveOperation(objectID uint16, op wire.Operation, status wire.Status, elapsed time.Duration)
}

// Option configures a Binding.
type Option func(*Binding)

// WithLogger sets the logger for operation tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binding) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver sets the operation observer.
func WithObserver(o Observer) Option {
	return func(b *Binding) {
		b.observer = o
	}
}

// Binding adapts one script object table to the engine's object contract.
// Every operation is synchronous and reports its outcome as a status code;
// script failures never escape as Go errors.
type Binding struct {
	id       uint16
	object   *script.Object
	dir      *Directory
	logger   *slog.Logger
	observer Observer
}

// Bind wraps table as object objectID. The instance directory is built from
// the numeric keys present in table at this point.
func Bind(L *lua.LState, table *lua.LTable, objectID uint16, opts ...Option) (*Binding, error) {
	if table == nil {
		return nil, fmt.Errorf("bind object %d: %w", objectID, ErrNilTable)
	}

	b := &Binding{
		id:     objectID,
		object: script.NewObject(L, table),
		dir:    NewDirectory(script.NumericKeys(table)...),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.logger.Debug("object bound", "object", objectID, "instances", b.dir.IDs())
	return b, nil
}

// ID returns the object ID.
func (b *Binding) ID() uint16 {
	return b.id
}

// InstanceIDs returns the known instance IDs in ascending order.
func (b *Binding) InstanceIDs() []uint16 {
	return b.dir.IDs()
}

// HasInstance reports whether instanceID is in the directory.
func (b *Binding) HasInstance(instanceID uint16) bool {
	return b.dir.Contains(instanceID)
}

// Closed reports whether Close was called.
func (b *Binding) Closed() bool {
	return b.object.Released()
}

// Read returns the requested resources of an instance.
//
// With no resource IDs every resource reported by the instance's list
// handler is read; resources that fail are skipped and the result is
// Content. With explicit IDs the first failure aborts the read and its
// status is returned without records.
func (b *Binding) Read(instanceID uint16, resourceIDs []uint16) ([]model.Record, wire.Status) {
	start := time.Now()
	records, status := b.read(instanceID, resourceIDs)
	b.observe(wire.OpRead, instanceID, status, start)
	return records, status
}

func (b *Binding) read(instanceID uint16, resourceIDs []uint16) ([]model.Record, wire.Status) {
	instance, ok := b.resolve(instanceID)
	if !ok {
		return nil, wire.StatusNotFound
	}
	if !b.has(instance, HandlerRead) {
		return nil, wire.StatusMethodNotAllowed
	}

	if len(resourceIDs) == 0 {
		ids, status := b.list(instance)
		if status != wire.StatusContent {
			return nil, status
		}
		records := make([]model.Record, 0, len(ids))
		for _, id := range ids {
			rec, status := b.readResource(instance, id)
			if status != wire.StatusContent {
				b.logger.Debug("skipping unreadable resource",
					"object", b.id, "instance", instanceID, "resource", id, "status", status)
				continue
			}
			records = append(records, rec)
		}
		return records, wire.StatusContent
	}

	records := make([]model.Record, 0, len(resourceIDs))
	for _, id := range resourceIDs {
		rec, status := b.readResource(instance, id)
		if status != wire.StatusContent {
			return nil, status
		}
		records = append(records, rec)
	}
	return records, wire.StatusContent
}

// ResourceIDs returns the resource IDs the instance's list handler reports.
func (b *Binding) ResourceIDs(instanceID uint16) ([]uint16, wire.Status) {
	instance, ok := b.resolve(instanceID)
	if !ok {
		return nil, wire.StatusNotFound
	}
	return b.list(instance)
}

func (b *Binding) list(instance *lua.LTable) ([]uint16, wire.Status) {
	results, err := b.call(instance, HandlerList, 1)
	if err != nil {
		return nil, wire.StatusInternalServerError
	}
	t, ok := results[0].(*lua.LTable)
	if !ok {
		return nil, wire.StatusInternalServerError
	}
	return script.NumericValues(t), wire.StatusContent
}

func (b *Binding) readResource(instance *lua.LTable, resourceID uint16) (model.Record, wire.Status) {
	results, err := b.call(instance, HandlerRead, 2, lua.LNumber(resourceID))
	if err != nil {
		return model.Record{}, wire.StatusInternalServerError
	}
	status, ok := script.StatusOf(results[0])
	if !ok {
		return model.Record{}, wire.StatusInternalServerError
	}
	if status != wire.StatusContent {
		return model.Record{}, status
	}

	rec, err := DecodeRecord(resourceID, results[1], model.TypeUnknown)
	if err != nil {
		return model.Record{}, StatusFor(err)
	}
	return rec, wire.StatusContent
}

// Write delivers records to the instance's write handler in order and stops
// at the first status other than Changed.
func (b *Binding) Write(instanceID uint16, records []model.Record) wire.Status {
	start := time.Now()
	status := b.write(instanceID, records)
	b.observe(wire.OpWrite, instanceID, status, start)
	return status
}

func (b *Binding) write(instanceID uint16, records []model.Record) wire.Status {
	instance, ok := b.resolve(instanceID)
	if !ok {
		return wire.StatusNotFound
	}
	if !b.has(instance, HandlerWrite) {
		return wire.StatusMethodNotAllowed
	}

	for _, rec := range records {
		if status := b.writeResource(instance, rec); status != wire.StatusChanged {
			return status
		}
	}
	return wire.StatusChanged
}

func (b *Binding) writeResource(instance *lua.LTable, rec model.Record) wire.Status {
	declared, status := b.resourceType(instance, rec.ID)
	if status != wire.StatusNoError {
		return status
	}

	value, err := Encode(b.object.L, rec.Value, declared)
	if err != nil {
		return StatusFor(err)
	}

	results, err := b.call(instance, HandlerWrite, 1, lua.LNumber(rec.ID), value)
	if err != nil {
		return wire.StatusInternalServerError
	}
	status, ok := script.StatusOf(results[0])
	if !ok {
		return wire.StatusInternalServerError
	}
	return status
}

// resourceType asks the instance's type handler for the declared type.
// A missing handler means the value is passed in its own kind.
func (b *Binding) resourceType(instance *lua.LTable, resourceID uint16) (model.ResourceType, wire.Status) {
	if !b.has(instance, HandlerType) {
		return model.TypeUnknown, wire.StatusNoError
	}
	results, err := b.call(instance, HandlerType, 1, lua.LNumber(resourceID))
	if err != nil {
		return model.TypeUnknown, wire.StatusInternalServerError
	}
	switch tag := results[0].(type) {
	case lua.LNumber:
		n, _ := script.ToInt64(tag)
		return model.ResourceTypeFromNumber(n), wire.StatusNoError
	case lua.LString:
		return model.ParseResourceType(string(tag)), wire.StatusNoError
	default:
		return model.TypeUnknown, wire.StatusNoError
	}
}

// Execute runs an executable resource of the default instance. The payload
// is passed to the handler only when it is not empty.
func (b *Binding) Execute(instanceID, resourceID uint16, payload []byte) wire.Status {
	start := time.Now()
	status := b.execute(instanceID, resourceID, payload)
	b.observe(wire.OpExecute, instanceID, status, start)
	return status
}

func (b *Binding) execute(instanceID, resourceID uint16, payload []byte) wire.Status {
	instance, ok := b.resolve(instanceID)
	if !ok {
		return wire.StatusNotFound
	}
	if instanceID != model.DefaultInstanceID {
		return wire.StatusNotImplemented
	}
	if !b.has(instance, HandlerExecute) {
		return wire.StatusMethodNotAllowed
	}

	args := []lua.LValue{lua.LNumber(resourceID)}
	if len(payload) > 0 {
		args = append(args, lua.LString(payload))
	}
	results, err := b.call(instance, HandlerExecute, 1, args...)
	if err != nil {
		return wire.StatusInternalServerError
	}
	status, ok := script.StatusOf(results[0])
	if !ok {
		return wire.StatusInternalServerError
	}
	return status
}

// Create adds instance instanceID and writes its initial records.
//
// The ID enters the directory before the script's create handler runs so
// the handler and the initial write can address it. A create status other
// than Created removes it again. A failing initial write deletes the new
// instance, drops the instance table adopted from the handler and returns
// the write's status instead of Created.
func (b *Binding) Create(instanceID uint16, records []model.Record) wire.Status {
	start := time.Now()
	status := b.create(instanceID, records)
	b.observe(wire.OpCreate, instanceID, status, start)
	return status
}

func (b *Binding) create(instanceID uint16, records []model.Record) wire.Status {
	table := b.object.Table()
	if table == nil {
		return wire.StatusInternalServerError
	}
	if !b.has(table, HandlerCreate) {
		return wire.StatusMethodNotAllowed
	}

	// Register the instance before the script sees it
	inserted := !b.dir.Contains(instanceID)
	b.dir.Add(instanceID)
	rollback := func() {
		if inserted {
			b.dir.Remove(instanceID)
		}
	}

	results, err := b.call(table, HandlerCreate, 2, lua.LNumber(instanceID))
	if err != nil {
		rollback()
		return wire.StatusInternalServerError
	}
	status, ok := script.StatusOf(results[0])
	if !ok {
		rollback()
		return wire.StatusInternalServerError
	}
	if status != wire.StatusCreated {
		rollback()
		return status
	}

	// Adopt the returned instance unless the handler stored one itself
	adopted := false
	if created, ok := results[1].(*lua.LTable); ok {
		if table.RawGet(lua.LNumber(instanceID)) == lua.LNil {
			table.RawSet(lua.LNumber(instanceID), created)
			adopted = true
		}
	}

	if len(records) == 0 {
		return wire.StatusCreated
	}
	if status := b.write(instanceID, records); status != wire.StatusChanged {
		b.logger.Debug("initial write failed, rolling back create",
			"object", b.id, "instance", instanceID, "status", status)
		b.delete(instanceID)
		if adopted {
			table.RawSet(lua.LNumber(instanceID), lua.LNil)
		}
		return status
	}
	return wire.StatusCreated
}

// Delete removes an instance. The directory entry is removed before the
// script's delete handler runs and stays removed whatever the handler
// returns.
func (b *Binding) Delete(instanceID uint16) wire.Status {
	start := time.Now()
	status := b.delete(instanceID)
	b.observe(wire.OpDelete, instanceID, status, start)
	return status
}

func (b *Binding) delete(instanceID uint16) wire.Status {
	if !b.dir.Remove(instanceID) {
		return wire.StatusNotFound
	}

	instance, ok := b.instanceTable(instanceID)
	if !ok {
		return wire.StatusInternalServerError
	}
	if !b.has(instance, HandlerDelete) {
		return wire.StatusMethodNotAllowed
	}

	results, err := b.call(instance, HandlerDelete, 1)
	if err != nil {
		return wire.StatusInternalServerError
	}
	status, ok := script.StatusOf(results[0])
	if !ok {
		return wire.StatusInternalServerError
	}
	return status
}

// Close releases the reference to the script table. Further operations
// answer with an error status. Close may be called more than once.
func (b *Binding) Close() {
	if b.object.Released() {
		return
	}
	b.object.Release()
	b.logger.Debug("object closed", "object", b.id)
}

// resolve finds an instance known to the directory.
func (b *Binding) resolve(instanceID uint16) (*lua.LTable, bool) {
	if !b.dir.Contains(instanceID) {
		return nil, false
	}
	return b.instanceTable(instanceID)
}

func (b *Binding) instanceTable(instanceID uint16) (*lua.LTable, bool) {
	t, ok := b.object.Get(lua.LNumber(instanceID)).(*lua.LTable)
	return t, ok
}

func (b *Binding) has(self *lua.LTable, name string) bool {
	return script.HasHandler(b.object.L, self, name)
}

func (b *Binding) call(self *lua.LTable, name string, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	results, err := script.Call(b.object.L, self, name, nret, args...)
	if err != nil {
		b.logger.Debug("handler call failed", "object", b.id, "handler", name, "error", err)
	}
	return results, err
}

func (b *Binding) observe(op wire.Operation, instanceID uint16, status wire.Status, start time.Time) {
	elapsed := time.Since(start)
	b.logger.Debug("object operation",
		"object", b.id, "instance", instanceID, "operation", op, "status", status, "elapsed", elapsed)
	if b.observer != nil {
		b.observer.ObserveOperation(b.id, op, status, elapsed)
	}
}
