package main

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/extbind/examples/classes"
	"github.com/wippyai/extbind/foreign"
	"github.com/wippyai/extbind/wasmhost"
)

// Guest memory layout used by the demo.
const (
	nameOffset   = 0
	stringOffset = 1024
	stringCap    = 256
	methodOffset = 2048
)

func runWasm(styled bool) error {
	ctx := context.Background()

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	bridge := wasmhost.New(1, foreign.New())
	if err := classes.RegisterAll(bridge.Registry()); err != nil {
		return fmt.Errorf("register classes: %w", err)
	}
	if _, err := bridge.Instantiate(ctx, rt); err != nil {
		return err
	}

	guest, err := rt.InstantiateWithConfig(ctx, wasmhost.ForwardingGuest(),
		wazero.NewModuleConfig().WithName("guest"))
	if err != nil {
		return fmt.Errorf("instantiate guest: %w", err)
	}
	defer guest.Close(ctx)

	out := newPrinter(styled)
	fmt.Fprintln(out.w, out.render(titleStyle, "WebAssembly guest"))
	fmt.Fprintln(out.w)

	d := &driver{ctx: ctx, mod: guest}
	for _, ci := range bridge.Registry().Classes() {
		fmt.Fprintln(out.w, out.render(classStyle, ci.Name))
		lines, err := d.lifecycle(ci.Name)
		for _, l := range lines {
			fmt.Fprintln(out.w, "  "+out.render(resultStyle, l))
		}
		if err != nil {
			out.failure(err)
		}
	}
	return nil
}

// driver calls the guest's forwarding exports.
type driver struct {
	ctx context.Context
	mod api.Module
}

func (d *driver) call(name string, params ...uint64) (uint64, error) {
	fn := d.mod.ExportedFunction(name)
	if fn == nil {
		return 0, fmt.Errorf("guest does not export %s", name)
	}
	res, err := fn.Call(d.ctx, params...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

func (d *driver) put(offset uint32, s string) (uint64, uint64, error) {
	if !d.mod.Memory().Write(offset, []byte(s)) {
		return 0, 0, fmt.Errorf("guest memory too small for %q", s)
	}
	return api.EncodeU32(offset), api.EncodeU32(uint32(len(s))), nil
}

func (d *driver) lifecycle(className string) ([]string, error) {
	var lines []string

	ptr, n, err := d.put(nameOffset, className)
	if err != nil {
		return lines, err
	}
	id, err := d.call("class_id", ptr, n)
	if err != nil {
		return lines, err
	}
	if id == 0 {
		return lines, fmt.Errorf("class %s unknown to the bridge", className)
	}
	lines = append(lines, fmt.Sprintf("class_id -> %d", id))

	obj, err := d.call("create_instance", id)
	if err != nil {
		return lines, err
	}
	inst, err := d.call("instance_of", obj)
	if err != nil {
		return lines, err
	}
	lines = append(lines, fmt.Sprintf("create_instance -> object %#x, instance %#x", obj, inst))

	for _, op := range []string{"reference", "unreference"} {
		if _, err := d.call(op, id, inst); err != nil {
			return lines, err
		}
		lines = append(lines, op)
	}

	ptr, n, err = d.put(methodOffset, "_ready")
	if err != nil {
		return lines, err
	}
	found, err := d.call("call_virtual", id, inst, ptr, n)
	if err != nil {
		return lines, err
	}
	lines = append(lines, fmt.Sprintf("call_virtual(_ready) -> %d", found))

	res, err := d.call("to_string", id, inst, stringOffset, stringCap)
	if err != nil {
		return lines, err
	}
	if length := api.DecodeI32(res); length < 0 {
		lines = append(lines, "to_string -> not implemented")
	} else {
		data, _ := d.mod.Memory().Read(stringOffset, min(uint32(length), stringCap))
		lines = append(lines, fmt.Sprintf("to_string -> %q", data))
	}

	if _, err := d.call("free_instance", id, inst); err != nil {
		return lines, err
	}
	lines = append(lines, "free_instance")
	return lines, nil
}
