package classdb

import (
	"runtime"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wippyai/extbind/abi"
	"github.com/wippyai/extbind/class"
	"github.com/wippyai/extbind/dispatch"
	"github.com/wippyai/extbind/errors"
	"github.com/wippyai/extbind/storage"
)

// buildCreationInfo assembles the callback table for T.
func buildCreationInfo[T any, PT interface {
	*T
	class.ExtensionClass
}](r *Registry, name, parent, goType string) (*abi.ClassCreationInfo, error) {
	proto := PT(new(T))

	info := &abi.ClassCreationInfo{
		ReferenceFunc: func(instance abi.ClassInstancePtr) {
			storage.As[T](r.table, instance).IncRef()
		},
		UnreferenceFunc: func(instance abi.ClassInstancePtr) {
			storage.As[T](r.table, instance).DecRef()
		},
		CreateInstanceFunc: func(abi.Userdata) abi.ObjectPtr {
			return createInstance[T, PT](r, name, parent)
		},
		FreeInstanceFunc: func(_ abi.Userdata, instance abi.ClassInstancePtr) {
			storage.Free[T](r.table, instance)
			Logger().Debug("instance freed",
				zap.String("class", name),
				zap.Stringer("instance", instance))
		},
		GetVirtualFunc: func(_ abi.Userdata, method *byte) abi.CallVirtual {
			return getVirtual[T, PT](method)
		},
	}

	if proto.HasToString() {
		if _, ok := any(proto).(class.Stringer); !ok {
			return nil, errors.New(errors.PhaseRegister, errors.KindContract).
				Class(name).
				GoType(goType).
				Detail("declares string conversion without ToString").
				Build()
		}
		info.ToStringFunc = func(instance abi.ClassInstancePtr, out abi.StringPtr) {
			s := storage.As[T](r.table, instance)
			str := abi.NewString(any(s.Get()).(class.Stringer).ToString())
			s.Touch(storage.EventStringified)
			str.IntoForeign(r.iface, out)
		}
	}

	return info, nil
}

// createInstance allocates the foreign base object, binds a freshly
// default-constructed T to it and returns the base object.
func createInstance[T any, PT interface {
	*T
	class.ExtensionClass
}](r *Registry, name, parent string) abi.ObjectPtr {
	className := abi.NewCString(name)
	parentName := abi.NewCString(parent)

	base := r.iface.ClassDBConstructObject(parentName.Ptr())
	s := storage.ConstructDefault[T, PT](r.table, name, base)
	instance := s.IntoRaw()

	r.iface.ObjectSetInstance(base, className.Ptr(), instance)

	callbacks := abi.NopBindingCallbacks()
	r.iface.ObjectSetInstanceBinding(base, r.lib, instance, &callbacks)

	runtime.KeepAlive(className)
	runtime.KeepAlive(parentName)

	Logger().Debug("instance created",
		zap.String("class", name),
		zap.Stringer("base", base),
		zap.Stringer("instance", instance))

	return base
}

// getVirtual decodes the foreign method name and delegates to T's resolver.
func getVirtual[T any, PT interface {
	*T
	class.ExtensionClass
}](method *byte) abi.CallVirtual {
	raw := abi.CBytes(method)
	if !utf8.Valid(raw) {
		errors.Fatal(errors.InvalidUTF8(errors.PhaseDispatch, raw))
	}
	fn, _ := dispatch.Resolve[T, PT](string(raw))
	return fn
}
