// Package scripting runs document JavaScript with goja.
//
// Scripts see a small viewer object model: app.alert, numPages and pageNum
// on the global object. Execution is bounded by the caller's context.
package scripting

import (
	"context"
	"errors"
	"sync"

	"github.com/dop251/goja"
)

// ErrDisabled is returned by Execute after Close.
var ErrDisabled = errors.New("scripting disabled")

// Host is the viewer side of the object model. Calls arrive on the
// goroutine running Execute.
type Host interface {
	Alert(message string)
	PageCount() int
	PageNumber() int
	GoToPage(index int)
}

// Engine wraps one goja runtime. It is not safe for concurrent Execute
// calls; Close may be called from any goroutine.
type Engine struct {
	vm *goja.Runtime

	mu       sync.Mutex
	disabled bool
}

// New builds a runtime bound to host.
func New(host Host) (*Engine, error) {
	e := &Engine{vm: goja.New()}
	if err := e.register(host); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) register(host Host) error {
	app := e.vm.NewObject()
	err := app.Set("alert", func(call goja.FunctionCall) goja.Value {
		msg := ""
		if len(call.Arguments) > 0 {
			msg = call.Arguments[0].String()
		}
		host.Alert(msg)
		return goja.Undefined()
	})
	if err != nil {
		return err
	}
	if err := app.Set("viewerType", "folio"); err != nil {
		return err
	}
	if err := e.vm.Set("app", app); err != nil {
		return err
	}

	global := e.vm.GlobalObject()
	noop := e.vm.ToValue(func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	err = global.DefineAccessorProperty("numPages",
		e.vm.ToValue(func(goja.FunctionCall) goja.Value {
			return e.vm.ToValue(host.PageCount())
		}),
		noop,
		goja.FLAG_TRUE,
		goja.FLAG_TRUE,
	)
	if err != nil {
		return err
	}
	return global.DefineAccessorProperty("pageNum",
		e.vm.ToValue(func(goja.FunctionCall) goja.Value {
			return e.vm.ToValue(host.PageNumber())
		}),
		e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				host.GoToPage(int(call.Arguments[0].ToInteger()))
			}
			return goja.Undefined()
		}),
		goja.FLAG_TRUE,
		goja.FLAG_TRUE,
	)
}

// Execute runs script, interrupting it when ctx is done.
func (e *Engine) Execute(ctx context.Context, script string) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	disabled := e.disabled
	e.mu.Unlock()
	if disabled {
		return nil, ErrDisabled
	}

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := e.vm.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok && cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return val.Export(), nil
}

// Close interrupts any running script and rejects later executions.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disabled {
		return
	}
	e.disabled = true
	e.vm.Interrupt(ErrDisabled)
}

// Disabled reports whether Close was called.
func (e *Engine) Disabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabled
}
