package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// Runtime wraps goja VM with security controls
type Runtime struct {
	vm     *goja.Runtime
	config Config
	dirty  bool
	mu     sync.Mutex
}

// session is the state of one document execution
type session struct {
	vm        *goja.Runtime
	dom       *DOM
	config    Config
	emit      func([]byte)
	listeners map[string]map[string][]goja.Value // target -> event -> handlers
	proxies   map[*html.Node]*goja.Object
	console   []LogEntry
	messages  int
	timerID   int64
}

// New creates a new sandboxed runtime
func New(config Config) (*Runtime, error) {
	r := &Runtime{config: config.withDefaults()}
	r.vm = r.newVM()
	return r, nil
}

func (r *Runtime) newVM() *goja.Runtime {
	vm := goja.New()
	vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	return vm
}

// Run executes doc the way a browser would load it: every inline classic
// script in document order, then DOMContentLoaded, then load. emit receives
// each window.parent.postMessage payload as JSON.
//
// Uncaught exceptions are recorded in the result and only fail the run when
// FailOnScriptError is set. Timeouts, cancellation and panics always fail.
func (r *Runtime) Run(ctx context.Context, doc string, emit func([]byte)) (result *Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, ErrClosed
	}
	if r.dirty {
		r.vm = r.newVM()
	}
	r.dirty = true

	start := time.Now()
	result = &Result{}

	dom, err := ParseDOM(doc)
	if err != nil {
		return result, err
	}

	s := &session{
		vm:        r.vm,
		dom:       dom,
		config:    r.config,
		emit:      emit,
		listeners: map[string]map[string][]goja.Value{},
		proxies:   map[*html.Node]*goja.Object{},
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
		result.Console = s.console
		result.DOMChanges = dom.Changes()
		result.Messages = s.messages
		result.Duration = time.Since(start)
	}()

	if err := s.installGlobals(); err != nil {
		return result, fmt.Errorf("failed to install globals: %w", err)
	}

	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		timer := time.NewTimer(r.config.Timeout)
		defer timer.Stop()

		select {
		case <-timer.C:
			r.vm.Interrupt(ErrTimeout)
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-watcherDone
		r.vm.ClearInterrupt()
	}()

	for _, script := range dom.Scripts() {
		result.Scripts++
		_, runErr := r.vm.RunScript(fmt.Sprintf("script-%d", script.Index), script.Body)
		if err := s.handle(result, fmt.Sprintf("script-%d", script.Index), runErr); err != nil {
			return result, err
		}
	}

	for _, ev := range []struct{ target, event string }{
		{"document", "DOMContentLoaded"},
		{"window", "DOMContentLoaded"},
		{"window", "load"},
	} {
		for _, fn := range s.listeners[ev.target][ev.event] {
			if err := s.handle(result, "event:"+ev.event, s.call(fn, ev.event)); err != nil {
				return result, err
			}
		}
	}

	if onload := r.vm.GlobalObject().Get("onload"); onload != nil && !goja.IsUndefined(onload) && !goja.IsNull(onload) {
		if err := s.handle(result, "event:load", s.call(onload, "load")); err != nil {
			return result, err
		}
	}

	return result, nil
}

// handle classifies err from a script or listener. It returns a non-nil
// error when the run must stop.
func (s *session) handle(result *Result, source string, err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		return ErrTimeout
	}

	scriptErr := ScriptError{Source: source, Message: scriptMessage(err)}
	result.ScriptErrors = append(result.ScriptErrors, scriptErr)
	if s.config.FailOnScriptError {
		return fmt.Errorf("%w: %s", ErrScriptFailed, scriptErr.Error())
	}
	return nil
}

func scriptMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	return err.Error()
}

// call invokes a listener with a minimal event object
func (s *session) call(fn goja.Value, eventType string) error {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil
	}
	event := s.vm.NewObject()
	_ = event.Set("type", eventType)
	_ = event.Set("preventDefault", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = event.Set("stopPropagation", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	_, err := callable(goja.Undefined(), event)
	return err
}

// installGlobals configures window, document and the other host objects
func (s *session) installGlobals() error {
	vm := s.vm
	global := vm.GlobalObject()

	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	parent := vm.NewObject()
	_ = parent.Set("postMessage", s.postMessage)

	globals := map[string]interface{}{
		"window":                global,
		"self":                  global,
		"parent":                parent,
		"top":                   parent,
		"document":              s.document(),
		"navigator":             s.navigator(),
		"location":              map[string]interface{}{"href": "about:srcdoc", "protocol": "about:", "host": "", "reload": noop},
		"localStorage":          s.storage(),
		"sessionStorage":        s.storage(),
		"performance":           map[string]interface{}{"now": func() float64 { return float64(time.Now().UnixNano()) / 1e6 }},
		"innerWidth":            800,
		"innerHeight":           600,
		"devicePixelRatio":      1,
		"alert":                 noop,
		"confirm":               func(goja.FunctionCall) goja.Value { return vm.ToValue(false) },
		"prompt":                func(goja.FunctionCall) goja.Value { return goja.Null() },
		"postMessage":           noop,
		"setTimeout":            s.timer,
		"setInterval":           s.timer,
		"requestAnimationFrame": s.timer,
		"clearTimeout":          noop,
		"clearInterval":         noop,
		"cancelAnimationFrame":  noop,
		"addEventListener":      s.addListener("window"),
		"removeEventListener":   noop,
		"getComputedStyle":      func(goja.FunctionCall) goja.Value { return s.sink() },
		"matchMedia":            func(goja.FunctionCall) goja.Value { return s.sink() },
	}
	for name, value := range globals {
		if err := vm.Set(name, value); err != nil {
			return err
		}
	}

	if s.config.EnableConsole {
		console := vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info", "debug"} {
			_ = console.Set(level, s.consoleFunc(level))
		}
		return vm.Set("console", console)
	}
	return vm.Set("console", s.sink())
}

func noop(goja.FunctionCall) goja.Value {
	return goja.Undefined()
}

// postMessage forwards a JSON rendering of its first argument to the host.
// Payloads that cannot be rendered as JSON are dropped.
func (s *session) postMessage(call goja.FunctionCall) goja.Value {
	data := call.Argument(0)
	if goja.IsUndefined(data) || goja.IsNull(data) {
		return goja.Undefined()
	}
	raw, err := sonic.Marshal(data.Export())
	if err != nil {
		return goja.Undefined()
	}
	s.messages++
	if s.emit != nil {
		s.emit(raw)
	}
	return goja.Undefined()
}

// timer accepts a callback but never schedules it; it returns a handle so
// scripts that keep timer ids still work.
func (s *session) timer(goja.FunctionCall) goja.Value {
	s.timerID++
	return s.vm.ToValue(s.timerID)
}

func (s *session) addListener(target string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).String()
		if _, ok := goja.AssertFunction(call.Argument(1)); !ok {
			return goja.Undefined()
		}
		if s.listeners[target] == nil {
			s.listeners[target] = map[string][]goja.Value{}
		}
		s.listeners[target][event] = append(s.listeners[target][event], call.Argument(1))
		return goja.Undefined()
	}
}

func (s *session) document() *goja.Object {
	vm := s.vm
	dom := s.dom
	doc := vm.NewObject()

	_ = doc.Set("addEventListener", s.addListener("document"))
	_ = doc.Set("removeEventListener", noop)
	_ = doc.Set("readyState", "loading")
	_ = doc.Set("title", dom.Title())
	_ = doc.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return s.elementValue(dom.Query(call.Argument(0).String()).First())
	})
	_ = doc.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return s.elementArray(dom.Query(call.Argument(0).String()))
	})
	_ = doc.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		return s.elementValue(dom.ByID(call.Argument(0).String()))
	})
	_ = doc.Set("getElementsByClassName", func(call goja.FunctionCall) goja.Value {
		classes := strings.Fields(call.Argument(0).String())
		if len(classes) == 0 {
			return vm.NewArray()
		}
		return s.elementArray(dom.Query("." + strings.Join(classes, ".")))
	})
	_ = doc.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return s.elementArray(dom.Query(call.Argument(0).String()))
	})
	_ = doc.Set("createElement", func(call goja.FunctionCall) goja.Value {
		return s.elementValue(dom.CreateElement(call.Argument(0).String()))
	})
	_ = doc.Set("createTextNode", func(call goja.FunctionCall) goja.Value {
		return s.sink()
	})

	for name, sel := range map[string]func() goja.Value{
		"body":            func() goja.Value { return s.elementValue(dom.Body()) },
		"head":            func() goja.Value { return s.elementValue(dom.Head()) },
		"documentElement": func() goja.Value { return s.elementValue(dom.Root()) },
	} {
		getter := sel
		_ = doc.DefineAccessorProperty(name,
			vm.ToValue(func(goja.FunctionCall) goja.Value { return getter() }),
			nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}

	return doc
}

func (s *session) navigator() map[string]interface{} {
	return map[string]interface{}{
		"userAgent":      s.config.UserAgent,
		"platform":       "",
		"language":       "zh-CN",
		"languages":      []interface{}{"zh-CN", "en"},
		"maxTouchPoints": 0,
		"onLine":         false,
	}
}

// storage is an in-memory Web Storage
func (s *session) storage() *goja.Object {
	vm := s.vm
	items := map[string]string{}
	obj := vm.NewObject()
	_ = obj.Set("getItem", func(call goja.FunctionCall) goja.Value {
		if v, ok := items[call.Argument(0).String()]; ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = obj.Set("setItem", func(call goja.FunctionCall) goja.Value {
		items[call.Argument(0).String()] = call.Argument(1).String()
		return goja.Undefined()
	})
	_ = obj.Set("removeItem", func(call goja.FunctionCall) goja.Value {
		delete(items, call.Argument(0).String())
		return goja.Undefined()
	})
	_ = obj.Set("clear", func(goja.FunctionCall) goja.Value {
		clear(items)
		return goja.Undefined()
	})
	return obj
}

// consoleFunc creates a console function
func (s *session) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		s.console = append(s.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		return goja.Undefined()
	}
}

// Reset prepares a fresh VM for the next run
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return ErrClosed
	}
	r.vm = r.newVM()
	r.dirty = false
	return nil
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	return nil
}
