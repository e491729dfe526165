package sandbox

import (
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
)

// element is the script-visible view of one DOM node
type element struct {
	s         *session
	sel       *goquery.Selection
	style     *goja.Object
	classList *goja.Object
	extra     map[string]goja.Value
}

// elementValue returns the proxy for sel, reusing one object per node so
// identity comparisons in scripts hold.
func (s *session) elementValue(sel *goquery.Selection) goja.Value {
	if sel == nil || sel.Length() == 0 {
		return goja.Null()
	}
	node := sel.Get(0)
	if obj, ok := s.proxies[node]; ok {
		return obj
	}

	e := &element{s: s, sel: sel.First(), extra: map[string]goja.Value{}}
	e.style = s.vm.NewDynamicObject(&styleDecl{e: e, values: map[string]goja.Value{}})
	e.classList = e.newClassList()

	obj := s.vm.NewDynamicObject(e)
	s.proxies[node] = obj
	return obj
}

func (s *session) elementArray(sel *goquery.Selection) goja.Value {
	items := make([]interface{}, 0, sel.Length())
	sel.Each(func(_ int, child *goquery.Selection) {
		items = append(items, s.elementValue(child))
	})
	return s.vm.NewArray(items...)
}

func (e *element) Get(key string) goja.Value {
	vm := e.s.vm
	switch key {
	case "tagName", "nodeName":
		return vm.ToValue(strings.ToUpper(goquery.NodeName(e.sel)))
	case "id":
		return vm.ToValue(e.sel.AttrOr("id", ""))
	case "className":
		return vm.ToValue(e.sel.AttrOr("class", ""))
	case "textContent", "innerText":
		return vm.ToValue(e.sel.Text())
	case "innerHTML":
		h, _ := e.sel.Html()
		return vm.ToValue(h)
	case "style":
		return e.style
	case "classList":
		return e.classList
	case "parentNode", "parentElement":
		return e.s.elementValue(e.sel.Parent())
	case "children":
		return e.s.elementArray(e.sel.Children())
	case "width", "height":
		if v, ok := e.extra[key]; ok {
			return v
		}
		n, _ := strconv.Atoi(e.sel.AttrOr(key, "0"))
		return vm.ToValue(n)
	case "clientWidth", "clientHeight", "offsetWidth", "offsetHeight", "scrollTop", "scrollLeft":
		if v, ok := e.extra[key]; ok {
			return v
		}
		return vm.ToValue(0)
	}

	if v, ok := e.extra[key]; ok {
		return v
	}
	if fn := e.method(key); fn != nil {
		return vm.ToValue(fn)
	}
	return goja.Undefined()
}

func (e *element) method(key string) func(goja.FunctionCall) goja.Value {
	s := e.s
	vm := s.vm
	switch key {
	case "getAttribute":
		return func(call goja.FunctionCall) goja.Value {
			if v, ok := e.sel.Attr(call.Argument(0).String()); ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		}
	case "setAttribute":
		return func(call goja.FunctionCall) goja.Value {
			name, value := call.Argument(0).String(), call.Argument(1).String()
			e.sel.SetAttr(name, value)
			e.record("attr:"+name, value)
			return goja.Undefined()
		}
	case "hasAttribute":
		return func(call goja.FunctionCall) goja.Value {
			_, ok := e.sel.Attr(call.Argument(0).String())
			return vm.ToValue(ok)
		}
	case "removeAttribute":
		return func(call goja.FunctionCall) goja.Value {
			e.sel.RemoveAttr(call.Argument(0).String())
			return goja.Undefined()
		}
	case "querySelector":
		return func(call goja.FunctionCall) goja.Value {
			return s.elementValue(e.sel.Find(call.Argument(0).String()).First())
		}
	case "querySelectorAll":
		return func(call goja.FunctionCall) goja.Value {
			return s.elementArray(e.sel.Find(call.Argument(0).String()))
		}
	case "appendChild", "insertBefore", "removeChild", "replaceChild":
		return func(call goja.FunctionCall) goja.Value {
			return call.Argument(0)
		}
	case "getContext":
		return func(goja.FunctionCall) goja.Value {
			return s.sink()
		}
	case "getBoundingClientRect":
		return func(goja.FunctionCall) goja.Value {
			return vm.ToValue(map[string]interface{}{
				"left": 0, "top": 0, "right": 0, "bottom": 0, "width": 0, "height": 0, "x": 0, "y": 0,
			})
		}
	case "addEventListener", "removeEventListener", "focus", "blur", "click", "remove", "scrollIntoView",
		"requestFullscreen", "dispatchEvent":
		return func(goja.FunctionCall) goja.Value {
			return goja.Undefined()
		}
	}
	return nil
}

func (e *element) Set(key string, val goja.Value) bool {
	switch key {
	case "textContent", "innerText":
		e.sel.SetText(val.String())
		e.record(key, val.String())
	case "innerHTML":
		e.sel.SetHtml(val.String())
		e.record(key, val.String())
	case "id":
		e.sel.SetAttr("id", val.String())
		e.record("attr:id", val.String())
	case "className":
		e.sel.SetAttr("class", val.String())
		e.record("attr:class", val.String())
	case "style", "classList", "tagName", "nodeName", "parentNode", "parentElement", "children":
		return false
	default:
		e.extra[key] = val
	}
	return true
}

func (e *element) Has(key string) bool {
	if _, ok := e.extra[key]; ok {
		return true
	}
	return !goja.IsUndefined(e.Get(key))
}

func (e *element) Delete(key string) bool {
	delete(e.extra, key)
	return true
}

func (e *element) Keys() []string {
	keys := make([]string, 0, len(e.extra))
	for k := range e.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *element) record(property string, value interface{}) {
	e.s.dom.RecordChange(DOMChange{Selector: describe(e.sel), Property: property, Value: value})
}

func (e *element) newClassList() *goja.Object {
	vm := e.s.vm
	list := vm.NewObject()
	_ = list.Set("add", func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			e.sel.AddClass(arg.String())
		}
		return goja.Undefined()
	})
	_ = list.Set("remove", func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			e.sel.RemoveClass(arg.String())
		}
		return goja.Undefined()
	})
	_ = list.Set("toggle", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		e.sel.ToggleClass(name)
		return vm.ToValue(e.sel.HasClass(name))
	})
	_ = list.Set("contains", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(e.sel.HasClass(call.Argument(0).String()))
	})
	return list
}

// styleDecl is an element's inline style; writes are recorded as changes
type styleDecl struct {
	e      *element
	values map[string]goja.Value
}

func (d *styleDecl) Get(key string) goja.Value {
	if v, ok := d.values[key]; ok {
		return v
	}
	return d.e.s.vm.ToValue("")
}

func (d *styleDecl) Set(key string, val goja.Value) bool {
	d.values[key] = val
	d.e.record("style."+key, val.Export())
	return true
}

func (d *styleDecl) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

func (d *styleDecl) Delete(key string) bool {
	delete(d.values, key)
	return true
}

func (d *styleDecl) Keys() []string {
	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lenient absorbs any use: unknown properties are functions returning the
// object itself, so drawing APIs and chained calls never throw.
type lenient struct {
	s      *session
	self   *goja.Object
	values map[string]goja.Value
}

func (s *session) sink() *goja.Object {
	l := &lenient{s: s, values: map[string]goja.Value{}}
	l.self = s.vm.NewDynamicObject(l)
	return l.self
}

func (l *lenient) Get(key string) goja.Value {
	if v, ok := l.values[key]; ok {
		return v
	}
	return l.s.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return l.self
	})
}

func (l *lenient) Set(key string, val goja.Value) bool {
	l.values[key] = val
	return true
}

func (l *lenient) Has(string) bool { return true }

func (l *lenient) Delete(key string) bool {
	delete(l.values, key)
	return true
}

func (l *lenient) Keys() []string {
	keys := make([]string, 0, len(l.values))
	for k := range l.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
