package cache

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"time"
)

var timeType = reflect.TypeFor[time.Time]()

// canonicalKey produces a deterministic byte form of a key:
//
//	["<tenant>","<principal>",[<type>(<value>),...]]
//
// Component type names are part of the form so that int(1) and float64(1)
// address different slots. Values are walked by reflection, unexported
// struct fields and pointees included, so the form is as discriminating as
// the value itself.
func canonicalKey(k *Key) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.WriteString(strconv.Quote(k.tenantID))
	buf.WriteByte(',')
	buf.WriteString(strconv.Quote(k.principalID))
	buf.WriteString(",[")
	for i, c := range k.components {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeComponent(&buf, c)
	}
	buf.WriteString("]]")
	return buf.Bytes()
}

func writeComponent(buf *bytes.Buffer, c any) {
	w := canonicalWriter{buf: buf}
	w.tagged(reflect.ValueOf(c))
}

func componentForm(c any) string {
	var buf bytes.Buffer
	writeComponent(&buf, c)
	return buf.String()
}

type canonicalWriter struct {
	buf *bytes.Buffer
	// Pointers on the current path; a repeat is a cycle.
	path []uintptr
}

// tagged writes the dynamic type ahead of the value.
func (w *canonicalWriter) tagged(v reflect.Value) {
	if !v.IsValid() {
		w.buf.WriteString("nil")
		return
	}
	w.buf.WriteString(v.Type().String())
	w.buf.WriteByte('(')
	w.value(v)
	w.buf.WriteByte(')')
}

func (w *canonicalWriter) value(v reflect.Value) {
	b := w.buf
	switch v.Kind() {
	case reflect.Bool:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		w.float(v.Float(), v.Type().Bits())
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		bits := v.Type().Bits() / 2
		w.float(real(c), bits)
		b.WriteByte('+')
		w.float(imag(c), bits)
		b.WriteByte('i')
	case reflect.String:
		b.WriteString(strconv.Quote(v.String()))
	case reflect.Interface:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		w.tagged(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		if w.enter(v.Pointer()) {
			return
		}
		b.WriteByte('&')
		w.value(v.Elem())
		w.leave()
	case reflect.Struct:
		if v.Type() == timeType && v.CanInterface() {
			b.WriteString(strconv.Quote(v.Interface().(time.Time).Format(time.RFC3339Nano)))
			return
		}
		b.WriteByte('{')
		for i := range v.NumField() {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(v.Type().Field(i).Name)
			b.WriteByte(':')
			w.value(v.Field(i))
		}
		b.WriteByte('}')
	case reflect.Slice:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		if w.enter(v.Pointer()) {
			return
		}
		w.list(v)
		w.leave()
	case reflect.Array:
		w.list(v)
	case reflect.Map:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		if w.enter(v.Pointer()) {
			return
		}
		w.mapEntries(v)
		w.leave()
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		// Identity is all these kinds carry.
		fmt.Fprintf(b, "%s@%#x", v.Kind(), v.Pointer())
	default:
		fmt.Fprintf(b, "%v", v.Kind())
	}
}

func (w *canonicalWriter) float(f float64, bits int) {
	if f == 0 {
		f = 0 // folds -0 into 0
	}
	if math.IsNaN(f) {
		w.buf.WriteString("NaN")
		return
	}
	w.buf.WriteString(strconv.FormatFloat(f, 'g', -1, bits))
}

func (w *canonicalWriter) list(v reflect.Value) {
	w.buf.WriteByte('[')
	for i := range v.Len() {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.value(v.Index(i))
	}
	w.buf.WriteByte(']')
}

// mapEntries sorts entries by the canonical form of their keys.
func (w *canonicalWriter) mapEntries(v reflect.Value) {
	type kv struct{ k, v string }
	entries := make([]kv, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, kv{w.sub(iter.Key()), w.sub(iter.Value())})
	}
	slices.SortFunc(entries, func(a, b kv) int {
		switch {
		case a.k < b.k:
			return -1
		case a.k > b.k:
			return 1
		}
		return 0
	})
	w.buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.buf.WriteString(e.k)
		w.buf.WriteByte(':')
		w.buf.WriteString(e.v)
	}
	w.buf.WriteByte('}')
}

func (w *canonicalWriter) sub(v reflect.Value) string {
	var buf bytes.Buffer
	nested := canonicalWriter{buf: &buf, path: w.path}
	nested.value(v)
	return buf.String()
}

// enter records p on the path and reports whether it closes a cycle.
func (w *canonicalWriter) enter(p uintptr) bool {
	if slices.Contains(w.path, p) {
		w.buf.WriteString("<cycle>")
		return true
	}
	w.path = append(w.path, p)
	return false
}

func (w *canonicalWriter) leave() {
	w.path = w.path[:len(w.path)-1]
}
