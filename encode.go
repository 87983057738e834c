package formdata

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

var (
	readerType      = reflect.TypeFor[io.Reader]()
	asyncReaderType = reflect.TypeFor[AsyncReader]()
)

// Marshaler is the interface implemented by types that can marshal themselves
// into the value of a text field.
type Marshaler interface {
	MarshalForm() (string, error)
}

// Marshal returns the multipart encoding of v together with the Content-Type
// header value describing it. The whole body is held in memory; use
// [Form.Encode] and [Form.Body] to stream instead.
func Marshal(v interface{}, opts ...Option) ([]byte, string, error) {
	f := NewForm(opts...)
	contentType := f.ContentType()

	if err := f.Encode(v); err != nil {
		f.Body().Close()
		return nil, "", err
	}

	var buf bytes.Buffer
	body := f.Body()
	defer body.Close()
	if _, err := body.WriteTo(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), contentType, nil
}

// Encode adds the fields of v to f. v must be a struct or a map with string
// keys, or a pointer to one. Struct fields are named by their `form` tag.
// Nested structs, maps and slices produce names such as "address[city]" and
// "tags[]".
//
// Scalars and [Marshaler] values become text fields. Byte slices and
// [io.Reader] values become binary fields; readers with a Name method, such
// as files, are sent as files named by the base of Name. [AsyncReader] values
// become asynchronous fields. The tag options "type=" and "filename=" set an
// explicit content type and filename.
//
// Map keys are encoded in sorted order. On error the parts added before the
// failure remain in f.
func (f *Form) Encode(v interface{}) error {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct && rv.Kind() != reflect.Map {
		return fmt.Errorf("formdata: top-level value must be struct or map")
	}

	return f.marshalValue(nil, rv, &tag{})
}

func (f *Form) marshalValue(path []string, v reflect.Value, t *tag) error {
	// Handle nil pointers and interfaces early to avoid dereferencing them.
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		return nil
	}

	// Sources are matched before dereferencing since readers usually have
	// pointer receivers.
	if f.marshalSource(path, v, t) {
		return nil
	}

	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	if m, ok := asMarshaler(v); ok {
		return f.marshaler(path, m, t)
	}

	switch v.Kind() {
	case reflect.Struct:
		return f.marshalStruct(path, v)
	case reflect.Map:
		return f.marshalMap(path, v)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := v.Bytes()
			f.addPart(path, readerSource(bytes.NewReader(b), int64(len(b))), t, "")
			return nil
		}
		return f.marshalSlice(path, v, t)
	case reflect.Array:
		return f.marshalSlice(path, v, t)
	case reflect.Interface:
		return f.marshalValue(path, v.Elem(), t)
	default:
		return f.marshalScalar(path, v, t)
	}
}

func (f *Form) marshalSource(path []string, v reflect.Value, t *tag) bool {
	if !v.CanInterface() {
		return false
	}

	// Values such as bytes.Buffer are only readers through their pointer.
	if v.Kind() != reflect.Pointer && v.Kind() != reflect.Interface {
		pt := reflect.PointerTo(v.Type())
		if pt.Implements(readerType) || pt.Implements(asyncReaderType) {
			if !v.CanAddr() {
				ptr := reflect.New(v.Type())
				ptr.Elem().Set(v)
				v = ptr.Elem()
			}
			v = v.Addr()
		}
	}

	switch src := v.Interface().(type) {
	case AsyncReader:
		f.addPart(path, asyncSource(src), t, sourceName(src))
	case io.Reader:
		f.addPart(path, readerSource(src, -1), t, sourceName(src))
	default:
		return false
	}
	return true
}

// sourceName returns the base name of a file-like source, or "" for anything
// else.
func sourceName(src interface{}) string {
	if named, ok := src.(interface{ Name() string }); ok {
		return filepath.Base(named.Name())
	}
	return ""
}

func (f *Form) addPart(path []string, body payload, t *tag, filename string) {
	if t.Filename != "" {
		filename = t.Filename
	}
	f.push(newPart(body, renderPath(path), t.ContentType, filename, filename != ""))
}

func (f *Form) marshaler(path []string, m Marshaler, t *tag) error {
	s, err := m.MarshalForm()
	if err != nil {
		return fmt.Errorf("formdata: failed to marshal field %q: %w", renderPath(path), err)
	}
	f.addPart(path, textSource(s), t, "")
	return nil
}

func (f *Form) marshalStruct(path []string, v reflect.Value) error {
	tags := tags(v)
	for i := 0; i < v.NumField(); i++ {
		tag := tags[i]
		if tag.Ignore {
			continue
		}
		fv := v.Field(i)
		if tag.Omit && isEmptyValue(fv) {
			continue
		}
		if tag.Name == "" {
			continue
		}
		if err := f.marshalValue(append(path, tag.Name), fv, tag); err != nil {
			return err
		}
	}
	return nil
}

func (f *Form) marshalMap(path []string, v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("formdata: map keys must be strings")
	}

	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(a.String(), b.String())
	})

	for _, k := range keys {
		mv := v.MapIndex(k)
		if !mv.IsValid() || (mv.Kind() == reflect.Interface && mv.IsNil()) {
			continue
		}
		if err := f.marshalValue(append(path, k.String()), mv, &tag{}); err != nil {
			return err
		}
	}
	return nil
}

func (f *Form) marshalSlice(path []string, v reflect.Value, t *tag) error {
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		if !elem.IsValid() || (elem.Kind() == reflect.Interface && elem.IsNil()) {
			continue
		}
		if err := f.marshalValue(append(path, ""), elem, t); err != nil {
			return err
		}
	}
	return nil
}

func (f *Form) marshalScalar(path []string, v reflect.Value, t *tag) error {
	s, err := getScalar(v)
	if err != nil {
		return fmt.Errorf("formdata: field %q: %w", renderPath(path), err)
	}
	f.addPart(path, textSource(s), t, "")
	return nil
}

func asMarshaler(v reflect.Value) (Marshaler, bool) {
	if v.CanAddr() {
		if m, ok := v.Addr().Interface().(Marshaler); ok {
			return m, true
		}
	}
	if !v.CanInterface() {
		return nil, false
	}
	if m, ok := v.Interface().(Marshaler); ok {
		return m, true
	}
	return nil, false
}

func renderPath(path []string) string {
	if len(path) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(path[0])
	for _, p := range path[1:] {
		if p == "" {
			b.WriteString("[]")
		} else {
			b.WriteString("[")
			b.WriteString(p)
			b.WriteString("]")
		}
	}
	return b.String()
}

func getScalar(v reflect.Value) (string, error) {
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits()), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	default:
		return "", fmt.Errorf("unsupported type %s", v.Type())
	}
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	}
	return false
}
