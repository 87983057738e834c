package formdata

import (
	"reflect"
	"strings"
	"sync"
)

// cache of struct tags to avoid repeated parsing of the same struct type across
// multiple calls to tags. The key is the [reflect.Type] of the struct, and the
// value is a slice of *tag, one for each field on the struct.
//
// This cache is safe for concurrent use.
var structTagCache sync.Map

type tag struct {
	Name   string
	Omit   bool
	Ignore bool

	// ContentType and Filename override the headers of the parts produced
	// for the field.
	ContentType string
	Filename    string
}

func tags(fv reflect.Value) []*tag {
	tt := reflect.Indirect(fv).Type()
	if tt.Kind() != reflect.Struct {
		return []*tag{}
	}

	if cached, ok := structTagCache.Load(tt); ok {
		return cached.([]*tag)
	}

	tags := make([]*tag, tt.NumField())
	for i := 0; i < tt.NumField(); i++ {
		f := tt.Field(i)
		// Unexported fields cannot be read through reflection.
		if !f.IsExported() {
			tags[i] = &tag{Ignore: true}
			continue
		}
		tag := parseTag(f.Tag.Get("form"))
		if !tag.Ignore && tag.Name == "" {
			tag.Name = f.Name
		}
		tags[i] = tag
	}

	structTagCache.Store(tt, tags)
	return tags
}

// parseTag parses a tag of the form
//
//	name[,omitempty][,ignore][,type=<mime>][,filename=<name>]
//
// A tag of "-" ignores the field.
func parseTag(str string) *tag {
	str = strings.TrimSpace(str)
	if str == "-" {
		return &tag{Ignore: true}
	}

	parts := strings.Split(str, ",")
	t := &tag{}

	name := strings.TrimSpace(parts[0])
	switch name {
	case "-":
		t.Ignore = true
	default:
		t.Name = name
	}

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case p == "omitempty":
			t.Omit = true
		case p == "ignore":
			t.Ignore = true
		case strings.HasPrefix(p, "type="):
			t.ContentType = strings.TrimPrefix(p, "type=")
		case strings.HasPrefix(p, "filename="):
			t.Filename = strings.TrimPrefix(p, "filename=")
		}
	}

	return t
}
