package serialization

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/R3E-Network/ledger_gateway/internal/sync"
)

// PropertyDescriptor describes one serializable property of a composite
// type as seen through a particular TypeKey.
type PropertyDescriptor struct {
	Name     string
	Key      TypeKey
	Required bool
	// Default is the JSON literal from the default tag, if any.
	Default string

	index    []int
	nillable bool
	omitZero bool
}

// Index is the field index path, usable with reflect.Value.FieldByIndex.
func (p PropertyDescriptor) Index() []int { return append([]int(nil), p.index...) }

// fieldLayout is the argument-independent part of a descriptor.
type fieldLayout struct {
	name       string
	index      []int
	typ        reflect.Type
	param      int
	args       []int
	required   bool
	nillable   bool
	omitZero   bool
	defaultTag string
}

// Reflector enumerates the properties of struct types. Layouts are cached
// per raw type; type arguments are substituted on every call.
type Reflector struct {
	mu      sync.RWMutex
	layouts map[reflect.Type][]fieldLayout
}

func NewReflector() *Reflector {
	return &Reflector{layouts: make(map[reflect.Type][]fieldLayout)}
}

// Properties returns the property descriptors of key in declaration order.
func (rf *Reflector) Properties(key TypeKey) ([]PropertyDescriptor, error) {
	raw := key.Raw()
	if raw == nil {
		return nil, &ResolutionError{Key: key, Reason: "empty type key"}
	}
	if raw.Kind() != reflect.Struct {
		return nil, &ResolutionError{Key: key, Reason: fmt.Sprintf("%s is not a composite type", raw.Kind())}
	}
	layout, err := rf.layout(key)
	if err != nil {
		return nil, err
	}

	props := make([]PropertyDescriptor, 0, len(layout))
	for _, f := range layout {
		pk, err := f.keyIn(key)
		if err != nil {
			return nil, err
		}
		props = append(props, PropertyDescriptor{
			Name:     f.name,
			Key:      pk,
			Required: f.required,
			Default:  f.defaultTag,
			index:    f.index,
			nillable: f.nillable,
			omitZero: f.omitZero,
		})
	}
	return props, nil
}

func (rf *Reflector) layout(key TypeKey) ([]fieldLayout, error) {
	raw := key.Raw()
	rf.mu.RLock()
	layout, ok := rf.layouts[raw]
	rf.mu.RUnlock()
	if ok {
		return layout, nil
	}

	layout, err := collectFields(key, raw, nil)
	if err != nil {
		return nil, err
	}
	if len(layout) == 0 {
		return nil, &ResolutionError{Key: key, Reason: "no serializable properties"}
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, f := range layout {
		if !seen.Add(f.name) {
			return nil, &ResolutionError{Key: key, Reason: fmt.Sprintf("duplicate property %q", f.name)}
		}
	}

	rf.mu.Lock()
	rf.layouts[raw] = layout
	rf.mu.Unlock()
	return layout, nil
}

func collectFields(key TypeKey, t reflect.Type, prefix []int) ([]fieldLayout, error) {
	var out []fieldLayout
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		jsonTag := sf.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(jsonTag, ",")

		if sf.Anonymous && name == "" && sf.Type.Kind() == reflect.Struct {
			nested, err := collectFields(key, sf.Type, index)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}

		f := fieldLayout{
			name:     name,
			index:    index,
			typ:      sf.Type,
			param:    -1,
			nillable: nillable(sf.Type.Kind()),
			omitZero: hasOption(opts, "omitempty"),
		}
		optional := sf.Type.Kind() == reflect.Pointer || sf.Type.Kind() == reflect.Interface || f.omitZero
		if def, ok := sf.Tag.Lookup("default"); ok {
			f.defaultTag = def
			optional = true
		}

		forced := false
		if tag := sf.Tag.Get("gateway"); tag != "" {
			parts := strings.Split(tag, ",")
			for j := 0; j < len(parts); j++ {
				part := strings.TrimSpace(parts[j])
				switch {
				case part == "optional":
					optional = true
				case part == "required":
					forced = true
				case strings.HasPrefix(part, "param="):
					n, err := strconv.Atoi(strings.TrimPrefix(part, "param="))
					if err != nil {
						return nil, badTag(key, sf, part)
					}
					if sf.Type.Kind() != reflect.Interface {
						return nil, &ResolutionError{Key: key, Reason: fmt.Sprintf("field %s: param requires an interface type", sf.Name)}
					}
					f.param = n
				case strings.HasPrefix(part, "args="):
					n, err := strconv.Atoi(strings.TrimPrefix(part, "args="))
					if err != nil {
						return nil, badTag(key, sf, part)
					}
					f.args = append(f.args, n)
					for j+1 < len(parts) {
						m, err := strconv.Atoi(strings.TrimSpace(parts[j+1]))
						if err != nil {
							break
						}
						f.args = append(f.args, m)
						j++
					}
				default:
					return nil, badTag(key, sf, part)
				}
			}
		}
		f.required = forced || !optional
		out = append(out, f)
	}
	return out, nil
}

// keyIn builds the property key for one enclosing key.
func (f fieldLayout) keyIn(enclosing TypeKey) (TypeKey, error) {
	if f.param >= 0 {
		arg, ok := enclosing.Arg(f.param)
		if !ok {
			return TypeKey{}, &ResolutionError{
				Key:    enclosing,
				Reason: fmt.Sprintf("property %q refers to type argument %d of %d", f.name, f.param, enclosing.NumArgs()),
			}
		}
		return arg, nil
	}
	if len(f.args) == 0 {
		return KeyOf(f.typ), nil
	}
	args := make([]TypeKey, len(f.args))
	for i, n := range f.args {
		arg, ok := enclosing.Arg(n)
		if !ok {
			return TypeKey{}, &ResolutionError{
				Key:    enclosing,
				Reason: fmt.Sprintf("property %q refers to type argument %d of %d", f.name, n, enclosing.NumArgs()),
			}
		}
		args[i] = arg
	}
	return KeyOf(f.typ, args...), nil
}

func hasOption(opts, want string) bool {
	for _, o := range strings.Split(opts, ",") {
		if o == want {
			return true
		}
	}
	return false
}

func badTag(key TypeKey, sf reflect.StructField, part string) error {
	return &ResolutionError{Key: key, Reason: fmt.Sprintf("field %s: bad gateway tag %q", sf.Name, part)}
}
