// Package options implements the key=value configuration source. Options are
// namespaced with a dot ("retriever.concurrency=8") and applied to config
// structs through the `option` struct tag. The `help` tag documents an
// option for the "options" command.
package options

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/exchangesets/fsstransfer/internal/errors"
)

// Options maps lower-case keys to values.
type Options map[string]string

// Help describes one registered option.
type Help struct {
	Namespace string
	Name      string
	Text      string
}

var registry struct {
	sync.Mutex
	list []Help
}

// Register records the tagged fields of cfg under ns so that List can show
// them. It is usually called from an init function next to the config type.
func Register(ns string, cfg interface{}) {
	registry.Lock()
	defer registry.Unlock()

	t := reflect.Indirect(reflect.ValueOf(cfg)).Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("option")
		if name == "" {
			continue
		}
		registry.list = append(registry.list, Help{
			Namespace: ns,
			Name:      name,
			Text:      t.Field(i).Tag.Get("help"),
		})
	}
}

// List returns all registered options ordered by namespace and name.
func List() []Help {
	registry.Lock()
	defer registry.Unlock()

	list := append([]Help(nil), registry.list...)
	sort.Slice(list, func(i, j int) bool {
		if list[i].Namespace != list[j].Namespace {
			return list[i].Namespace < list[j].Namespace
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// Parse builds Options from "key=value" strings. Keys are lower-cased and
// whitespace around keys and values is removed. Repeating a key is only
// allowed with the same value.
func Parse(in []string) (Options, error) {
	opts := make(Options, len(in))

	for _, s := range in {
		key, value, _ := strings.Cut(s, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if key == "" {
			return Options{}, errors.Fatalf("empty key is not a valid option")
		}
		if prev, ok := opts[key]; ok && prev != value {
			return Options{}, errors.Fatalf("key %q present more than once", key)
		}
		opts[key] = value
	}

	return opts, nil
}

// Extract returns the options below namespace ns with the namespace
// stripped from the keys.
func (o Options) Extract(ns string) Options {
	prefix := strings.TrimSuffix(ns, ".") + "."

	sub := make(Options)
	for k, v := range o {
		if name, ok := strings.CutPrefix(k, prefix); ok {
			sub[name] = v
		}
	}
	return sub
}

// Int returns the value of key parsed as an integer. If the key is absent,
// empty or not a number, def is returned and defaulted is true.
func (o Options) Int(key string, def int) (value int, defaulted bool) {
	s := o[strings.ToLower(key)]
	if s == "" {
		return def, true
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return def, true
	}
	return v, false
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	secretType   = reflect.TypeOf(SecretString{})
)

// setField parses value according to the type of field.
func setField(field reflect.Value, key, value string) error {
	switch field.Type() {
	case durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.Fatalf("option %v: invalid duration %q", key, value)
		}
		field.SetInt(int64(d))
		return nil

	case secretType:
		field.Set(reflect.ValueOf(NewSecretString(value)))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return errors.Fatalf("option %v: invalid number %q", key, value)
		}
		field.SetInt(v)

	case reflect.Uint, reflect.Uint64:
		v, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return errors.Fatalf("option %v: invalid number %q", key, value)
		}
		field.SetUint(v)

	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Fatalf("option %v: invalid boolean %q", key, value)
		}
		field.SetBool(v)

	default:
		panic("option type " + field.Type().String() + " not handled")
	}
	return nil
}

// Apply stores the options in the fields of the struct dst points to, using
// the `option` tag. ns only prefixes the keys in error messages.
func (o Options) Apply(ns string, dst interface{}) error {
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()

	fields := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("option")
		if name == "" {
			continue
		}
		if _, dup := fields[name]; dup {
			panic("option tag " + name + " is not unique in " + t.Name())
		}
		fields[name] = i
	}

	// sorted for a stable error for the first unknown key
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		i, ok := fields[key]
		if !ok {
			if ns != "" {
				key = ns + "." + key
			}
			return errors.Fatalf("option %v is not known", key)
		}

		if err := setField(v.Field(i), key, o[key]); err != nil {
			return err
		}
	}

	return nil
}
