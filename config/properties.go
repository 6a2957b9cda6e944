package config

import (
	"bytes"
	"sort"
	"strings"

	"github.com/magiconair/properties"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Viper codec of java properties files, keys are split on dots into nested
// maps as viper expects.
type propertiesCodec struct{}

func (propertiesCodec) Decode(b []byte, v map[string]any) error {
	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(b)
	if err != nil {
		return err
	}
	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		path := strings.Split(key, ".")
		last := strings.ToLower(path[len(path)-1])
		deepest(v, path[:len(path)-1])[last] = value
	}
	return nil
}

func (propertiesCodec) Encode(v map[string]any) ([]byte, error) {
	flat := make(map[string]string)
	flatten("", v, flat)
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	p := properties.NewProperties()
	for _, key := range keys {
		if _, _, err := p.Set(key, flat[key]); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Map at path, created as needed. A value met halfway is replaced, so
// a.b=1 followed by a.b.c=2 keeps the latter only.
func deepest(m map[string]any, path []string) map[string]any {
	for _, k := range path {
		k = strings.ToLower(k)
		next, ok := m[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[k] = next
		}
		m = next
	}
	return m
}

func flatten(prefix string, m map[string]any, out map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = cast.ToString(v)
	}
}

func newCodecRegistry() viper.CodecRegistry {
	r := viper.NewCodecRegistry()
	codec := propertiesCodec{}
	for _, format := range []string{"properties", "props", "prop"} {
		_ = r.RegisterCodec(format, codec) // never fails
	}
	return r
}
