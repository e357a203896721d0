package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// GetByPath returns the value at a dot-separated path of JSON names, e.g.
// "line.webhookPath" or "media.s3". Sections come back as structs.
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookup(cfg, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// SetByPath parses value according to the type of the key at path and stores
// it. Unknown keys and whole sections are rejected.
func SetByPath(cfg *Config, path, value string) error {
	v, err := lookup(cfg, path)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", path, value)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s expects an integer, got %q", path, value)
		}
		v.SetInt(n)
	case reflect.Struct:
		return fmt.Errorf("%s is a section, set one of its keys instead", path)
	default:
		return fmt.Errorf("%s cannot be set from the command line", path)
	}
	return nil
}

// ListPaths returns every leaf key with its current value.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	collectLeaves("", reflect.ValueOf(cfg).Elem(), out)
	return out
}

func collectLeaves(prefix string, v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := range t.NumField() {
		path := jsonName(t.Field(i))
		if prefix != "" {
			path = prefix + "." + path
		}
		if f := v.Field(i); f.Kind() == reflect.Struct {
			collectLeaves(path, f, out)
		} else {
			out[path] = f.Interface()
		}
	}
}

func lookup(cfg *Config, path string) (reflect.Value, error) {
	if path == "" {
		return reflect.Value{}, fmt.Errorf("empty config path")
	}
	v := reflect.ValueOf(cfg).Elem()
	for _, name := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("unknown config key %q: %s has no sub-keys", path, name)
		}
		i := fieldByJSONName(v.Type(), name)
		if i < 0 {
			return reflect.Value{}, fmt.Errorf("unknown config key %q", path)
		}
		v = v.Field(i)
	}
	return v, nil
}

func fieldByJSONName(t reflect.Type, name string) int {
	for i := range t.NumField() {
		if jsonName(t.Field(i)) == name {
			return i
		}
	}
	return -1
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

// Sanitize returns a copy with credentials masked. Config holds no pointers,
// so a value copy is independent of the original.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Line.ChannelSecret = maskString(out.Line.ChannelSecret)
	out.Line.ChannelAccessToken = maskString(out.Line.ChannelAccessToken)
	out.Discord.WebhookURL = maskWebhookURL(out.Discord.WebhookURL)
	return &out
}

func maskString(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// maskWebhookURL hides the token segment of a Discord webhook URL
// (https://discord.com/api/webhooks/<id>/<token>).
func maskWebhookURL(raw string) string {
	i := strings.LastIndex(raw, "/")
	if i < 0 || i == len(raw)-1 {
		return maskString(raw)
	}
	return raw[:i+1] + maskString(raw[i+1:])
}
