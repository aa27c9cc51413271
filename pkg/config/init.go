package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `# dittodav configuration file
#
# Every key can be overridden from the environment with the DITTODAV_
# prefix, e.g. DITTODAV_LOGGING_LEVEL=DEBUG or
# DITTODAV_ADAPTERS_WEBDAV_PORT=8081.

`

// sampleComments documents keys of the generated file. Keys are dotted
// mapstructure paths; list elements use "[]".
var sampleComments = map[string]string{
	"logging":                 "level: DEBUG, INFO, WARN or ERROR. format: text or json.\noutput: stdout, stderr or a file path. Files are rotated by size.",
	"server.shutdown_timeout": "Upper bound for each phase of graceful shutdown",
	"server.metrics":          "Prometheus endpoint (/metrics) and health check (/healthz)",
	"auth":                    "Authentication decisions are cached per repository.\ncache.type: memory, or badger to survive restarts (set cache.badger.path).",
	"auth.failure_ttl":        "How long authority failures are cached; negative disables it",
	"auth.sweep_interval":     "How often expired decisions and idle rate limit buckets are purged",
	"repositories": "Repositories are matched against the request Host in order. Named groups\n" +
		"of the domain pattern become {{name}} variables usable in mount roots.\n" +
		"Set authentication_url (with {{identification}} and {{password}}) to\n" +
		"require Basic credentials, and notification.url to receive change events.",
	"repositories[].mounts": "Mounts are matched against the request path in order. Types and options:\n" +
		"  local:  root, autocreate\n" +
		"  s3:     bucket, region, root, endpoint, access_key_id, secret_access_key, use_path_style, max_retries\n" +
		"  minio:  endpoint, bucket, root, region, access_key_id, secret_access_key, use_ssl\n" +
		"  memory: root (contents are lost on restart)",
	"adapters.webdav.port":       "-1 picks an ephemeral port",
	"adapters.webdav.rate_limit": "Zero rates disable throttling. Throttled requests get 503.",
}

// InitConfig writes a commented sample configuration to path, or to the
// default location when path is empty, and returns the path written.
//
// An existing file is only replaced when force is set.
func InitConfig(path string, force bool) (string, error) {
	if path == "" {
		path = GetDefaultConfigPath()
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := GenerateSample(GetDefaultConfig())
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}

// GenerateSample renders cfg as commented YAML using the configuration
// file key names. Empty strings and maps are left out.
func GenerateSample(cfg *Config) ([]byte, error) {
	root, err := sampleNode(reflect.ValueOf(cfg).Elem(), "")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(sampleHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode sample config: %w", err)
	}

	return buf.Bytes(), nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func sampleNode(v reflect.Value, path string) (*yaml.Node, error) {
	if v.Type() == durationType {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: time.Duration(v.Int()).String()}, nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
		}
		return sampleNode(v.Elem(), path)

	case reflect.Struct:
		node := &yaml.Node{Kind: yaml.MappingNode}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
			if name == "-" {
				continue
			}
			if name == "" {
				name = strings.ToLower(field.Name)
			}
			if err := appendPair(node, name, v.Field(i), joinPath(path, name)); err != nil {
				return nil, err
			}
		}
		return node, nil

	case reflect.Map:
		node := &yaml.Node{Kind: yaml.MappingNode}
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, fmt.Sprint(k.Interface()))
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := appendPair(node, k, v.MapIndex(reflect.ValueOf(k).Convert(v.Type().Key())), joinPath(path, k)); err != nil {
				return nil, err
			}
		}
		return node, nil

	case reflect.Slice, reflect.Array:
		node := &yaml.Node{Kind: yaml.SequenceNode}
		for i := 0; i < v.Len(); i++ {
			item, err := sampleNode(v.Index(i), path+"[]")
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, item)
		}
		return node, nil

	default:
		node := &yaml.Node{}
		if err := node.Encode(v.Interface()); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return node, nil
	}
}

func appendPair(mapping *yaml.Node, key string, v reflect.Value, path string) error {
	if omitInSample(v) {
		return nil
	}

	value, err := sampleNode(v, path)
	if err != nil {
		return err
	}
	if value.Kind == yaml.MappingNode && len(value.Content) == 0 {
		return nil
	}

	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key, HeadComment: sampleComments[path]},
		value,
	)
	return nil
}

func omitInSample(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.Len() == 0
	case reflect.Map, reflect.Slice:
		return v.Len() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
