package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/storage/local"
	"github.com/marmos91/dittodav/pkg/storage/object"
	"github.com/marmos91/dittodav/pkg/storage/object/memclient"
	"github.com/marmos91/dittodav/pkg/storage/object/minioclient"
	"github.com/marmos91/dittodav/pkg/storage/object/s3client"
)

// Mount types accepted in configuration.
const (
	MountLocal  = "local"
	MountS3     = "s3"
	MountMinio  = "minio"
	MountMemory = "memory"
)

// MemoryMountConfig configures an in-process object store. Contents are
// lost on restart.
type MemoryMountConfig struct {
	// Root is the key prefix served by the mount
	Root string `mapstructure:"root" json:"root,omitempty"`
}

// MountOptions decodes and validates the options of m into the typed
// configuration of its backend: local.Config, s3client.Config,
// minioclient.Config or MemoryMountConfig.
//
// Unknown option keys are rejected.
func MountOptions(m MountConfig) (any, error) {
	var out any

	switch m.Type {
	case MountLocal:
		out = &local.Config{}
	case MountS3:
		out = &s3client.Config{}
	case MountMinio:
		out = &minioclient.Config{}
	case MountMemory:
		out = &MemoryMountConfig{}
	default:
		return nil, fmt.Errorf("unknown mount type %q", m.Type)
	}

	if err := decodeOptions(m.Options, out); err != nil {
		return nil, err
	}
	if err := validate.Struct(out); err != nil {
		return nil, err
	}

	switch v := out.(type) {
	case *local.Config:
		return *v, nil
	case *s3client.Config:
		return *v, nil
	case *minioclient.Config:
		return *v, nil
	default:
		return *out.(*MemoryMountConfig), nil
	}
}

// mountRoot returns the root template of decoded mount options.
func mountRoot(opts any) string {
	switch v := opts.(type) {
	case local.Config:
		return v.Root
	case s3client.Config:
		return v.Root
	case minioclient.Config:
		return v.Root
	case MemoryMountConfig:
		return v.Root
	}
	return ""
}

// decodeOptions decodes a free-form options map into out. Durations may be
// written as strings ("30s") and scalars are converted weakly, since YAML
// and environment values arrive untyped.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create options decoder: %w", err)
	}

	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("failed to decode options: %w", err)
	}
	return nil
}

// CreateMountAdapter creates the storage adapter behind a mount.
//
// Object backends are wrapped with objectMetrics when it is non-nil.
func CreateMountAdapter(ctx context.Context, m MountConfig, objectMetrics object.Metrics) (storage.Adapter, error) {
	options, err := MountOptions(m)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", m.Path, err)
	}

	var (
		client object.Client
		root   string
	)

	switch opts := options.(type) {
	case local.Config:
		adapter, err := local.New(opts)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", m.Path, err)
		}
		return adapter, nil

	case s3client.Config:
		c, err := s3client.NewFromConfig(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", m.Path, err)
		}
		client, root = c, opts.Root

	case minioclient.Config:
		c, err := minioclient.New(opts)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", m.Path, err)
		}
		client, root = c, opts.Root

	case MemoryMountConfig:
		client, root = memclient.New(), opts.Root
	}

	adapter, err := object.New(m.Type, object.Instrument(client, m.Type, objectMetrics), object.Config{Root: root})
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", m.Path, err)
	}
	return adapter, nil
}
