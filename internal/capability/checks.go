package capability

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Environment points the default checks at the host's resources.
type Environment struct {
	// SDKPath is the rendering SDK bundle; physics support ships with it.
	SDKPath string

	// ModelPath is the model asset. Empty means the loader has not resolved it yet.
	ModelPath string

	// StateDir must be writable for local persistent storage.
	StateDir string

	// TransportConfigured reports whether a remote coordinator endpoint exists.
	TransportConfigured bool

	// ForceRenderV2 and ForceRenderV1 override backend detection on hosts without DRM nodes.
	ForceRenderV2 bool
	ForceRenderV1 bool

	// Root prefixes every device path; tests point it at a fixture tree.
	Root string
}

func (env Environment) path(p string) string {
	if env.Root == "" {
		return p
	}
	return filepath.Join(env.Root, p)
}

func (env Environment) anyMatch(patterns ...string) bool {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(env.path(pattern))
		if err == nil && len(matches) > 0 {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// DefaultSpecs returns the standard battery in reporting order.
func DefaultSpecs(env Environment) []Spec {
	return []Spec{
		{Name: RenderV2, Required: true, Fallback: RenderV1, Check: env.checkRenderV2},
		{Name: RenderV1, Required: true, Fallback: "software", Check: env.checkRenderV1},
		{Name: Audio, Required: false, Check: env.checkAudio},
		{Name: Microphone, Required: false, Check: env.checkMicrophone},
		{Name: Haptics, Required: false, Check: env.checkHaptics},
		{Name: SDK, Required: true, Check: env.checkSDK},
		{Name: Model, Required: true, Fallback: "placeholder_model", Check: env.checkModel},
		{Name: Physics, Required: false, Check: env.checkSDK},
		{Name: LipSync, Required: false, Check: env.checkAudio},
		{Name: Transport, Required: true, Fallback: "offline_mode", Check: env.checkTransport},
		{Name: LocalStorage, Required: true, Fallback: "memory_storage", Check: env.checkLocalStorage},
		{Name: IndexedDB, Required: false, Fallback: LocalStorage, Check: checkIndexedDB},
	}
}

// DefaultDerived returns the entries computed from other checks.
func DefaultDerived() []Derived {
	return []Derived{
		{Name: GPU, Required: true, Fallback: "software", AnyOf: []string{RenderV2, RenderV1}},
	}
}

// NewDefaultProbe builds a probe with the standard battery.
func NewDefaultProbe(cfg ProbeConfig, env Environment) *Probe {
	return NewProbe(cfg, DefaultSpecs(env), DefaultDerived())
}

// WithCheck returns specs with the check for name replaced.
func WithCheck(specs []Spec, name string, check CheckFunc) []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	for i := range out {
		if out[i].Name == name {
			out[i].Check = check
		}
	}
	return out
}

func (env Environment) checkRenderV2(_ context.Context) (Availability, error) {
	if env.ForceRenderV2 {
		return Available, nil
	}
	return FromBool(env.anyMatch("/dev/dri/renderD*")), nil
}

func (env Environment) checkRenderV1(_ context.Context) (Availability, error) {
	if env.ForceRenderV1 || env.ForceRenderV2 {
		return Available, nil
	}
	if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
		return Available, nil
	}
	return FromBool(env.anyMatch("/dev/dri/card*")), nil
}

func (env Environment) checkAudio(_ context.Context) (Availability, error) {
	if env.anyMatch("/dev/snd/pcmC*p") {
		return Available, nil
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		if exists(filepath.Join(dir, "pulse", "native")) || exists(filepath.Join(dir, "pipewire-0")) {
			return Available, nil
		}
	}
	return Unavailable, nil
}

func (env Environment) checkMicrophone(_ context.Context) (Availability, error) {
	return FromBool(env.anyMatch("/dev/snd/pcmC*c")), nil
}

func (env Environment) checkHaptics(_ context.Context) (Availability, error) {
	return FromBool(env.anyMatch("/dev/input/by-id/*event-joystick")), nil
}

func (env Environment) checkSDK(_ context.Context) (Availability, error) {
	if env.SDKPath == "" {
		return Unavailable, fmt.Errorf("sdk path not configured")
	}
	return FromBool(exists(env.SDKPath)), nil
}

func (env Environment) checkModel(_ context.Context) (Availability, error) {
	if env.ModelPath == "" {
		return Pending, nil
	}
	if exists(env.ModelPath) {
		return Available, nil
	}
	// The asset may still be downloading; the loader reports back through UpdateCapability.
	return Pending, nil
}

func (env Environment) checkTransport(_ context.Context) (Availability, error) {
	return FromBool(env.TransportConfigured), nil
}

func (env Environment) checkLocalStorage(_ context.Context) (Availability, error) {
	if env.StateDir == "" {
		return Unavailable, fmt.Errorf("state directory not configured")
	}
	if err := os.MkdirAll(env.StateDir, 0o700); err != nil {
		return Unavailable, err
	}
	f, err := os.CreateTemp(env.StateDir, ".probe-*")
	if err != nil {
		return Unavailable, err
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Available, nil
}

func checkIndexedDB(ctx context.Context) (Availability, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return Unavailable, err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return Unavailable, err
	}
	return Available, nil
}
