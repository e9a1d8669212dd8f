package camera

import "sort"

// Preset names for common capture sizes.
const (
	PresetDefault   = "default"
	PresetTeachable = "teachable"
	PresetModel224  = "224"
	PresetVGA       = "vga"
	Preset720p      = "720p"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:   DefaultConfig(),
		PresetTeachable: TeachableConfig(),
		PresetModel224:  Model224Config(),
		PresetVGA:       VGAConfig(),
		Preset720p:      HD720Config(),
	}
}

// PresetNames returns the sorted list of available preset names.
func PresetNames() []string {
	names := make([]string, 0, len(Presets()))
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// TeachableConfig matches the 300x300 mirrored webcam of Teachable Machine exports.
func TeachableConfig() Config {
	return DefaultConfig()
}

// Model224Config captures at the input size of most ImageNet-style classifiers,
// which skips a resize in preprocessing.
func Model224Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 224
	cfg.Height = 224
	return cfg
}

// VGAConfig returns a 640x480 capture without mirroring.
func VGAConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	cfg.Mirror = false
	return cfg
}

// HD720Config returns 720p capture. Higher CPU cost per frame.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	cfg.Mirror = false
	cfg.Quality = 75
	return cfg
}
