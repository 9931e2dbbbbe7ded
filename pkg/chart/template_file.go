package chart

import (
	"fmt"
	"image"

	"github.com/spf13/viper"
)

type templateFile struct {
	AxisCrop struct {
		Width  int `mapstructure:"width"`
		Height int `mapstructure:"height"`
	} `mapstructure:"axis_crop"`
	DarkThreshold int     `mapstructure:"dark_threshold"`
	XMin          int     `mapstructure:"x_min"`
	XMinThermal   int     `mapstructure:"x_min_thermal"`
	XMax          int     `mapstructure:"x_max"`
	Levels        []Level `mapstructure:"levels"`
}

// LoadTemplate reads a chart template from a YAML/JSON/TOML file. Keys that
// are missing fall back to DefaultTemplate. An empty path returns the
// default template.
func LoadTemplate(path string) (Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	setTemplateDefaults(v)

	v.SetEnvPrefix("CHART")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Template{}, fmt.Errorf("failed to read chart template: %w", err)
	}
	var f templateFile
	if err := v.Unmarshal(&f); err != nil {
		return Template{}, fmt.Errorf("failed to unmarshal chart template: %w", err)
	}
	if f.DarkThreshold < 1 || f.DarkThreshold > 255 {
		return Template{}, fmt.Errorf("dark_threshold must be between 1 and 255, got %d", f.DarkThreshold)
	}
	t := Template{
		AxisCrop:      image.Pt(f.AxisCrop.Width, f.AxisCrop.Height),
		DarkThreshold: uint8(f.DarkThreshold),
		Levels:        f.Levels,
		XMin:          f.XMin,
		XMinThermal:   f.XMinThermal,
		XMax:          f.XMax,
	}
	if len(t.Levels) == 0 {
		t.Levels = DefaultTemplate().Levels
	}
	if err := t.Validate(); err != nil {
		return Template{}, fmt.Errorf("invalid chart template %s: %w", path, err)
	}
	return t, nil
}

func setTemplateDefaults(v *viper.Viper) {
	d := DefaultTemplate()
	v.SetDefault("axis_crop.width", d.AxisCrop.X)
	v.SetDefault("axis_crop.height", d.AxisCrop.Y)
	v.SetDefault("dark_threshold", int(d.DarkThreshold))
	v.SetDefault("x_min", d.XMin)
	v.SetDefault("x_min_thermal", d.XMinThermal)
	v.SetDefault("x_max", d.XMax)
}
