// Package settings manages the persisted user configuration: defaults on
// first install, strict-schema validation on every load and save, and
// field-by-field merging of partial updates.
package settings

import (
	"errors"
	"fmt"
)

// CurrentVersion is the settings schema version this build reads and writes.
const CurrentVersion = 1

// ConversionConfig controls how the engine lays out the generated PDF.
// Margins are in inches.
type ConversionConfig struct {
	PageSize        string  `json:"pageSize"`
	MarginTop       float64 `json:"marginTop"`
	MarginBottom    float64 `json:"marginBottom"`
	MarginLeft      float64 `json:"marginLeft"`
	MarginRight     float64 `json:"marginRight"`
	FontSize        int     `json:"fontSize"`
	FontFamily      string  `json:"fontFamily"`
	CompressOutput  bool    `json:"compressOutput"`
	IncludeMetadata bool    `json:"includeMetadata"`
	OptimizeForATS  bool    `json:"optimizeForATS"`
}

// Settings is the persisted process-wide configuration.
type Settings struct {
	DefaultConfig   ConversionConfig `json:"defaultConfig"`
	SettingsVersion int              `json:"settingsVersion"`
	LastUpdated     int64            `json:"lastUpdated"`
}

var validPageSizes = map[string]bool{
	"Letter": true,
	"A4":     true,
	"Legal":  true,
}

// FallbackConfig is the hardcoded last-resort conversion configuration.
// It exists so a corrupted or partially-populated settings blob can never
// block a conversion.
func FallbackConfig() ConversionConfig {
	return ConversionConfig{
		PageSize:        "Letter",
		MarginTop:       1.0,
		MarginBottom:    1.0,
		MarginLeft:      1.0,
		MarginRight:     1.0,
		FontSize:        12,
		FontFamily:      "Arial",
		CompressOutput:  true,
		IncludeMetadata: true,
	}
}

// Defaults returns the settings written on first install.
func Defaults() Settings {
	return Settings{
		DefaultConfig:   FallbackConfig(),
		SettingsVersion: CurrentVersion,
	}
}

// Validate checks the structural validity of s.
func (s Settings) Validate() error {
	if s.SettingsVersion != CurrentVersion {
		return fmt.Errorf("unsupported settings version %d", s.SettingsVersion)
	}
	return s.DefaultConfig.Validate()
}

// Validate checks the structural validity of c.
func (c ConversionConfig) Validate() error {
	if !validPageSizes[c.PageSize] {
		return fmt.Errorf("page size %q must be one of: Letter, A4, Legal", c.PageSize)
	}
	for _, m := range []float64{c.MarginTop, c.MarginBottom, c.MarginLeft, c.MarginRight} {
		if m < 0 || m > 3 {
			return fmt.Errorf("margin %v out of range [0, 3] inches", m)
		}
	}
	if c.FontSize < 6 || c.FontSize > 72 {
		return fmt.Errorf("font size %d out of range [6, 72]", c.FontSize)
	}
	if c.FontFamily == "" {
		return errors.New("font family must not be empty")
	}
	return nil
}

// ConfigPatch is a partial ConversionConfig. Nil fields are left unchanged
// when the patch is applied.
type ConfigPatch struct {
	PageSize        *string  `json:"pageSize,omitempty"`
	MarginTop       *float64 `json:"marginTop,omitempty"`
	MarginBottom    *float64 `json:"marginBottom,omitempty"`
	MarginLeft      *float64 `json:"marginLeft,omitempty"`
	MarginRight     *float64 `json:"marginRight,omitempty"`
	FontSize        *int     `json:"fontSize,omitempty"`
	FontFamily      *string  `json:"fontFamily,omitempty"`
	CompressOutput  *bool    `json:"compressOutput,omitempty"`
	IncludeMetadata *bool    `json:"includeMetadata,omitempty"`
	OptimizeForATS  *bool    `json:"optimizeForATS,omitempty"`
}

// Apply overlays the non-nil fields of p onto c.
func (p *ConfigPatch) Apply(c ConversionConfig) ConversionConfig {
	if p == nil {
		return c
	}
	if p.PageSize != nil {
		c.PageSize = *p.PageSize
	}
	if p.MarginTop != nil {
		c.MarginTop = *p.MarginTop
	}
	if p.MarginBottom != nil {
		c.MarginBottom = *p.MarginBottom
	}
	if p.MarginLeft != nil {
		c.MarginLeft = *p.MarginLeft
	}
	if p.MarginRight != nil {
		c.MarginRight = *p.MarginRight
	}
	if p.FontSize != nil {
		c.FontSize = *p.FontSize
	}
	if p.FontFamily != nil {
		c.FontFamily = *p.FontFamily
	}
	if p.CompressOutput != nil {
		c.CompressOutput = *p.CompressOutput
	}
	if p.IncludeMetadata != nil {
		c.IncludeMetadata = *p.IncludeMetadata
	}
	if p.OptimizeForATS != nil {
		c.OptimizeForATS = *p.OptimizeForATS
	}
	return c
}

// Patch is a partial Settings update.
type Patch struct {
	DefaultConfig *ConfigPatch `json:"defaultConfig,omitempty"`
}
