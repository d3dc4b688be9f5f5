package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/resumewright/resumewright/internal/storage"
)

const storageKey = "settings"

// Store loads and persists Settings in a storage area.
//
// Load self-heals on every failure path: state that is unreadable, absent,
// corrupted, or fails strict-schema validation yields the defaults instead
// of an error. Save is strict: an invalid Settings value is rejected before
// anything is written, and storage write failures are reported.
type Store struct {
	area storage.Area
	now  func() time.Time
}

// NewStore creates a Store over the given area.
func NewStore(area storage.Area) *Store {
	return &Store{area: area, now: time.Now}
}

// storedSettings mirrors Settings with pointer fields so a valid blob that
// omits optional fields can be told apart from one that supplies zero
// values. Decoding rejects unknown fields at every nesting level.
type storedSettings struct {
	DefaultConfig   *storedConfig `json:"defaultConfig"`
	SettingsVersion *int          `json:"settingsVersion"`
	LastUpdated     *int64        `json:"lastUpdated"`
}

type storedConfig struct {
	PageSize        *string  `json:"pageSize"`
	MarginTop       *float64 `json:"marginTop"`
	MarginBottom    *float64 `json:"marginBottom"`
	MarginLeft      *float64 `json:"marginLeft"`
	MarginRight     *float64 `json:"marginRight"`
	FontSize        *int     `json:"fontSize"`
	FontFamily      *string  `json:"fontFamily"`
	CompressOutput  *bool    `json:"compressOutput"`
	IncludeMetadata *bool    `json:"includeMetadata"`
	OptimizeForATS  *bool    `json:"optimizeForATS"`
}

// Load reads the persisted settings. Every failure — unreadable storage,
// absent, corrupted, or schema-invalid blob — is logged and yields the
// defaults, so a caller always gets a usable value.
func (s *Store) Load(ctx context.Context) Settings {
	items, err := s.area.Get(ctx, storageKey)
	if err != nil {
		slog.Warn("settings unreadable, using defaults", "error", err)
		return Defaults()
	}

	blob, ok := items[storageKey]
	if !ok {
		return Defaults()
	}

	loaded, err := decodeStrict(blob)
	if err != nil {
		slog.Warn("settings blob rejected, using defaults", "error", err)
		return Defaults()
	}
	return loaded
}

// decodeStrict parses blob, rejecting unknown fields anywhere in the
// document, then merges omitted optional fields from the defaults and
// validates the result.
func decodeStrict(blob []byte) (Settings, error) {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.DisallowUnknownFields()

	var stored storedSettings
	if err := dec.Decode(&stored); err != nil {
		return Settings{}, fmt.Errorf("decode: %w", err)
	}

	merged := Defaults()
	if stored.SettingsVersion != nil {
		merged.SettingsVersion = *stored.SettingsVersion
	}
	if stored.LastUpdated != nil {
		merged.LastUpdated = *stored.LastUpdated
	}
	if c := stored.DefaultConfig; c != nil {
		patch := ConfigPatch{
			PageSize:        c.PageSize,
			MarginTop:       c.MarginTop,
			MarginBottom:    c.MarginBottom,
			MarginLeft:      c.MarginLeft,
			MarginRight:     c.MarginRight,
			FontSize:        c.FontSize,
			FontFamily:      c.FontFamily,
			CompressOutput:  c.CompressOutput,
			IncludeMetadata: c.IncludeMetadata,
			OptimizeForATS:  c.OptimizeForATS,
		}
		merged.DefaultConfig = patch.Apply(merged.DefaultConfig)
	}

	if err := merged.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validate: %w", err)
	}
	return merged, nil
}

// Save stamps the schema version and update time, validates, and persists.
// Unlike Load, a validation failure here is the caller's error to handle.
func (s *Store) Save(ctx context.Context, settings Settings) (Settings, error) {
	settings.SettingsVersion = CurrentVersion
	settings.LastUpdated = s.now().UnixMilli()

	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}

	blob, err := json.Marshal(settings)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.area.Set(ctx, map[string][]byte{storageKey: blob}); err != nil {
		return Settings{}, fmt.Errorf("write settings: %w", err)
	}
	return settings, nil
}

// Update loads the current settings, applies the partial patch, and saves.
func (s *Store) Update(ctx context.Context, patch Patch) (Settings, error) {
	current := s.Load(ctx)
	current.DefaultConfig = patch.DefaultConfig.Apply(current.DefaultConfig)
	return s.Save(ctx, current)
}

// Reset persists the default settings with a fresh version and timestamp.
func (s *Store) Reset(ctx context.Context) (Settings, error) {
	return s.Save(ctx, Defaults())
}
