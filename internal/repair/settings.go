// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package repair

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
)

// CurrentVersion is the settings schema version written by this launcher.
const CurrentVersion = 1

// Settings is the persisted configuration read by the main service at
// startup. Every Location field carries a locate tag of the form
// "anchor:relative/path" naming its canonical place in the layout; the
// repair pass discovers these fields by type, so new Location fields are
// relocated without further code.
type Settings struct {
	Version      int             `json:"version"`
	InstallRoot  string          `json:"install_root"`
	SecretKey    string          `json:"secret_key"`
	MetadataURI  Location        `json:"metadata_uri" locate:"app_home:superset.db" scheme:"sqlite"`
	ExamplesURI  Location        `json:"examples_uri" locate:"data:examples.duckdb" scheme:"duckdb"`
	UploadDir    Location        `json:"upload_dir" locate:"app_home:uploads"`
	FeatureFlags map[string]bool `json:"feature_flags,omitempty"`
}

// defaultFeatureFlags are enabled for freshly created settings.
func defaultFeatureFlags() map[string]bool {
	return map[string]bool{
		"DASHBOARD_NATIVE_FILTERS":   true,
		"ENABLE_TEMPLATE_PROCESSING": true,
	}
}

var locationType = reflect.TypeOf(Location{})

// locationField is one Location-typed field of Settings.
type locationField struct {
	name   string
	ptr    *Location
	anchor string
	rel    string
	scheme string
}

// locationFields returns every Location field of s in declaration order.
func locationFields(s *Settings) []locationField {
	v := reflect.ValueOf(s).Elem()
	t := v.Type()
	var fields []locationField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type != locationType {
			continue
		}
		anchor, rel, _ := strings.Cut(f.Tag.Get("locate"), ":")
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		fields = append(fields, locationField{
			name:   name,
			ptr:    v.Field(i).Addr().Interface().(*Location),
			anchor: anchor,
			rel:    rel,
			scheme: f.Tag.Get("scheme"),
		})
	}
	return fields
}

// canonical returns the default location of a field for the given anchors.
func (f locationField) canonical(anchors map[string]string) (Location, error) {
	base, ok := anchors[f.anchor]
	if !ok {
		return Location{}, fmt.Errorf("field %s: unknown anchor %q", f.name, f.anchor)
	}
	return Location{Scheme: f.scheme, Path: filepath.Join(base, filepath.FromSlash(f.rel))}, nil
}

func newSecretKey() (string, error) {
	buf := make([]byte, 42)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
