// Package whitelist maps known plates to access roles and classifies arrivals.
package whitelist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"gatewatch/internal/domain/gate"
	"gatewatch/internal/utils"
)

const (
	RoleOwner = "owner"
	RoleBoss  = "boss"
)

// Whitelist maps a normalized plate to a lowercased role. It is read-only
// after construction and safe for concurrent use.
type Whitelist map[string]string

// New normalizes raw plate -> role entries. Entries whose plate normalizes to
// the empty string are dropped.
func New(raw map[string]string) Whitelist {
	wl := make(Whitelist, len(raw))
	for plate, role := range raw {
		key := utils.NormalizePlate(plate)
		if key == "" {
			continue
		}
		wl[key] = strings.ToLower(strings.TrimSpace(role))
	}
	return wl
}

// Load reads a whitelist file. JSON is the default format; .yaml and .yml
// files are decoded as YAML. A missing file yields an empty whitelist.
func Load(path string, log zerolog.Logger) (Whitelist, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("whitelist file not found, using empty whitelist")
		return Whitelist{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read whitelist %s: %w", path, err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse whitelist %s: %w", path, err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("whitelist %s must be an object mapping plate -> role", path)
	}

	raw := make(map[string]string, len(obj))
	for k, v := range obj {
		raw[k] = fmt.Sprint(v)
	}
	wl := New(raw)
	log.Info().Str("path", path).Int("entries", len(wl)).Msg("whitelist loaded")
	return wl, nil
}

// Classify resolves the arrival role of a plate. Misses and roles other than
// owner/boss are visitors.
//
// TODO: confirm whether roles beyond owner/boss should get their own arrival
// types before any are added to whitelist files.
func (w Whitelist) Classify(plate string) gate.ArrivalType {
	switch w[utils.NormalizePlate(plate)] {
	case RoleOwner:
		return gate.ArrivalOwner
	case RoleBoss:
		return gate.ArrivalBoss
	default:
		return gate.ArrivalVisitor
	}
}
