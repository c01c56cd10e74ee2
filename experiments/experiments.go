// Package experiments provides an immutable snapshot of externally
// supplied experiment overrides.
//
// Overrides are keyed by experiment name and carry an opaque string
// value. The pipeline reads a snapshot exactly once, when a configuration
// is applied; nothing consults it mid-frame, which keeps per-frame
// behavior deterministic regardless of what the embedding application
// does with its flag source afterwards.
package experiments

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Snapshot is a frozen view of experiment overrides. The zero value is a
// valid empty snapshot with every experiment unset.
type Snapshot struct {
	trials map[string]string
}

// FromMap builds a snapshot from a plain name→value map. The map is
// copied; later mutations of the argument do not affect the snapshot.
func FromMap(trials map[string]string) Snapshot {
	copied := make(map[string]string, len(trials))
	for name, value := range trials {
		copied[name] = value
	}
	return Snapshot{trials: copied}
}

// Parse builds a snapshot from a packed "Name/Value/Name/Value/" string.
// A trailing separator is optional; malformed tail segments without a
// value are ignored.
func Parse(packed string) Snapshot {
	trials := make(map[string]string)
	parts := strings.Split(strings.Trim(packed, "/"), "/")
	for i := 0; i+1 < len(parts); i += 2 {
		if parts[i] == "" {
			continue
		}
		trials[parts[i]] = parts[i+1]
	}
	return Snapshot{trials: trials}
}

// FromViper builds a snapshot from the "experiments" section of a viper
// configuration, where each key is an experiment name and each value its
// override string.
func FromViper(v *viper.Viper) Snapshot {
	raw := v.GetStringMapString("experiments")
	logrus.WithFields(logrus.Fields{
		"function": "FromViper",
		"count":    len(raw),
	}).Debug("Loading experiment overrides from configuration")
	return FromMap(raw)
}

// Lookup returns the raw override value for an experiment name.
func (s Snapshot) Lookup(name string) (string, bool) {
	value, ok := s.trials[name]
	return value, ok
}

// IsEnabled reports whether the experiment's value begins with
// "Enabled".
func (s Snapshot) IsEnabled(name string) bool {
	value, ok := s.trials[name]
	return ok && strings.HasPrefix(value, "Enabled")
}

// IsDisabled reports whether the experiment is explicitly set to a value
// beginning with "Disabled". An unset experiment is neither enabled nor
// disabled.
func (s Snapshot) IsDisabled(name string) bool {
	value, ok := s.trials[name]
	return ok && strings.HasPrefix(value, "Disabled")
}

// EnabledValue parses the "Enabled-<n>" form and returns n. The second
// result is false when the experiment is unset, disabled, or carries no
// parseable number.
func (s Snapshot) EnabledValue(name string) (int, bool) {
	value, ok := s.trials[name]
	if !ok || !strings.HasPrefix(value, "Enabled-") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(value, "Enabled-"))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Snapshot.EnabledValue",
			"experiment": name,
			"value":      value,
		}).Warn("Experiment override carries a non-numeric payload")
		return 0, false
	}
	return n, true
}

// Param extracts one "key:value" parameter from an enabled experiment of
// the form "Enabled,key:value,key:value".
func (s Snapshot) Param(name, key string) (string, bool) {
	value, ok := s.trials[name]
	if !ok {
		return "", false
	}
	for _, segment := range strings.Split(value, ",") {
		k, v, found := strings.Cut(segment, ":")
		if found && k == key {
			return v, true
		}
	}
	return "", false
}
