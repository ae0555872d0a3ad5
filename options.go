// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package nestedset

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
)

// TableOptions names the table and the structural columns a relational store
// operates on. The names are validated and quoted once when the store is
// constructed; they never come from requests.
type TableOptions struct {
	Name    string
	ID      string
	TreeKey string
	Left    string
	Right   string
	Level   string
}

// EnsureDefaults fills in the conventional column names.
func (t *TableOptions) EnsureDefaults() {
	if t.Name == "" {
		t.Name = "nodes"
	}
	if t.ID == "" {
		t.ID = "id"
	}
	if t.TreeKey == "" {
		t.TreeKey = "tree_id"
	}
	if t.Left == "" {
		t.Left = "left"
	}
	if t.Right == "" {
		t.Right = "right"
	}
	if t.Level == "" {
		t.Level = "level"
	}
}

// Columns returns the structural column names in id, tree key, left, right,
// level order.
func (t *TableOptions) Columns() []string {
	return []string{t.ID, t.TreeKey, t.Left, t.Right, t.Level}
}

// Options holds the optional parameters for configuring an Engine and the
// stores it runs against. These options apply to the engine at large; the
// per-call attribute projection is passed to each read.
type Options struct {
	// Table names the table and its structural columns.
	Table TableOptions

	// Attributes is the allow-list of attribute columns a node may carry.
	// Writes naming any other column fail; reads silently drop them.
	//
	// The default value is ["title"].
	Attributes []string

	// DefaultProjection is the set of attributes returned by reads that pass
	// a nil projection. It must be a subset of Attributes.
	//
	// The default value is ["title"].
	DefaultProjection []string

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// EventListener provides hooks to listening to significant engine events
	// such as inserts, deletes and moves.
	EventListener *EventListener

	// Metrics, if set, records the count and latency of every operation.
	Metrics *Metrics
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	o.Table.EnsureDefaults()
	if len(o.Attributes) == 0 {
		o.Attributes = []string{"title"}
	}
	if o.DefaultProjection == nil {
		o.DefaultProjection = []string{"title"}
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger{}
	}
	if o.EventListener == nil {
		o.EventListener = &EventListener{}
	}
	o.EventListener.EnsureDefaults(o.Logger)
	return o
}

// Clone creates a shallow-copy of the supplied options.
func (o *Options) Clone() *Options {
	if o == nil {
		return &Options{}
	}
	n := *o
	n.Attributes = slices.Clone(o.Attributes)
	n.DefaultProjection = slices.Clone(o.DefaultProjection)
	if o.EventListener != nil {
		l := *o.EventListener
		n.EventListener = &l
	}
	return &n
}

// Validate verifies that the options are mutually consistent. For example,
// every attribute in the default projection must be allow-listed.
func (o *Options) Validate() error {
	// Note that we can presume Options.EnsureDefaults has been called, so there
	// is no need to check for zero values.

	var buf strings.Builder
	checkIdent := func(what, name string) {
		if !identRE.MatchString(name) {
			fmt.Fprintf(&buf, "%s (%q) is not a valid identifier\n", what, name)
		}
	}
	checkIdent("Table.Name", o.Table.Name)
	checkIdent("Table.ID", o.Table.ID)
	checkIdent("Table.TreeKey", o.Table.TreeKey)
	checkIdent("Table.Left", o.Table.Left)
	checkIdent("Table.Right", o.Table.Right)
	checkIdent("Table.Level", o.Table.Level)

	structural := o.Table.Columns()
	seen := make(map[string]struct{}, len(o.Attributes))
	for _, a := range o.Attributes {
		checkIdent("Attributes", a)
		if slices.Contains(structural, a) {
			fmt.Fprintf(&buf, "Attributes (%q) shadows a structural column\n", a)
		}
		if _, ok := seen[a]; ok {
			fmt.Fprintf(&buf, "Attributes (%q) is listed twice\n", a)
		}
		seen[a] = struct{}{}
	}
	for _, a := range o.DefaultProjection {
		if _, ok := seen[a]; !ok {
			fmt.Fprintf(&buf, "DefaultProjection (%q) is not in Attributes\n", a)
		}
	}

	if buf.Len() == 0 {
		return nil
	}
	return errors.New(buf.String())
}

// String returns the options in the INI format understood by Parse.
func (o *Options) String() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[Version]\n")
	fmt.Fprintf(&buf, "  nestedset_version=0.1\n")
	fmt.Fprintf(&buf, "\n")
	fmt.Fprintf(&buf, "[Table]\n")
	fmt.Fprintf(&buf, "  name=%s\n", o.Table.Name)
	fmt.Fprintf(&buf, "  id=%s\n", o.Table.ID)
	fmt.Fprintf(&buf, "  tree_key=%s\n", o.Table.TreeKey)
	fmt.Fprintf(&buf, "  left=%s\n", o.Table.Left)
	fmt.Fprintf(&buf, "  right=%s\n", o.Table.Right)
	fmt.Fprintf(&buf, "  level=%s\n", o.Table.Level)
	fmt.Fprintf(&buf, "\n")
	fmt.Fprintf(&buf, "[Attributes]\n")
	fmt.Fprintf(&buf, "  allowed=%s\n", strings.Join(o.Attributes, ","))
	fmt.Fprintf(&buf, "  default_projection=%s\n", strings.Join(o.DefaultProjection, ","))
	return buf.String()
}

// parseOptions takes options serialized by Options.String() and parses them
// into keys and values, calling visitKeyValue for each key-value pair.
func parseOptions(s string, visitKeyValue func(section, key, value string) error) error {
	var section string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || line[0] == ';' || line[0] == '#' {
			// Skip blank lines and comments.
			continue
		}
		n := len(line)
		if line[0] == '[' && line[n-1] == ']' {
			section = line[1 : n-1]
			continue
		}

		pos := strings.Index(line, "=")
		if pos < 0 {
			const maxLen = 50
			if len(line) > maxLen {
				line = line[:maxLen-3] + "..."
			}
			return CorruptionErrorf("invalid key=value syntax: %q", errors.Safe(line))
		}
		key := strings.TrimSpace(line[:pos])
		value := strings.TrimSpace(line[pos+1:])
		if err := visitKeyValue(section, key, value); err != nil {
			return err
		}
	}
	return nil
}

// ParseHooks contains callbacks for options the parser does not know about.
type ParseHooks struct {
	SkipUnknown func(name, value string) bool
}

func splitList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Parse parses the options from the specified string. Note that the Logger,
// EventListener and Metrics cannot be parsed and are left untouched.
func (o *Options) Parse(s string, hooks *ParseHooks) error {
	return parseOptions(s, func(section, key, value string) error {
		unknown := func() error {
			if hooks != nil && hooks.SkipUnknown != nil && hooks.SkipUnknown(section+"."+key, value) {
				return nil
			}
			return errors.Errorf("nestedset: unknown option: %s.%s",
				errors.Safe(section), errors.Safe(key))
		}

		switch section {
		case "Version":
			switch key {
			case "nestedset_version":
			default:
				return unknown()
			}
		case "Table":
			switch key {
			case "name":
				o.Table.Name = value
			case "id":
				o.Table.ID = value
			case "tree_key":
				o.Table.TreeKey = value
			case "left":
				o.Table.Left = value
			case "right":
				o.Table.Right = value
			case "level":
				o.Table.Level = value
			default:
				return unknown()
			}
		case "Attributes":
			switch key {
			case "allowed":
				o.Attributes = splitList(value)
			case "default_projection":
				o.DefaultProjection = splitList(value)
			default:
				return unknown()
			}
		default:
			return unknown()
		}
		return nil
	})
}
