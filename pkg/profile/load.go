package profile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/logweave/logweave/pkg/records"
	"gopkg.in/yaml.v3"
)

var (
	ErrBadPattern       = errors.New("invalid matcher pattern")
	ErrBadFilter        = errors.New("invalid filter expression")
	ErrDuplicateMatcher = errors.New("duplicate matcher name")
	ErrUnknownColumn    = errors.New("unknown column reference")
	ErrBadDateBound     = errors.New("invalid date bound")
)

// ConfigError is the only fatal error class in the pipeline. It identifies
// the offending profile and field, and prevents any processing from
// starting.
type ConfigError struct {
	Profile string
	Field   string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("profile %q, field %q: %v", e.Profile, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(profile, field string, err error) error {
	return &ConfigError{Profile: profile, Field: field, Err: err}
}

// DefaultsName is the name of the section every other profile inherits
// from.
const DefaultsName = "defaults"

// DefaultMaxMessageLength caps the Message column unless a profile says
// otherwise.
const DefaultMaxMessageLength = 1000000

// Set holds every profile resolved from one configuration document.
type Set struct {
	profiles map[string]*Profile
}

// Profile returns the named resolved profile. The defaults profile itself
// is addressable under DefaultsName.
func (s *Set) Profile(name string) (*Profile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// Names returns the names of all profiles in the set, defaults included.
func (s *Set) Names() []string {
	var names []string
	for n := range s.profiles {
		names = append(names, n)
	}
	return names
}

// section mirrors one YAML profile section before resolution. Every field
// is optional so that inheritance can distinguish "not set" from "set to
// empty". A set field replaces the inherited value in full, matcher maps
// and filter lists are never partially merged.
type section struct {
	Matchers         *matcherDecls `yaml:"matchers"`
	Columns          *string       `yaml:"columns"`
	Filters          *[]string     `yaml:"filters"`
	From             *string       `yaml:"from"`
	To               *string       `yaml:"to"`
	Files            *string       `yaml:"files"`
	ViewerURL        *string       `yaml:"viewer_url"`
	MaxMessageLength *int          `yaml:"max_message_length"`
}

type document struct {
	Defaults section            `yaml:"defaults"`
	Profiles map[string]section `yaml:"profiles"`
}

// matcherDecls preserves the declaration order of the YAML mapping, which
// plain map decoding would lose.
type matcherDecls struct {
	decls []matcherDecl
}

type matcherDecl struct {
	name    string
	pattern string
}

func (m *matcherDecls) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("matchers must be a mapping of name to pattern")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		m.decls = append(m.decls, matcherDecl{
			name:    node.Content[i].Value,
			pattern: node.Content[i+1].Value,
		})
	}
	return nil
}

// builtinDefaults covers fields the configuration file leaves unset in its
// defaults section, mirroring the logging framework this tool grew up
// with: a leading sortable timestamp and a bracketed level token.
func builtinDefaults() section {
	matchers := &matcherDecls{decls: []matcherDecl{
		{name: records.TimestampColumn, pattern: `^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?)`},
		{name: "Level", pattern: `\[(INFO_|DEBUG|VRBSE|WARNG|ERROR|FATAL|UNDEF|DEBG1|DEBG2)\]`},
	}}
	columns := "Timestamp, Level, Message"
	files := "*.log"
	maxLen := DefaultMaxMessageLength
	return section{
		Matchers:         matchers,
		Columns:          &columns,
		Files:            &files,
		MaxMessageLength: &maxLen,
	}
}

// overlay copies every field set in over on top of base. Fields are wholly
// inherited or wholly replaced, never merged.
func overlay(base, over section) section {
	out := base
	if over.Matchers != nil {
		out.Matchers = over.Matchers
	}
	if over.Columns != nil {
		out.Columns = over.Columns
	}
	if over.Filters != nil {
		out.Filters = over.Filters
	}
	if over.From != nil {
		out.From = over.From
	}
	if over.To != nil {
		out.To = over.To
	}
	if over.Files != nil {
		out.Files = over.Files
	}
	if over.ViewerURL != nil {
		out.ViewerURL = over.ViewerURL
	}
	if over.MaxMessageLength != nil {
		out.MaxMessageLength = over.MaxMessageLength
	}
	return out
}

// LoadFile reads and resolves a configuration file. See Load.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return Load(f)
}

// Load parses a YAML configuration document, resolves every named profile
// over the defaults section, and validates the result. Any violation is
// returned as a *ConfigError and no profile from the document should be
// used.
func Load(r io.Reader) (*Set, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, configErr(DefaultsName, "", err)
	}

	defaults := overlay(builtinDefaults(), doc.Defaults)
	set := &Set{profiles: map[string]*Profile{}}

	resolved, err := resolve(DefaultsName, defaults)
	if err != nil {
		return nil, err
	}
	set.profiles[DefaultsName] = resolved

	for name, sec := range doc.Profiles {
		resolved, err := resolve(name, overlay(defaults, sec))
		if err != nil {
			return nil, err
		}
		set.profiles[name] = resolved
	}
	return set, nil
}

func resolve(name string, sec section) (*Profile, error) {
	p := &Profile{Name: name, MaxMessageLength: DefaultMaxMessageLength}

	if sec.Matchers != nil {
		for _, d := range sec.Matchers.decls {
			if p.Matcher(d.name) != nil {
				return nil, configErr(name, "matchers", fmt.Errorf("%w: %s", ErrDuplicateMatcher, d.name))
			}
			m, err := compileMatcher(d.name, d.pattern)
			if err != nil {
				return nil, configErr(name, "matchers."+d.name, err)
			}
			p.Matchers = append(p.Matchers, m)
		}
	}

	if sec.Columns != nil {
		for _, c := range strings.Split(*sec.Columns, ",") {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if !p.HasColumn(c) {
				return nil, configErr(name, "columns", fmt.Errorf("%w: %s", ErrUnknownColumn, c))
			}
			p.OutputColumns = append(p.OutputColumns, c)
		}
	}

	if sec.Filters != nil {
		for _, expr := range *sec.Filters {
			f, err := ParseFilter(expr)
			if err != nil {
				return nil, configErr(name, "filters", err)
			}
			if !p.HasColumn(f.Field) {
				return nil, configErr(name, "filters", fmt.Errorf("%w: %s", ErrUnknownColumn, f.Field))
			}
			p.Filters = append(p.Filters, f)
		}
	}

	if sec.From != nil && *sec.From != "" {
		t, ok := records.ParseTime(*sec.From)
		if !ok {
			return nil, configErr(name, "from", fmt.Errorf("%w: %q", ErrBadDateBound, *sec.From))
		}
		p.From = &t
	}
	if sec.To != nil && *sec.To != "" {
		t, ok := records.ParseTime(*sec.To)
		if !ok {
			return nil, configErr(name, "to", fmt.Errorf("%w: %q", ErrBadDateBound, *sec.To))
		}
		p.To = &t
	}
	if p.From != nil && p.To != nil && p.From.After(*p.To) {
		return nil, configErr(name, "from", fmt.Errorf("%w: from %s is after to %s", ErrBadDateBound, p.From, p.To))
	}

	if sec.Files != nil {
		p.SourceFiles = *sec.Files
	}
	if sec.ViewerURL != nil {
		p.ViewerURL = *sec.ViewerURL
	}
	if sec.MaxMessageLength != nil {
		p.MaxMessageLength = *sec.MaxMessageLength
	}
	return p, nil
}
