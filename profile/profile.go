// Package profile describes sshuttle tunnel profiles.
// A Profile is built from a mapping of configuration fields, validated
// against a fixed set of field names, and translated into the command line
// of the tunnel executable.
package profile

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Configuration field names, in their internal (underscore) spelling.
const (
	FieldRemote         = "remote"
	FieldSubnets        = "subnets"
	FieldAutoHosts      = "auto_hosts"
	FieldAutoNets       = "auto_nets"
	FieldDNS            = "dns"
	FieldExcludeSubnets = "exclude_subnets"
	FieldSeedHosts      = "seed_hosts"
	FieldExtraOpts      = "extra_opts"
)

// Fields lists every configuration field in display order.
var Fields = []string{
	FieldRemote,
	FieldSubnets,
	FieldAutoHosts,
	FieldAutoNets,
	FieldDNS,
	FieldExcludeSubnets,
	FieldSeedHosts,
	FieldExtraOpts,
}

// ErrInvalidConfig is matched by every ConfigError.
var ErrInvalidConfig = errors.New("invalid profile configuration")

// ConfigError reports a profile configuration that can't be accepted.
type ConfigError struct {
	// Field is the offending configuration key.
	Field string
	// Missing is set when a required field is absent or empty.
	Missing bool
	// BadValue is set when the field holds a value of the wrong type.
	BadValue bool
}

func (e *ConfigError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("profile missing '%s' config", e.Field)
	case e.BadValue:
		return fmt.Sprintf("invalid value for profile config '%s'", e.Field)
	default:
		return fmt.Sprintf("invalid profile config '%s'", e.Field)
	}
}

// Is reports ErrInvalidConfig as a match.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Profile holds the tunnel configuration of a named profile.
type Profile struct {
	// Remote is the host to tunnel through, as user@host[:port].
	Remote string
	// Subnets are routed over the tunnel. At least one is required.
	Subnets []string
	// AutoHosts updates /etc/hosts with hostnames seen through the tunnel.
	AutoHosts bool
	// AutoNets routes additional subnets announced by the server.
	AutoNets bool
	// DNS forwards DNS queries through the tunnel.
	DNS bool
	// ExcludeSubnets are kept off the tunnel.
	ExcludeSubnets []string
	// SeedHosts seed the auto-hosts discovery.
	SeedHosts []string
	// ExtraOpts are appended verbatim to the command line.
	ExtraOpts []string
}

// New returns a profile routing the given subnets.
func New(subnets ...string) *Profile {
	return &Profile{Subnets: subnets}
}

// NormalizeField converts the external (hyphenated) spelling of a field
// name to the internal one.
func NormalizeField(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// ExternalField converts an internal field name to the hyphenated spelling
// used in persisted documents.
func ExternalField(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// FromConfig creates a profile from a mapping of configuration fields.
// Field names may use either spelling. Nil values are treated as unset.
func FromConfig(details map[string]any) (*Profile, error) {
	p := &Profile{}
	if err := p.apply(details); err != nil {
		return nil, err
	}
	if len(p.Subnets) == 0 {
		return nil, &ConfigError{Field: FieldSubnets, Missing: true}
	}
	return p, nil
}

// Update applies the given fields to the profile. The profile is left
// unchanged when any field is rejected.
func (p *Profile) Update(details map[string]any) error {
	updated := p.Clone()
	if err := updated.apply(details); err != nil {
		return err
	}
	if len(updated.Subnets) == 0 {
		return &ConfigError{Field: FieldSubnets, Missing: true}
	}
	*p = *updated
	return nil
}

// apply sets each field in details, failing on the first unknown field or
// badly typed value.
func (p *Profile) apply(details map[string]any) error {
	// Sorted keys make the reported field deterministic.
	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		field := NormalizeField(key)
		value := details[key]

		var ok bool
		switch field {
		case FieldRemote:
			if value == nil {
				p.Remote, ok = "", true
			} else {
				p.Remote, ok = value.(string)
			}
		case FieldSubnets:
			p.Subnets, ok = toStrings(value)
		case FieldAutoHosts:
			p.AutoHosts, ok = toBool(value)
		case FieldAutoNets:
			p.AutoNets, ok = toBool(value)
		case FieldDNS:
			p.DNS, ok = toBool(value)
		case FieldExcludeSubnets:
			p.ExcludeSubnets, ok = toStrings(value)
		case FieldSeedHosts:
			p.SeedHosts, ok = toStrings(value)
		case FieldExtraOpts:
			p.ExtraOpts, ok = toStrings(value)
		default:
			return &ConfigError{Field: key}
		}
		if !ok {
			return &ConfigError{Field: key, BadValue: true}
		}
	}
	return nil
}

func toBool(value any) (bool, bool) {
	if value == nil {
		return false, true
	}
	b, ok := value.(bool)
	return b, ok
}

func toStrings(value any) ([]string, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case []string:
		return slices.Clone(v), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Config returns the profile configuration as a mapping keyed by internal
// field names. Unset, false and empty fields are omitted.
func (p *Profile) Config() map[string]any {
	conf := make(map[string]any)
	if p.Remote != "" {
		conf[FieldRemote] = p.Remote
	}
	if len(p.Subnets) > 0 {
		conf[FieldSubnets] = slices.Clone(p.Subnets)
	}
	if p.AutoHosts {
		conf[FieldAutoHosts] = true
	}
	if p.AutoNets {
		conf[FieldAutoNets] = true
	}
	if p.DNS {
		conf[FieldDNS] = true
	}
	if len(p.ExcludeSubnets) > 0 {
		conf[FieldExcludeSubnets] = slices.Clone(p.ExcludeSubnets)
	}
	if len(p.SeedHosts) > 0 {
		conf[FieldSeedHosts] = slices.Clone(p.SeedHosts)
	}
	if len(p.ExtraOpts) > 0 {
		conf[FieldExtraOpts] = slices.Clone(p.ExtraOpts)
	}
	return conf
}

// Value returns the value of the named field, or nil for an unknown name.
func (p *Profile) Value(field string) any {
	switch NormalizeField(field) {
	case FieldRemote:
		return p.Remote
	case FieldSubnets:
		return p.Subnets
	case FieldAutoHosts:
		return p.AutoHosts
	case FieldAutoNets:
		return p.AutoNets
	case FieldDNS:
		return p.DNS
	case FieldExcludeSubnets:
		return p.ExcludeSubnets
	case FieldSeedHosts:
		return p.SeedHosts
	case FieldExtraOpts:
		return p.ExtraOpts
	}
	return nil
}

// Equal reports whether both profiles hold the same configuration.
// Nil and empty lists are considered equal.
func (p *Profile) Equal(other *Profile) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Remote == other.Remote &&
		slices.Equal(p.Subnets, other.Subnets) &&
		p.AutoHosts == other.AutoHosts &&
		p.AutoNets == other.AutoNets &&
		p.DNS == other.DNS &&
		slices.Equal(p.ExcludeSubnets, other.ExcludeSubnets) &&
		slices.Equal(p.SeedHosts, other.SeedHosts) &&
		slices.Equal(p.ExtraOpts, other.ExtraOpts)
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Subnets = slices.Clone(p.Subnets)
	c.ExcludeSubnets = slices.Clone(p.ExcludeSubnets)
	c.SeedHosts = slices.Clone(p.SeedHosts)
	c.ExtraOpts = slices.Clone(p.ExtraOpts)
	return &c
}

// Cmdline returns the command line running executable for the profile,
// followed by extraOpts.
func (p *Profile) Cmdline(executable string, extraOpts []string) []string {
	cmd := append([]string{executable}, p.Subnets...)
	if p.Remote != "" {
		cmd = append(cmd, "--remote="+p.Remote)
	}
	if p.AutoHosts {
		cmd = append(cmd, "--auto-hosts")
	}
	if p.AutoNets {
		cmd = append(cmd, "--auto-nets")
	}
	if p.DNS {
		cmd = append(cmd, "--dns")
	}
	for _, subnet := range p.ExcludeSubnets {
		cmd = append(cmd, "--exclude="+subnet)
	}
	if len(p.SeedHosts) > 0 {
		cmd = append(cmd, "--seed-hosts="+strings.Join(p.SeedHosts, ","))
	}
	cmd = append(cmd, p.ExtraOpts...)
	return append(cmd, extraOpts...)
}
