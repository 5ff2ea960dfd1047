// Package identity reads identity seed files for the directory.
package identity

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/psds-microservice/agri-support-service/internal/model"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout:
//
//	identities:
//	  - username: officer_a
//	    roles: [AGENT]
//	    identification_number: GO-17
type seedFile struct {
	Identities []seedEntry `yaml:"identities"`
}

type seedEntry struct {
	Username             string   `yaml:"username"`
	Roles                []string `yaml:"roles"`
	IdentificationNumber string   `yaml:"identification_number"`
}

// DecodeSeed parses and validates a seed file. Usernames must be unique.
func DecodeSeed(r io.Reader) ([]model.Identity, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	seen := make(map[string]bool, len(f.Identities))
	out := make([]model.Identity, 0, len(f.Identities))
	for i, e := range f.Identities {
		name := strings.TrimSpace(e.Username)
		if name == "" {
			return nil, fmt.Errorf("entry %d: username is required", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("entry %d: duplicate username %q", i, name)
		}
		seen[name] = true
		roles, err := model.ParseRoleSet(strings.Join(e.Roles, ","))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("entry %d: at least one role is required", i)
		}
		ident := model.Identity{Username: name, Roles: roles}
		if n := strings.TrimSpace(e.IdentificationNumber); n != "" {
			ident.IdentificationNumber = &n
		}
		out = append(out, ident)
	}
	return out, nil
}
