package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

type Role string

const (
	RoleRequester Role = "REQUESTER"
	RoleAgent     Role = "AGENT"
	RoleOverseer  Role = "OVERSEER"
)

// ParseRole accepts the canonical names case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleRequester, RoleAgent, RoleOverseer:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// RoleSet is stored as a comma-separated column.
type RoleSet []Role

func ParseRoleSet(s string) (RoleSet, error) {
	var out RoleSet
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseRole(part)
		if err != nil {
			return nil, err
		}
		if !out.Has(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (rs RoleSet) Has(r Role) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func (rs RoleSet) String() string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func (rs RoleSet) Value() (driver.Value, error) {
	return rs.String(), nil
}

func (rs *RoleSet) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case nil:
		*rs = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("roles: unsupported column type %T", src)
	}
	parsed, err := ParseRoleSet(s)
	if err != nil {
		return err
	}
	*rs = parsed
	return nil
}

// Identity is a caller known to the directory. The core reads identities and
// never mutates them.
type Identity struct {
	ID                   uint64  `gorm:"primaryKey" json:"id"`
	Username             string  `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Roles                RoleSet `gorm:"type:varchar(128);not null" json:"roles"`
	IdentificationNumber *string `gorm:"type:varchar(64)" json:"identification_number,omitempty"`
}

func (Identity) TableName() string { return "identities" }

func (i *Identity) HasRole(r Role) bool {
	return i != nil && i.Roles.Has(r)
}

// PrimaryRole is the first role in the set, used as a display hint on chat messages.
func (i *Identity) PrimaryRole() string {
	if i == nil || len(i.Roles) == 0 {
		return ""
	}
	return string(i.Roles[0])
}
