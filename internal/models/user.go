package models

import (
	"fmt"
	"sort"
	"strings"
)

// Right is a capability checked before an operation is allowed.
type Right string

const (
	RightGuest  Right = "GUEST"
	RightUser   Right = "USER"
	RightUpload Right = "UPLOAD"
	RightAdmin  Right = "ADMIN"
)

var AllRights = []Right{RightGuest, RightUser, RightUpload, RightAdmin}

func ParseRight(s string) (Right, error) {
	r := Right(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllRights {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown right %q", s)
}

// Attribute is a boolean flag on a user.
type Attribute string

const (
	AttrPasswordResetRequired Attribute = "PASSWORD_RESET_REQUIRED"
)

func ParseAttribute(s string) (Attribute, error) {
	a := Attribute(strings.ToUpper(strings.TrimSpace(s)))
	if a == AttrPasswordResetRequired {
		return a, nil
	}
	return "", fmt.Errorf("unknown attribute %q", s)
}

type User struct {
	Username   string
	PassHash   string
	Rights     map[Right]struct{}
	Attributes map[Attribute]struct{}
}

func NewUser(username string, rights ...Right) *User {
	u := &User{
		Username:   username,
		Rights:     make(map[Right]struct{}),
		Attributes: make(map[Attribute]struct{}),
	}
	for _, r := range rights {
		u.Rights[r] = struct{}{}
	}
	return u
}

// HasRight reports whether the user holds right. ADMIN passes every check.
func (u *User) HasRight(right Right) bool {
	if u == nil {
		return false
	}
	if _, ok := u.Rights[RightAdmin]; ok {
		return true
	}
	_, ok := u.Rights[right]
	return ok
}

func (u *User) AddRight(r Right) {
	if u.Rights == nil {
		u.Rights = make(map[Right]struct{})
	}
	u.Rights[r] = struct{}{}
}

func (u *User) SetRights(rights ...Right) {
	u.Rights = make(map[Right]struct{}, len(rights))
	for _, r := range rights {
		u.Rights[r] = struct{}{}
	}
}

func (u *User) HasAttribute(a Attribute) bool {
	if u == nil {
		return false
	}
	_, ok := u.Attributes[a]
	return ok
}

func (u *User) AddAttribute(a Attribute) {
	if u.Attributes == nil {
		u.Attributes = make(map[Attribute]struct{})
	}
	u.Attributes[a] = struct{}{}
}

func (u *User) RemoveAttribute(a Attribute) {
	delete(u.Attributes, a)
}

// RightList returns the rights in sorted order.
func (u *User) RightList() []Right {
	out := make([]Right, 0, len(u.Rights))
	for r := range u.Rights {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (u *User) AttributeList() []Attribute {
	out := make([]Attribute, 0, len(u.Attributes))
	for a := range u.Attributes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsGuest reports whether u is the unauthenticated identity.
func (u *User) IsGuest() bool {
	return u == nil || u.Username == guestUsername
}

const guestUsername = "guest"

// IsReservedUsername reports whether name cannot belong to a stored user.
func IsReservedUsername(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), guestUsername)
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := NewUser(u.Username, u.RightList()...)
	c.PassHash = u.PassHash
	for a := range u.Attributes {
		c.Attributes[a] = struct{}{}
	}
	return c
}

// Guest returns a fresh copy of the unauthenticated user. It is never
// persisted.
func Guest() *User {
	return NewUser(guestUsername, RightGuest)
}

// UserView is the JSON shape of a user; the password hash never leaves
// the process.
type UserView struct {
	Username   string      `json:"username"`
	Rights     []Right     `json:"rights"`
	Attributes []Attribute `json:"attributes"`
}

func (u *User) View() UserView {
	return UserView{
		Username:   u.Username,
		Rights:     u.RightList(),
		Attributes: u.AttributeList(),
	}
}
