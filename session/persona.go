package session

import (
	"fmt"

	"github.com/jrsteele09/go-fleet-portal/internal/errors"
)

// Persona is one of the two mutually exclusive portal roles.
type Persona string

const (
	PersonaNone      Persona = ""
	PersonaOwner     Persona = "owner"
	PersonaFleetUser Persona = "fleet-user"
)

func (p Persona) Valid() bool {
	return p == PersonaOwner || p == PersonaFleetUser
}

func (p Persona) String() string {
	if p == PersonaNone {
		return "none"
	}
	return string(p)
}

// ParsePersona accepts "owner", "fleet-user" and the legacy "user".
func ParsePersona(s string) (Persona, error) {
	switch s {
	case "owner":
		return PersonaOwner, nil
	case "fleet-user", "user":
		return PersonaFleetUser, nil
	case "", "none":
		return PersonaNone, nil
	}
	return PersonaNone, fmt.Errorf("%w: %q", errors.ErrUnknownPersona, s)
}

// defaultReturnTo is where a redirect login lands when the caller gives no
// return location.
var defaultReturnTo = map[Persona]string{
	PersonaOwner:     "/owner/dashboard",
	PersonaFleetUser: "/user/dashboard",
}
