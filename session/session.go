package session

import (
	"context"

	"github.com/jrsteele09/go-fleet-portal/api"
	"github.com/jrsteele09/go-fleet-portal/fleet"
	"github.com/jrsteele09/go-fleet-portal/identity"
)

// Session is one persona's view of its authentication. The zero value is a
// signed-out session.
type Session struct {
	Token   *identity.Token
	Profile *Profile
}

func (s Session) HasToken() bool { return s.Token != nil && s.Token.AccessToken != "" }

// Profile is the domain identity behind a token. For the owner persona it is
// the backend owner record; for the fleet user it is read from token claims.
type Profile struct {
	Persona Persona
	OwnerID string
	Subject string
	Email   string
	Name    string
	Roles   []string
	Owner   *fleet.Owner
}

func (p *Profile) clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Roles = append([]string(nil), p.Roles...)
	if p.Owner != nil {
		owner := *p.Owner
		c.Owner = &owner
	}
	return &c
}

func ownerProfile(owner *fleet.Owner) *Profile {
	o := *owner
	return &Profile{
		Persona: PersonaOwner,
		OwnerID: o.ID,
		Email:   o.ContactEmail,
		Name:    o.CompanyName,
		Owner:   &o,
	}
}

func claimsProfile(claims identity.Claims) *Profile {
	return &Profile{
		Persona: PersonaFleetUser,
		OwnerID: claims.OwnerID,
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Roles:   claims.Roles,
	}
}

// Credentials are the owner's direct login credentials.
type Credentials = api.LoginRequest

// Backend is the part of the REST API the session layer calls.
type Backend interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.AuthResponse, error)
	GetOwnerMe(ctx context.Context) (*fleet.Owner, error)
	UpdateOwnerMe(ctx context.Context, update fleet.OwnerUpdate) (*fleet.Owner, error)
	CreateOwner(ctx context.Context, req fleet.CreateOwnerRequest) (*fleet.Owner, error)
}

var _ Backend = (*api.Client)(nil)
