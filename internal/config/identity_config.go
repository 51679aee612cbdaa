package config

type IdentityConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetAudience() string
	GetRedirectURI() string
	GetScopes() []string
}

type Identity struct {
	file *File
}

var _ IdentityConfig = Identity{}

func (i Identity) src() *File { return orEmpty(i.file) }

// GetIssuerURL is the identity provider issuer (e.g., "https://tenant.us.auth0.com/").
// Discovery is performed against it.
func (i Identity) GetIssuerURL() string {
	return lookup("IDP_ISSUER", i.src().Identity.Issuer, "")
}

func (i Identity) GetClientID() string {
	return lookup("IDP_CLIENT_ID", i.src().Identity.ClientID, "")
}

// GetClientSecret is empty for public (PKCE only) clients.
func (i Identity) GetClientSecret() string {
	return lookup("IDP_CLIENT_SECRET", i.src().Identity.ClientSecret, "")
}

// GetAudience must match the API identifier the backend validates,
// otherwise every call fails with 401.
func (i Identity) GetAudience() string {
	return lookup("IDP_AUDIENCE", i.src().Identity.Audience, "")
}

func (i Identity) GetRedirectURI() string {
	return lookup("IDP_REDIRECT_URI", i.src().Identity.RedirectURI, "http://localhost:4200/login/callback")
}

func (i Identity) GetScopes() []string {
	return lookupList("IDP_SCOPES", i.src().Identity.Scopes, []string{"openid", "profile", "email", "offline_access"})
}
