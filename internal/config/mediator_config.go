package config

import "strings"

type MediatorConfig interface {
	GetPublicPaths() PublicPaths
}

type Mediator struct {
	file *File
}

var _ MediatorConfig = Mediator{}

func (m Mediator) src() *File { return orEmpty(m.file) }

// PublicPaths lists path prefixes of reference-data endpoints that are called
// without credentials.
type PublicPaths []string

func (p PublicPaths) IsPublic(path string) bool {
	lower := strings.ToLower(path)
	for _, prefix := range p {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func (p PublicPaths) String() string {
	return strings.Join(p, ", ")
}

var defaultPublicPaths = []string{"/api/Countries", "/api/Cities"}

func (m Mediator) GetPublicPaths() PublicPaths {
	return PublicPaths(lookupList("MEDIATOR_PUBLIC_PATHS", m.src().PublicPaths, defaultPublicPaths))
}
