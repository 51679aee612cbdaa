package fleet

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-fleet-portal/internal/utils"
)

type Owner struct {
	ID           string `json:"id"`
	CompanyName  string `json:"companyName"`
	ContactEmail string `json:"contactEmail"`
	ContactPhone string `json:"contactPhone,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
	TimeZone     string `json:"timeZone,omitempty"`
	FleetCount   int    `json:"fleetCount,omitempty"`
}

// OwnerRegistration is what the registration form collects. It is held in the
// tab store across the identity provider redirect.
type OwnerRegistration struct {
	CompanyName        string `json:"companyName"`
	Email              string `json:"email"`
	PrimaryContactName string `json:"primaryContactName"`
	CityID             string `json:"cityId"`
	PhoneNumber        string `json:"phoneNumber,omitempty"`
}

type CreateOwnerRequest struct {
	CompanyName  string  `json:"companyName"`
	ContactEmail string  `json:"contactEmail"`
	ContactPhone *string `json:"contactPhone"`
	CityID       string  `json:"cityId,omitempty"`
}

// CreateOwnerRequest maps a registration to the backend DTO. Built-in city
// placeholders are not backend ids, so only a UUID city id is sent.
func (r OwnerRegistration) CreateOwnerRequest() CreateOwnerRequest {
	req := CreateOwnerRequest{
		CompanyName:  r.CompanyName,
		ContactEmail: r.Email,
	}
	if phone := strings.TrimSpace(r.PhoneNumber); phone != "" {
		req.ContactPhone = utils.Ptr(phone)
	}
	if _, err := uuid.Parse(r.CityID); err == nil {
		req.CityID = r.CityID
	}
	return req
}

type OwnerUpdate struct {
	CompanyName  string `json:"companyName,omitempty"`
	ContactEmail string `json:"contactEmail,omitempty"`
	ContactPhone string `json:"contactPhone,omitempty"`
	TimeZone     string `json:"timeZone,omitempty"`
}
