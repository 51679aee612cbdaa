package fleet

type Country struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ISOCode string `json:"isoCode"`
}

type City struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CountryID      string `json:"countryId"`
	CountryName    string `json:"countryName,omitempty"`
	CountryISOCode string `json:"countryIsoCode,omitempty"`
	TimeZone       string `json:"timeZone,omitempty"`
}
