package domain

// Pixel is one configured destination ad account. The list is loaded once at
// startup and is read-only for the process lifetime.
type Pixel struct {
	ID              string `json:"id"`
	AccessToken     string `json:"access_token"`
	Name            string `json:"name,omitempty"`
	FluxlabsEnabled bool   `json:"fluxlabs_enabled,omitempty"`
}

// DisplayName returns the configured name or falls back to the pixel id.
func (p Pixel) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
