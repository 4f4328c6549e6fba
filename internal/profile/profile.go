package profile

import "strings"

// Contact holds the channels a person can be reached on.
type Contact struct {
	Phone string `json:"phone,omitempty" mapstructure:"phone"`
	Email string `json:"email,omitempty" mapstructure:"email"`
}

// Profile is a networking profile as kept by the profile store.
type Profile struct {
	ID        string   `json:"id" mapstructure:"id"`
	Name      string   `json:"name,omitempty" mapstructure:"name"`
	Role      string   `json:"role,omitempty" mapstructure:"role"`
	Industry  string   `json:"industry,omitempty" mapstructure:"industry"`
	Seniority string   `json:"seniority,omitempty" mapstructure:"seniority"`
	Interests []string `json:"interests,omitempty" mapstructure:"interests"`
	Goals     []string `json:"goals,omitempty" mapstructure:"goals"`
	Contact   Contact  `json:"contact,omitempty" mapstructure:"contact"`
}

// DisplayName returns the profile name or the fallback when it is unknown.
func (p *Profile) DisplayName(fallback string) string {
	if p == nil {
		return fallback
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return fallback
}

// HasContact reports whether at least one delivery channel is present.
func (p *Profile) HasContact() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.Contact.Phone) != "" || strings.TrimSpace(p.Contact.Email) != ""
}

// Update is a partial profile update. Nil fields are left untouched.
type Update struct {
	Name      *string   `json:"name,omitempty"`
	Role      *string   `json:"role,omitempty"`
	Industry  *string   `json:"industry,omitempty"`
	Seniority *string   `json:"seniority,omitempty"`
	Interests *[]string `json:"interests,omitempty"`
	Goals     *[]string `json:"goals,omitempty"`
	Contact   *Contact  `json:"contact,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u *Update) IsEmpty() bool {
	return u == nil || (u.Name == nil && u.Role == nil && u.Industry == nil && u.Seniority == nil &&
		u.Interests == nil && u.Goals == nil && u.Contact == nil)
}

// Apply merges the update into p.
func (u *Update) Apply(p *Profile) {
	if u == nil || p == nil {
		return
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.Industry != nil {
		p.Industry = *u.Industry
	}
	if u.Seniority != nil {
		p.Seniority = *u.Seniority
	}
	if u.Interests != nil {
		p.Interests = append([]string(nil), (*u.Interests)...)
	}
	if u.Goals != nil {
		p.Goals = append([]string(nil), (*u.Goals)...)
	}
	if u.Contact != nil {
		p.Contact = *u.Contact
	}
}
