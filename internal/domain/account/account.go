package account

import "time"

type Account struct {
	ID             string    `json:"id"`
	FullName       string    `json:"fullName"`
	Email          string    `json:"email"`
	CredentialHash string    `json:"-"` // never expose hash in JSON
	Bio            string    `json:"bio"`
	AvatarURL      *string   `json:"avatarUrl"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Profile is the outward-facing projection of an Account.
type Profile struct {
	ID        string  `json:"id"`
	FullName  string  `json:"fullName"`
	Email     string  `json:"email"`
	Bio       string  `json:"bio"`
	AvatarURL *string `json:"avatarUrl"`
}

func (a Account) Profile() Profile {
	return Profile{
		ID:        a.ID,
		FullName:  a.FullName,
		Email:     a.Email,
		Bio:       a.Bio,
		AvatarURL: a.AvatarURL,
	}
}

// Patch carries the fields of a partial update; nil means "leave unchanged".
type Patch struct {
	FullName  *string
	Bio       *string
	AvatarURL *string
}

func (p Patch) Empty() bool {
	return p.FullName == nil && p.Bio == nil && p.AvatarURL == nil
}

// Apply merges the patch onto a copy of a.
func (p Patch) Apply(a Account) Account {
	if p.FullName != nil {
		a.FullName = *p.FullName
	}
	if p.Bio != nil {
		a.Bio = *p.Bio
	}
	if p.AvatarURL != nil {
		url := *p.AvatarURL
		a.AvatarURL = &url
	}
	return a
}

type RegisterInput struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	Bio      string `json:"bio" validate:"required,max=500"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// ProfileUpdate is the caller's partial profile change. AvatarImage holds an
// encoded image (data URL or bare base64) that is uploaded before persisting.
type ProfileUpdate struct {
	FullName    *string `json:"fullName" validate:"omitnil,min=1,max=100"`
	Bio         *string `json:"bio" validate:"omitnil,max=500"`
	AvatarImage *string `json:"avatarImage"`
}
