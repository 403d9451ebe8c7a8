package domain

import "slices"

// Person is a user profile. PubKey is derived from the user's key material
// and is the only stable identifier; Alias is display-only and may collide.
type Person struct {
	PubKey          string   `json:"owner_pubkey,omitempty" yaml:"owner_pubkey,omitempty"`
	Alias           string   `json:"owner_alias,omitempty" yaml:"owner_alias,omitempty"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	Img             string   `json:"img,omitempty" yaml:"img,omitempty"`
	Twitter         string   `json:"twitter,omitempty" yaml:"twitter,omitempty"`
	Github          string   `json:"github,omitempty" yaml:"github,omitempty"`
	CodingLanguages []string `json:"coding_languages,omitempty" yaml:"coding_languages,omitempty"`

	IsAdmin  bool `json:"is_admin,omitempty" yaml:"is_admin,omitempty"`
	IsMember bool `json:"is_member,omitempty" yaml:"is_member,omitempty"`
}

// IsZero reports whether p carries no data at all.
func (p Person) IsZero() bool {
	return p.PubKey == "" && p.Alias == "" && p.Description == "" && p.Img == "" &&
		p.Twitter == "" && p.Github == "" && len(p.CodingLanguages) == 0 &&
		!p.IsAdmin && !p.IsMember
}

// Clone returns a copy that shares no memory with p.
func (p Person) Clone() Person {
	p.CodingLanguages = slices.Clone(p.CodingLanguages)
	return p
}

// AliasFromPubKey derives a display alias from the first n characters of a
// public key. Two keys sharing a prefix produce the same alias; callers
// accept the collision.
func AliasFromPubKey(pubkey string, n int) string {
	if n <= 0 || len(pubkey) <= n {
		return pubkey
	}
	return pubkey[:n]
}
