package domain

import "encoding/json"

// RawBountyBundle is a bounty as delivered by the API together with its
// related records. Any sub-record may be missing or partial.
type RawBountyBundle struct {
	Bounty       *Bounty       `json:"bounty" yaml:"bounty"`
	Owner        *Person       `json:"owner,omitempty" yaml:"owner,omitempty"`
	Assignee     *Person       `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Organization *Organization `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// ID returns the bounty id, or "" when the bounty sub-record is missing.
func (r RawBountyBundle) ID() string {
	if r.Bounty == nil {
		return ""
	}
	return r.Bounty.ID
}

// Clone deep-copies every present sub-record.
func (r RawBountyBundle) Clone() RawBountyBundle {
	var out RawBountyBundle
	if r.Bounty != nil {
		b := r.Bounty.Clone()
		out.Bounty = &b
	}
	if r.Owner != nil {
		p := r.Owner.Clone()
		out.Owner = &p
	}
	if r.Assignee != nil {
		p := r.Assignee.Clone()
		out.Assignee = &p
	}
	if r.Organization != nil {
		o := r.Organization.Clone()
		out.Organization = &o
	}
	return out
}

// Assignee is the assigned person inside a view model. The empty value
// encodes as the JSON string "" so renderers can treat it as falsy text.
type Assignee struct {
	Person
}

// Assigned reports whether the assignee carries any data.
func (a Assignee) Assigned() bool {
	return !a.Person.IsZero()
}

// String returns the alias, falling back to the pubkey, or "" when empty.
func (a Assignee) String() string {
	if a.Alias != "" {
		return a.Alias
	}
	return a.PubKey
}

func (a Assignee) MarshalJSON() ([]byte, error) {
	if !a.Assigned() {
		return []byte(`""`), nil
	}
	return json.Marshal(a.Person)
}

func (a *Assignee) UnmarshalJSON(data []byte) error {
	if string(data) == `""` || string(data) == "null" {
		*a = Assignee{}
		return nil
	}
	return json.Unmarshal(data, &a.Person)
}

// Body is the bounty flattened for rendering.
type Body struct {
	Bounty
	Assignee Assignee `json:"assignee"`
}

// Owner is the posting person with the lazily populated open-bounty list.
type Owner struct {
	Person
	Wanteds []Bounty `json:"wanteds"`
}

// ViewModel is the denormalized record handed to rendering. It never shares
// memory with the raw store.
type ViewModel struct {
	Body         Body         `json:"body"`
	Person       Owner        `json:"person"`
	Organization Organization `json:"organization"`
}

// ID returns the bounty id.
func (v ViewModel) ID() string {
	return v.Body.ID
}
