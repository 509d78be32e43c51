package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Pipedrive returns timestamps as naive UTC strings ("2024-01-15 10:30:00"),
// occasionally as RFC3339 for newer endpoints.
const pipedriveTimeLayout = "2006-01-02 15:04:05"

// ParseRemoteTime parses a Pipedrive timestamp string. Empty input yields nil.
func ParseRemoteTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(pipedriveTimeLayout, s); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}

// RemoteEmail is one entry of a person's email list.
type RemoteEmail struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary"`
}

// RemotePhone is one entry of a person's phone list.
type RemotePhone struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary"`
}

// RemoteOrgRef is a person's organization reference. Pipedrive serializes it
// either as a bare numeric id or as an embedded object.
type RemoteOrgRef struct {
	Value   int64  `json:"value"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// UnmarshalJSON accepts both the bare-id and the object form.
func (r *RemoteOrgRef) UnmarshalJSON(data []byte) error {
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		r.Value = id
		return nil
	}
	type alias RemoteOrgRef
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = RemoteOrgRef(obj)
	return nil
}

// ExternalID returns the reference as the string form stored locally,
// or "" when the person has no organization.
func (r *RemoteOrgRef) ExternalID() string {
	if r == nil || r.Value == 0 {
		return ""
	}
	return strconv.FormatInt(r.Value, 10)
}

// RemotePerson is the subset of a Pipedrive person record consumed by sync.
type RemotePerson struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	Email      []RemoteEmail `json:"email"`
	Phone      []RemotePhone `json:"phone"`
	OrgID      *RemoteOrgRef `json:"org_id"`
	OrgName    string        `json:"org_name"`
	AddTime    string        `json:"add_time"`
	UpdateTime string        `json:"update_time"`
}

// PrimaryEmail picks the address flagged primary, falling back to the first
// entry; returns "" when the person has no email at all.
func (p *RemotePerson) PrimaryEmail() string {
	for _, e := range p.Email {
		if e.Primary && e.Value != "" {
			return e.Value
		}
	}
	for _, e := range p.Email {
		if e.Value != "" {
			return e.Value
		}
	}
	return ""
}

// PrimaryPhone mirrors PrimaryEmail for phone numbers.
func (p *RemotePerson) PrimaryPhone() string {
	for _, ph := range p.Phone {
		if ph.Primary && ph.Value != "" {
			return ph.Value
		}
	}
	for _, ph := range p.Phone {
		if ph.Value != "" {
			return ph.Value
		}
	}
	return ""
}

// RemoteOrganization is the subset of a Pipedrive organization record
// consumed by sync and by detail enrichment.
type RemoteOrganization struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	CountryCode  string `json:"country_code"`
	PeopleCount  int    `json:"people_count"`
	OwnerName    string `json:"owner_name"`
	CategoryID   string `json:"category_id"`
	EmployeeSize string `json:"employee_count"`
	Website      string `json:"website"`
}
