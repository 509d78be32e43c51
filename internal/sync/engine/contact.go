package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/sync/orgresolve"
)

// upsertContact creates or updates the local contact for one remote
// person, resolving its organization first.
func (e *Engine) upsertContact(
	ctx context.Context,
	rs *runState,
	p *domain.RemotePerson,
	personID string,
) (contactOutcome, error) {
	org, err := e.resolveOrganization(ctx, rs, p)
	if err != nil {
		return outcomeFailed, err
	}

	existing, err := e.contacts.GetByPipedriveID(ctx, rs.userID, personID)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to look up contact %s: %w", personID, err)
	}

	remoteUpdated := domain.ParseRemoteTime(p.UpdateTime)

	if existing == nil {
		contact := e.newContact(rs.userID, p, personID, org, remoteUpdated)
		if err := e.contacts.Create(ctx, contact); err != nil {
			return outcomeFailed, fmt.Errorf("failed to create contact %s: %w", personID, err)
		}
		return outcomeCreated, nil
	}

	// Update only when the remote copy is newer than what we recorded.
	if remoteUpdated == nil {
		return outcomeUnchanged, nil
	}
	if existing.RemoteUpdatedAt != nil && !remoteUpdated.After(*existing.RemoteUpdatedAt) {
		return outcomeUnchanged, nil
	}

	applyRemote(existing, p, org, remoteUpdated)
	if err := e.contacts.Update(ctx, existing); err != nil {
		return outcomeFailed, fmt.Errorf("failed to update contact %s: %w", personID, err)
	}
	return outcomeUpdated, nil
}

// resolveOrganization finds or creates the person's organization, with
// at most one detail-enrichment fetch per org per run. A person without
// an organization reference resolves to nil without any lookup; an
// enrichment failure degrades to the fields already on the reference.
func (e *Engine) resolveOrganization(
	ctx context.Context,
	rs *runState,
	p *domain.RemotePerson,
) (*domain.Organization, error) {
	extID := p.OrgID.ExternalID()
	if extID == "" {
		return nil, nil
	}

	name := p.OrgID.Name
	if name == "" {
		name = p.OrgName
	}

	details, fetched := rs.enriched[extID]
	if !fetched {
		var err error
		details, err = rs.client.GetOrganizationDetails(ctx, extID)
		if err != nil {
			e.log.Warn("org enrichment failed, proceeding without details",
				"sync_id", rs.syncID, "org_id", extID, "error", err)
			details = nil
		}
		rs.enriched[extID] = details
	}

	data := orgData(extID, name, p.OrgID.Address, details)
	org, err := rs.resolver.FindOrCreate(ctx, data)
	if err != nil {
		return nil, err
	}
	rs.touched[org.ID] = org
	return org, nil
}

func (e *Engine) newContact(
	userID string,
	p *domain.RemotePerson,
	personID string,
	org *domain.Organization,
	remoteUpdated *time.Time,
) *domain.Contact {
	now := time.Now().UTC()
	contact := &domain.Contact{
		ID:                uuid.New().String(),
		UserID:            userID,
		Name:              p.Name,
		PipedrivePersonID: &personID,
		RemoteUpdatedAt:   remoteUpdated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	applyRemote(contact, p, org, remoteUpdated)
	return contact
}

// applyRemote copies the remote person's fields onto a local contact.
// An absent email stays nil, never "".
func applyRemote(c *domain.Contact, p *domain.RemotePerson, org *domain.Organization, remoteUpdated *time.Time) {
	c.Name = p.Name

	c.Email = nil
	if email := p.PrimaryEmail(); email != "" {
		c.Email = &email
	}
	c.Phone = nil
	if phone := p.PrimaryPhone(); phone != "" {
		c.Phone = &phone
	}

	c.OrganizationName = nil
	c.PipedriveOrgID = nil
	c.OrganizationID = nil
	if org != nil {
		c.OrganizationName = &org.Name
		c.PipedriveOrgID = org.PipedriveOrgID
		c.OrganizationID = &org.ID
	} else if p.OrgName != "" {
		name := p.OrgName
		c.OrganizationName = &name
	}

	c.RemoteUpdatedAt = remoteUpdated
	c.UpdatedAt = time.Now().UTC()
}

func orgData(extID, name, address string, details *domain.RemoteOrganization) orgresolve.OrgData {
	data := orgresolve.OrgData{Name: name, PipedriveOrgID: extID, Address: address}
	if details != nil {
		if details.Name != "" {
			data.Name = details.Name
		}
		if details.Address != "" {
			data.Address = details.Address
		}
		data.Country = details.CountryCode
		data.Website = details.Website
		data.Size = details.EmployeeSize
		data.Industry = details.CategoryID
	}
	return data
}
