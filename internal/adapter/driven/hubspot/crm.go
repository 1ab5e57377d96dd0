package hubspot

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/rest"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/render"
	"github.com/ericfisherdev/vendorbridge/internal/resilience"
)

type object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

type association struct {
	To    struct{ ID string `json:"id"` } `json:"to"`
	Types []associationType               `json:"types"`
}

type associationType struct {
	Category string `json:"associationCategory"`
	TypeID   int    `json:"associationTypeId"`
}

type objectInput struct {
	Properties   map[string]string `json:"properties"`
	Associations []association     `json:"associations,omitempty"`
}

func associate(ids []string, typeID int) []association {
	return lo.Map(ids, func(id string, _ int) association {
		a := association{Types: []associationType{{Category: "HUBSPOT_DEFINED", TypeID: typeID}}}
		a.To.ID = id
		return a
	})
}

var contactFields = map[string]struct{}{
	"email": {}, "firstname": {}, "lastname": {}, "phone": {}, "company": {},
}

func toContact(o object) *model.Contact {
	c := &model.Contact{
		ID:        o.ID,
		Email:     o.Properties["email"],
		FirstName: o.Properties["firstname"],
		LastName:  o.Properties["lastname"],
		Phone:     o.Properties["phone"],
		Company:   o.Properties["company"],
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	extra := lo.OmitBy(o.Properties, func(k, v string) bool {
		_, known := contactFields[k]
		return known || v == "" || strings.HasPrefix(k, "hs_") || k == "createdate" || k == "lastmodifieddate"
	})
	if len(extra) > 0 {
		c.Properties = extra
	}
	return c
}

func contactProperties(in model.ContactInput, ownerID string) map[string]string {
	props := lo.Assign(map[string]string{}, in.Properties)
	props["email"] = in.Email
	setIf(props, "firstname", in.FirstName)
	setIf(props, "lastname", in.LastName)
	setIf(props, "phone", in.Phone)
	setIf(props, "company", in.Company)
	setIf(props, "hubspot_owner_id", ownerID)
	return props
}

func setIf(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

// CreateContact creates a contact. When the email already exists and
// UpdateIfExists (or the tenant's dedupe setting) is on, the existing record is
// updated instead of failing with a conflict.
func (c *Client) CreateContact(ctx context.Context, in model.ContactInput, opts model.ContactOptions) (*model.Contact, error) {
	if err := model.Validate(in); err != nil {
		return nil, err
	}

	contact, err := resilience.Do(ctx, c.ex, "create_contact", func(ctx context.Context) (*model.Contact, error) {
		var out object
		_, err := c.api.Do(ctx, rest.Call{
			Method: http.MethodPost,
			Path:   "/crm/v3/objects/contacts",
			Body:   objectInput{Properties: contactProperties(in, c.cfg.OwnerID)},
		}, &out)
		if err != nil {
			return nil, err
		}
		return toContact(out), nil
	})
	if err == nil {
		return contact, nil
	}

	if !(opts.UpdateIfExists || c.cfg.DedupeByEmail) {
		return nil, err
	}
	id := existingID(err)
	if id == "" {
		return nil, err
	}
	return c.UpdateContact(ctx, id, model.ContactUpdate{
		FirstName:  nonEmpty(in.FirstName),
		LastName:   nonEmpty(in.LastName),
		Phone:      nonEmpty(in.Phone),
		Company:    nonEmpty(in.Company),
		Properties: in.Properties,
	})
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UpdateContact applies a partial update.
func (c *Client) UpdateContact(ctx context.Context, id string, upd model.ContactUpdate) (*model.Contact, error) {
	if err := rest.RequireID("contact id", id); err != nil {
		return nil, err
	}
	if err := model.Validate(upd); err != nil {
		return nil, err
	}

	props := lo.Assign(map[string]string{}, upd.Properties)
	for key, val := range map[string]*string{
		"email": upd.Email, "firstname": upd.FirstName, "lastname": upd.LastName,
		"phone": upd.Phone, "company": upd.Company,
	} {
		if val != nil {
			props[key] = *val
		}
	}

	return resilience.Do(ctx, c.ex, "update_contact", func(ctx context.Context) (*model.Contact, error) {
		var out object
		_, err := c.api.Do(ctx, rest.Call{
			Method: http.MethodPatch,
			Path:   "/crm/v3/objects/contacts/" + rest.PathEscape(id),
			Body:   objectInput{Properties: props},
		}, &out)
		if err != nil {
			return nil, err
		}
		return toContact(out), nil
	})
}

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchRequest struct {
	Query        string                      `json:"query,omitempty"`
	FilterGroups []map[string][]searchFilter `json:"filterGroups,omitempty"`
	Properties   []string                    `json:"properties"`
	Limit        int                         `json:"limit"`
	After        string                      `json:"after,omitempty"`
}

type searchResponse struct {
	Total   int      `json:"total"`
	Results []object `json:"results"`
}

// SearchContacts runs a full-text search with exact-match filters. HubSpot
// returns results in relevance order without a score, so scores are derived
// from how closely each contact matches the query.
func (c *Client) SearchContacts(ctx context.Context, q model.ContactSearch) ([]model.ContactMatch, error) {
	if err := model.Validate(q); err != nil {
		return nil, err
	}

	req := searchRequest{
		Query:      q.Query,
		Properties: lo.Keys(contactFields),
		Limit:      q.Page.EffectiveLimit(),
		After:      q.Page.Cursor,
	}
	if len(q.Filters) > 0 {
		filters := lo.MapToSlice(q.Filters, func(k, v string) searchFilter {
			return searchFilter{PropertyName: k, Operator: "EQ", Value: v}
		})
		req.FilterGroups = []map[string][]searchFilter{{"filters": filters}}
	}

	return resilience.Do(ctx, c.ex, "search_contacts", func(ctx context.Context) ([]model.ContactMatch, error) {
		var out searchResponse
		if _, err := c.api.Do(ctx, rest.Call{
			Method: http.MethodPost,
			Path:   "/crm/v3/objects/contacts/search",
			Body:   req,
		}, &out); err != nil {
			return nil, err
		}
		matches := lo.Map(out.Results, func(o object, i int) model.ContactMatch {
			contact := toContact(o)
			return model.ContactMatch{Contact: *contact, Score: score(q.Query, contact, i, len(out.Results))}
		})
		slices.SortStableFunc(matches, func(a, b model.ContactMatch) int {
			return cmp.Compare(b.Score, a.Score)
		})
		return matches, nil
	})
}

// score ranks an exact email match highest, then name or company containment,
// then the vendor's own ordering.
func score(query string, c *model.Contact, rank, total int) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	positional := 0.5 * (1 - float64(rank)/float64(max(total, 1)))
	switch {
	case query == "":
		return 1
	case strings.EqualFold(c.Email, query):
		return 1
	case strings.Contains(strings.ToLower(c.FirstName+" "+c.LastName), query),
		strings.Contains(strings.ToLower(c.Company), query),
		strings.Contains(strings.ToLower(c.Email), query):
		return 0.5 + positional*0.8
	}
	return positional
}

// AddNote attaches a note to a contact. Markdown bodies are rendered to
// sanitized HTML, which HubSpot displays as rich text.
func (c *Client) AddNote(ctx context.Context, targetID string, note model.NoteInput) (*model.Note, error) {
	if err := rest.RequireID("target id", targetID); err != nil {
		return nil, err
	}
	if err := model.Validate(note); err != nil {
		return nil, err
	}

	body := note.Body
	if note.Markdown {
		body = render.Markdown(body)
	}
	now := c.ex.Clock().Now().UTC()

	return resilience.Do(ctx, c.ex, "add_note", func(ctx context.Context) (*model.Note, error) {
		var out object
		_, err := c.api.Do(ctx, rest.Call{
			Method: http.MethodPost,
			Path:   "/crm/v3/objects/notes",
			Body: objectInput{
				Properties: map[string]string{
					"hs_note_body": body,
					"hs_timestamp": now.Format(time.RFC3339Nano),
				},
				Associations: associate([]string{targetID}, assocNoteToContact),
			},
		}, &out)
		if err != nil {
			return nil, err
		}
		return &model.Note{ID: out.ID, TargetID: targetID, Body: out.Properties["hs_note_body"], CreatedAt: out.CreatedAt}, nil
	})
}

// CreateDeal creates a deal in the configured pipeline, associated with the
// given contacts.
func (c *Client) CreateDeal(ctx context.Context, in model.DealInput) (*model.Deal, error) {
	if err := model.Validate(in); err != nil {
		return nil, err
	}

	props := map[string]string{
		"dealname": in.Name,
		"amount":   in.Amount.String(),
	}
	setIf(props, "dealstage", in.Stage)
	setIf(props, "pipeline", c.cfg.Pipeline)
	setIf(props, "deal_currency_code", in.Currency)
	setIf(props, "hubspot_owner_id", c.cfg.OwnerID)
	if in.CloseDate != nil {
		props["closedate"] = in.CloseDate.UTC().Format(time.RFC3339)
	}

	return resilience.Do(ctx, c.ex, "create_deal", func(ctx context.Context) (*model.Deal, error) {
		var out object
		_, err := c.api.Do(ctx, rest.Call{
			Method: http.MethodPost,
			Path:   "/crm/v3/objects/deals",
			Body:   objectInput{Properties: props, Associations: associate(in.ContactIDs, assocDealToContact)},
		}, &out)
		if err != nil {
			return nil, err
		}
		return toDeal(out, in), nil
	})
}

func toDeal(o object, in model.DealInput) *model.Deal {
	d := &model.Deal{
		ID:         o.ID,
		Name:       lo.CoalesceOrEmpty(o.Properties["dealname"], in.Name),
		Amount:     in.Amount,
		Currency:   lo.CoalesceOrEmpty(o.Properties["deal_currency_code"], in.Currency),
		Stage:      lo.CoalesceOrEmpty(o.Properties["dealstage"], in.Stage),
		Pipeline:   o.Properties["pipeline"],
		ContactIDs: in.ContactIDs,
		CloseDate:  in.CloseDate,
		CreatedAt:  o.CreatedAt,
	}
	if amt, err := decimal.NewFromString(o.Properties["amount"]); err == nil {
		d.Amount = amt
	}
	return d
}
