package hubspot_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vendorbridge/internal/adapter/driven/hubspot"
	"github.com/ericfisherdev/vendorbridge/internal/domain/model"
	"github.com/ericfisherdev/vendorbridge/internal/provider/providertest"
)

func newClient(t *testing.T, h http.Handler, cfg model.CRMConfig) *hubspot.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	deps, _ := providertest.Deps(t, model.DomainCRM, hubspot.Vendor, hubspot.Spec,
		model.APIKeyCredentials{Token: "pat-1", BaseURL: srv.URL}, cfg)
	c, err := hubspot.New(deps)
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestCreateContact(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/contacts", r.URL.Path)
		assert.Equal(t, "Bearer pat-1", r.Header.Get("Authorization"))

		props := decodeBody(t, r)["properties"].(map[string]any)
		assert.Equal(t, "ada@example.com", props["email"])
		assert.Equal(t, "Ada", props["firstname"])
		assert.Equal(t, "owner-7", props["hubspot_owner_id"])
		assert.NotContains(t, props, "phone")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"101","properties":{"email":"ada@example.com","firstname":"Ada","lifecycle":"lead","hs_object_id":"101"},"createdAt":"2026-01-02T03:04:05.000Z"}`))
	}), model.CRMConfig{OwnerID: "owner-7"})

	got, err := c.CreateContact(context.Background(), model.ContactInput{Email: "ada@example.com", FirstName: "Ada"}, model.ContactOptions{})

	require.NoError(t, err)
	assert.Equal(t, "101", got.ID)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, map[string]string{"lifecycle": "lead"}, got.Properties)
	assert.Equal(t, 2026, got.CreatedAt.Year())
}

func TestCreateContact_InvalidInputMakesNoCall(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }), model.CRMConfig{})

	_, err := c.CreateContact(context.Background(), model.ContactInput{Email: "not-an-email"}, model.ContactOptions{})

	assert.True(t, model.IsKind(err, model.KindValidation))
	assert.ErrorContains(t, err, "email")
	assert.Zero(t, hits.Load())
}

func TestCreateContact_ConflictWithoutUpdateIfExists(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"status":"error","message":"Contact already exists. Existing ID: 555","category":"CONFLICT"}`))
	}), model.CRMConfig{})

	_, err := c.CreateContact(context.Background(), model.ContactInput{Email: "ada@example.com"}, model.ContactOptions{})

	ne, ok := model.AsNormalized(err)
	require.True(t, ok)
	assert.Equal(t, model.KindConflict, ne.Kind)
	assert.Equal(t, 1, ne.Attempts)
	assert.Contains(t, ne.Message, "Existing ID: 555")
}

func TestCreateContact_UpdateIfExistsPatchesExisting(t *testing.T) {
	var patched atomic.Bool
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"Contact already exists. Existing ID: 555"}`))
		case http.MethodPatch:
			patched.Store(true)
			assert.Equal(t, "/crm/v3/objects/contacts/555", r.URL.Path)
			props := decodeBody(t, r)["properties"].(map[string]any)
			assert.Equal(t, "Lovelace", props["lastname"])
			_, _ = w.Write([]byte(`{"id":"555","properties":{"email":"ada@example.com","lastname":"Lovelace"}}`))
		}
	}), model.CRMConfig{})

	got, err := c.CreateContact(context.Background(),
		model.ContactInput{Email: "ada@example.com", LastName: "Lovelace"},
		model.ContactOptions{UpdateIfExists: true})

	require.NoError(t, err)
	assert.True(t, patched.Load())
	assert.Equal(t, "555", got.ID)
	assert.Equal(t, "Lovelace", got.LastName)
}

func TestUpdateContact_RequiresID(t *testing.T) {
	c := newClient(t, http.NotFoundHandler(), model.CRMConfig{})

	_, err := c.UpdateContact(context.Background(), " ", model.ContactUpdate{})

	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestUpdateContact_NotFound(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"resource not found"}`))
	}), model.CRMConfig{})

	email := "x@example.com"
	_, err := c.UpdateContact(context.Background(), "999", model.ContactUpdate{Email: &email})

	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestSearchContacts_OrdersByScore(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/contacts/search", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "grace@example.com", body["query"])
		assert.EqualValues(t, 10, body["limit"])
		groups := body["filterGroups"].([]any)
		require.Len(t, groups, 1)

		_, _ = w.Write([]byte(`{"total":2,"results":[
			{"id":"1","properties":{"email":"someone@example.com","firstname":"Some"}},
			{"id":"2","properties":{"email":"grace@example.com","firstname":"Grace"}}
		]}`))
	}), model.CRMConfig{})

	got, err := c.SearchContacts(context.Background(), model.ContactSearch{
		Query:   "grace@example.com",
		Filters: map[string]string{"lifecyclestage": "lead"},
		Page:    model.Pagination{Limit: 10},
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Contact.ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Greater(t, got[0].Score, got[1].Score)
	for _, m := range got {
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 1.0)
	}
}

func TestSearchContacts_EqualScoresKeepVendorOrder(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total":3,"results":[
			{"id":"30","properties":{"email":"c@example.com"}},
			{"id":"10","properties":{"email":"a@example.com"}},
			{"id":"20","properties":{"email":"b@example.com"}}
		]}`))
	}), model.CRMConfig{})

	got, err := c.SearchContacts(context.Background(), model.ContactSearch{
		Filters: map[string]string{"lifecyclestage": "customer"},
	})

	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.Contact.ID)
	}
	assert.Equal(t, []string{"30", "10", "20"}, ids)
}

func TestAddNote_RendersMarkdown(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		props := body["properties"].(map[string]any)
		assert.Contains(t, props["hs_note_body"], "<strong>urgent</strong>")
		assert.NotContains(t, props["hs_note_body"], "<script>")

		assoc := body["associations"].([]any)[0].(map[string]any)
		assert.Equal(t, "101", assoc["to"].(map[string]any)["id"])
		assert.EqualValues(t, 202, assoc["types"].([]any)[0].(map[string]any)["associationTypeId"])

		_, _ = w.Write([]byte(`{"id":"n-1","properties":{"hs_note_body":"<p>ok</p>"}}`))
	}), model.CRMConfig{})

	got, err := c.AddNote(context.Background(), "101", model.NoteInput{Body: "**urgent** <script>x()</script>", Markdown: true})

	require.NoError(t, err)
	assert.Equal(t, "n-1", got.ID)
	assert.Equal(t, "101", got.TargetID)
}

func TestCreateDeal(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		props := body["properties"].(map[string]any)
		assert.Equal(t, "1234.5", props["amount"])
		assert.Equal(t, "sales", props["pipeline"])
		assert.Equal(t, "EUR", props["deal_currency_code"])
		assert.Len(t, body["associations"], 2)

		_, _ = w.Write([]byte(`{"id":"d-1","properties":{"dealname":"Expansion","amount":"1234.5","dealstage":"qualified","pipeline":"sales"}}`))
	}), model.CRMConfig{Pipeline: "sales"})

	got, err := c.CreateDeal(context.Background(), model.DealInput{
		Name:       "Expansion",
		Amount:     decimal.RequireFromString("1234.50"),
		Currency:   "EUR",
		Stage:      "qualified",
		ContactIDs: []string{"1", "2"},
	})

	require.NoError(t, err)
	assert.Equal(t, "d-1", got.ID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "sales", got.Pipeline)
	assert.Equal(t, []string{"1", "2"}, got.ContactIDs)
}

func TestValidate_Unauthorized(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Authentication credentials not found"}`))
	}), model.CRMConfig{})

	err := c.Validate(context.Background())

	assert.True(t, model.IsKind(err, model.KindAuthentication))
}

func TestClassify_ObjectAlreadyExists(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"category":"OBJECT_ALREADY_EXISTS","message":"duplicate"}`))
	}), model.CRMConfig{})

	_, err := c.CreateDeal(context.Background(), model.DealInput{Name: "dup"})

	assert.True(t, model.IsKind(err, model.KindConflict))
}
