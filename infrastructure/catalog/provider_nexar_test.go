package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

const nexarMultiMatchResponse = `{
  "data": {
    "supMultiMatch": [{
      "hits": 1,
      "parts": [{
        "mpn": "LM358DR",
        "name": "Texas Instruments LM358DR",
        "manufacturer": {"name": "Texas Instruments"},
        "shortDescription": "Dual op amp",
        "avgAvail": 52000,
        "sellers": [
          {
            "company": {"name": "DigiKey", "homepageUrl": "https://www.digikey.com"},
            "offers": [{
              "clickUrl": "https://octopart.com/click/1",
              "inventoryLevel": 52000,
              "moq": 1,
              "orderMultiple": 1,
              "sku": "296-1014-1-ND",
              "factoryLeadDays": 42,
              "prices": [
                {"currency": "USD", "price": 0.48, "quantity": 1},
                {"currency": "USD", "price": 0.327, "quantity": 10}
              ]
            }]
          },
          {
            "company": {"name": "Bulk Broker"},
            "offers": [{
              "sku": "BB-1",
              "inventoryLevel": 0,
              "moq": 2500,
              "prices": [{"currency": "USD", "price": 0.05, "quantity": 2500}]
            }]
          }
        ]
      }]
    }]
  }
}`

type nexarTestServer struct {
	tokenCalls   atomic.Int32
	graphqlCalls atomic.Int32
	tokenStatus  int
	graphql      http.HandlerFunc
}

func newNexarTestClient(t *testing.T, ts *nexarTestServer) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		ts.tokenCalls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "cid", r.Form.Get("client_id"))
		if ts.tokenStatus != 0 {
			w.WriteHeader(ts.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		ts.graphqlCalls.Add(1)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		ts.graphql(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClient("nexar", ClientConfig{
		Credentials: Credentials{ClientID: "cid", ClientSecret: "secret"},
		BaseURL:     srv.URL + "/graphql",
		TokenURL:    srv.URL + "/connect/token",
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

// TestNexarProvider_LookupParsesSellerOffers verifies that each seller
// offer becomes one CatalogOffer and the token is reused.
func TestNexarProvider_LookupParsesSellerOffers(t *testing.T) {
	// Given a Nexar endpoint answering a multi-match query
	var gql graphQLRequest
	ts := &nexarTestServer{graphql: func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gql))
		_, _ = w.Write([]byte(nexarMultiMatchResponse))
	}}
	client := newNexarTestClient(t, ts)

	// When the part is looked up twice
	q := domain.PartQuery{ManufacturerPartNumber: "LM358DR", Manufacturer: "Texas Instruments", RequestedQuantity: 10}
	offers, err := client.Lookup(context.Background(), q)
	require.NoError(t, err)
	_, err = client.Lookup(context.Background(), q)
	require.NoError(t, err)

	// Then one token was fetched and both seller offers were normalized
	assert.EqualValues(t, 1, ts.tokenCalls.Load())
	assert.EqualValues(t, 2, ts.graphqlCalls.Load())
	assert.Contains(t, gql.Query, "supMultiMatch")
	queries, ok := gql.Variables["queries"].([]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"mpn": "LM358DR", "limit": float64(3), "start": float64(0)}, queries[0])

	require.Len(t, offers, 2)
	dk := offers[0]
	assert.Equal(t, "nexar", dk.ProviderID)
	assert.Equal(t, "DigiKey", dk.Supplier)
	assert.Equal(t, "296-1014-1-ND", dk.SupplierPartNumber)
	assert.Equal(t, "Texas Instruments", dk.Manufacturer)
	assert.Equal(t, "Dual op amp", dk.Description)
	assert.Equal(t, domain.UnitsInStock(52000), dk.Availability)
	assert.Equal(t, 42, dk.LeadTimeDays)
	require.Len(t, dk.PriceBreaks, 2)
	assert.Equal(t, "0.327", dk.PriceBreaks[1].UnitPrice.String())

	broker := offers[1]
	assert.Equal(t, "Bulk Broker", broker.Supplier)
	assert.True(t, broker.Availability.IsOutOfStock())
	assert.Equal(t, 2500, broker.EffectiveMOQ())
}

// TestNexarProvider_PartWithoutSellers verifies that a known part with no
// sellers is still reported as an unpriced offer.
func TestNexarProvider_PartWithoutSellers(t *testing.T) {
	ts := &nexarTestServer{graphql: func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"supMultiMatch":[{"hits":1,"parts":[{"mpn":"OBSCURE1","manufacturer":{"name":"Acme"},"sellers":[]}]}]}}`))
	}}
	client := newNexarTestClient(t, ts)

	offers, err := client.Lookup(context.Background(), domain.PartQuery{ManufacturerPartNumber: "OBSCURE1"})

	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.False(t, offers[0].HasPricing())
	assert.Equal(t, "OBSCURE1", offers[0].ManufacturerPartNumber)
}

// TestNexarProvider_NoHits verifies an empty match list.
func TestNexarProvider_NoHits(t *testing.T) {
	ts := &nexarTestServer{graphql: func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"supMultiMatch":[{"hits":0,"parts":[]}]}}`))
	}}
	client := newNexarTestClient(t, ts)

	offers, err := client.Lookup(context.Background(), domain.PartQuery{ManufacturerPartNumber: "NOPE"})

	require.NoError(t, err)
	assert.Empty(t, offers)
}

// TestNexarProvider_GraphQLErrors verifies in-body error classification.
func TestNexarProvider_GraphQLErrors(t *testing.T) {
	tests := []struct {
		message  string
		sentinel error
	}{
		{"You have exceeded your part limit. Please upgrade your plan.", ports.ErrQuotaExceeded},
		{"Rate limit exceeded, too many requests", ports.ErrRateLimited},
		{"The current user is unauthorized", ports.ErrAuthenticationFailed},
	}

	for _, tt := range tests {
		ts := &nexarTestServer{graphql: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"errors":[{"message":"` + tt.message + `"}],"data":null}`))
		}}
		client := newNexarTestClient(t, ts)

		_, err := client.Lookup(context.Background(), domain.PartQuery{ManufacturerPartNumber: "LM358"})

		assert.ErrorIs(t, err, tt.sentinel, tt.message)
	}
}

// TestNexarProvider_HTTPErrors verifies transport-level status mapping.
func TestNexarProvider_HTTPErrors(t *testing.T) {
	for status, sentinel := range map[int]error{
		http.StatusUnauthorized:       ports.ErrAuthenticationFailed,
		http.StatusServiceUnavailable: ports.ErrServiceUnavailable,
		http.StatusTooManyRequests:    ports.ErrRateLimited,
	} {
		ts := &nexarTestServer{graphql: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}}
		client := newNexarTestClient(t, ts)

		_, err := client.Lookup(context.Background(), domain.PartQuery{ManufacturerPartNumber: "LM358"})

		assert.ErrorIs(t, err, sentinel, "status %d", status)
	}
}

// TestNexarProvider_TokenRejected verifies that a failed token exchange is
// an authentication failure and no GraphQL call is made.
func TestNexarProvider_TokenRejected(t *testing.T) {
	ts := &nexarTestServer{
		tokenStatus: http.StatusUnauthorized,
		graphql:     func(http.ResponseWriter, *http.Request) { t.Error("graphql must not be called") },
	}
	client := newNexarTestClient(t, ts)

	_, err := client.Lookup(context.Background(), domain.PartQuery{ManufacturerPartNumber: "LM358"})

	assert.ErrorIs(t, err, ports.ErrAuthenticationFailed)
	assert.Zero(t, ts.graphqlCalls.Load())
}

// TestNexarProvider_KeywordSearch verifies the keyword query path.
func TestNexarProvider_KeywordSearch(t *testing.T) {
	var gql graphQLRequest
	ts := &nexarTestServer{graphql: func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gql))
		_, _ = w.Write([]byte(`{"data":{"supSearch":{"hits":2,"results":[
			{"part":{"mpn":"LM358DR","manufacturer":{"name":"TI"},"sellers":[]}},
			{"part":{"mpn":"LM358N","manufacturer":{"name":"TI"},"sellers":[]}}]}}}`))
	}}
	client := newNexarTestClient(t, ts)

	offers, err := client.SearchKeyword(context.Background(), "LM358", "", 5)

	require.NoError(t, err)
	assert.Contains(t, gql.Query, "supSearch")
	assert.Equal(t, "LM358", gql.Variables["q"])
	require.Len(t, offers, 2)
	assert.Equal(t, "LM358N", offers[1].ManufacturerPartNumber)
}

// TestNexarProvider_MissingCredentials verifies both halves are required.
func TestNexarProvider_MissingCredentials(t *testing.T) {
	_, err := NewClient("nexar", ClientConfig{Credentials: Credentials{ClientID: "only-id"}})
	assert.ErrorIs(t, err, ports.ErrMissingCredentials)
}
