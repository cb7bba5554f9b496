package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// Nexar provider constants.
const (
	NexarDefaultBaseURL  = "https://api.nexar.com/graphql"
	NexarDefaultTokenURL = "https://identity.nexar.com/connect/token"
	nexarTimeout         = 45 * time.Second
	nexarPartLimit       = 3
	nexarKeywordLimit    = 10
)

const nexarMultiMatchQuery = `query SearchParts($queries: [SupPartMatchQuery!]!) {
  supMultiMatch(queries: $queries) {
    hits
    parts { ` + nexarPartFields + ` }
  }
}`

const nexarSearchQuery = `query SearchKeyword($q: String!, $limit: Int!) {
  supSearch(q: $q, limit: $limit) {
    hits
    results { part { ` + nexarPartFields + ` } }
  }
}`

const nexarPartFields = `mpn name id
      manufacturer { name }
      category { name }
      shortDescription
      avgAvail
      sellers {
        company { name homepageUrl }
        offers {
          clickUrl inventoryLevel moq orderMultiple packaging sku factoryLeadDays
          prices { currency price quantity }
        }
      }`

func init() {
	RegisterProviderFactory("nexar", newNexarProvider)
}

// nexarProvider implements CoreCatalog for the Nexar (Octopart) GraphQL API.
// One CatalogOffer is produced per seller offer, so a single lookup can feed
// the scorer with many distributors.
type nexarProvider struct {
	BaseProvider
	endpoint string
	// authed carries the client-credentials token on every request and
	// refreshes it when it expires.
	authed *http.Client
}

func newNexarProvider(config ClientConfig) (CoreCatalog, error) {
	creds := config.Credentials
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("nexar client id and secret: %w", ports.ErrMissingCredentials)
	}

	endpoint := config.BaseURL
	if endpoint == "" {
		endpoint = NexarDefaultBaseURL
	}
	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = NexarDefaultTokenURL
	}

	base := newBaseProvider(config, nexarTimeout)
	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base.httpClient)
	authed := cc.Client(tokenCtx)
	authed.Timeout = base.httpClient.Timeout

	return &nexarProvider{BaseProvider: base, endpoint: endpoint, authed: authed}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// DoLookup runs supMultiMatch for part numbers and supSearch for keywords.
func (p *nexarProvider) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	var (
		gql       graphQLRequest
		partsPath string
	)
	switch req.Kind {
	case KindKeyword:
		limit := req.Limit
		if limit <= 0 {
			limit = nexarKeywordLimit
		}
		gql = graphQLRequest{
			Query:     nexarSearchQuery,
			Variables: map[string]any{"q": req.Term, "limit": limit},
		}
		partsPath = "data.supSearch.results.#.part"
	default:
		gql = graphQLRequest{
			Query: nexarMultiMatchQuery,
			Variables: map[string]any{
				"queries": []map[string]any{{"mpn": req.Term, "limit": nexarPartLimit, "start": 0}},
			},
		}
		partsPath = "data.supMultiMatch.0.parts"
	}

	data, err := p.postJSON(ctx, p.authed, p.endpoint, gql, nil)
	if err != nil {
		return nil, p.mapTokenError(err)
	}
	if !gjson.ValidBytes(data) {
		return nil, p.classifier.ClassifyDecodeError(errors.New("response is not valid JSON"))
	}

	doc := gjson.ParseBytes(data)
	if errs := doc.Get("errors"); errs.Exists() && len(errs.Array()) > 0 {
		msgs := make([]string, 0, len(errs.Array()))
		for _, e := range errs.Array() {
			msgs = append(msgs, e.Get("message").String())
		}
		return nil, p.classifier.ClassifyMessage(strings.Join(msgs, "; "))
	}

	var offers []domain.CatalogOffer
	doc.Get(partsPath).ForEach(func(_, part gjson.Result) bool {
		offers = append(offers, p.partOffers(part)...)
		return true
	})
	return offers, nil
}

// mapTokenError turns a failed client-credentials exchange into a provider
// error. Transport failures pass through unchanged.
func (p *nexarProvider) mapTokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	pe := p.classifier.ClassifyHTTPError(status, "token request failed", re)
	if status == http.StatusBadRequest {
		// invalid_client and invalid_grant arrive as 400.
		pe.Type = ErrorTypeAuthentication
	}
	return pe
}

func (p *nexarProvider) partOffers(part gjson.Result) []domain.CatalogOffer {
	template := domain.CatalogOffer{
		ProviderID:             p.id,
		ManufacturerPartNumber: part.Get("mpn").String(),
		Manufacturer:           part.Get("manufacturer.name").String(),
		Description:            part.Get("shortDescription").String(),
	}
	if template.Description == "" {
		template.Description = part.Get("name").String()
	}

	var offers []domain.CatalogOffer
	part.Get("sellers").ForEach(func(_, seller gjson.Result) bool {
		supplier := seller.Get("company.name").String()
		seller.Get("offers").ForEach(func(_, o gjson.Result) bool {
			offer := template
			offer.Supplier = supplier
			offer.SupplierPartNumber = o.Get("sku").String()
			offer.ProductURL = o.Get("clickUrl").String()
			offer.MinOrderQty = int(o.Get("moq").Int())
			offer.OrderMultiple = int(o.Get("orderMultiple").Int())
			offer.LeadTimeDays = int(o.Get("factoryLeadDays").Int())
			if inv := o.Get("inventoryLevel"); inv.Exists() && inv.Type == gjson.Number && inv.Int() >= 0 {
				offer.Availability = domain.UnitsInStock(int(inv.Int()))
			} else {
				offer.Availability = domain.StatusOnly(domain.StockUnknown)
			}
			offer.PriceBreaks = nexarPriceBreaks(o.Get("prices"))
			offers = append(offers, offer)
			return true
		})
		return true
	})

	if len(offers) == 0 {
		// The part exists but nobody lists it.
		template.Supplier = "Unknown"
		if avail := part.Get("avgAvail"); avail.Exists() {
			template.Availability = domain.UnitsInStock(int(avail.Int()))
		}
		offers = append(offers, template)
	}
	return offers
}

func nexarPriceBreaks(prices gjson.Result) []domain.PriceBreak {
	var breaks []domain.PriceBreak
	prices.ForEach(func(_, pr gjson.Result) bool {
		raw := pr.Get("price")
		var (
			price decimal.Decimal
			err   error
		)
		if raw.Type == gjson.Number {
			price, err = decimal.NewFromString(raw.Raw)
		} else {
			price, err = ParsePrice(raw.String())
		}
		if err != nil {
			return true
		}
		currency := pr.Get("currency").String()
		if currency == "" {
			currency = "USD"
		}
		breaks = append(breaks, domain.PriceBreak{
			MinQuantity: int(pr.Get("quantity").Int()),
			UnitPrice:   price,
			Currency:    currency,
		})
		return true
	})
	return domain.NormalizePriceBreaks(breaks)
}
