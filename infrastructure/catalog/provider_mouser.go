package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// Mouser provider constants.
const (
	MouserDefaultBaseURL = "https://api.mouser.com/api/v1"
	// MouserMaxPerSecond and MouserMaxPerHour are the published API limits.
	MouserMaxPerSecond = 8
	MouserMaxPerHour   = 900
	mouserSupplier     = "Mouser"
	mouserTimeout      = 30 * time.Second
	mouserKeywordLimit = 10
)

func init() {
	RegisterProviderFactory("mouser", newMouserProvider)
}

// mouserProvider implements CoreCatalog for the Mouser Search API.
type mouserProvider struct {
	BaseProvider
	apiKey  string
	baseURL string
}

func newMouserProvider(config ClientConfig) (CoreCatalog, error) {
	if config.Credentials.APIKey == "" {
		return nil, fmt.Errorf("mouser API key: %w", ports.ErrMissingCredentials)
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = MouserDefaultBaseURL
	}
	return &mouserProvider{
		BaseProvider: newBaseProvider(config, mouserTimeout),
		apiKey:       config.Credentials.APIKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
	}, nil
}

type mouserPartRequest struct {
	SearchByPartRequest struct {
		MouserPartNumber  string `json:"mouserPartNumber"`
		PartSearchOptions string `json:"partSearchOptions"`
	} `json:"SearchByPartRequest"`
}

type mouserKeywordRequest struct {
	SearchByKeywordRequest struct {
		Keyword        string `json:"keyword"`
		Records        int    `json:"records"`
		StartingRecord int    `json:"startingRecord"`
	} `json:"SearchByKeywordRequest"`
}

type mouserResponse struct {
	Errors []struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	} `json:"Errors"`
	SearchResults *struct {
		NumberOfResult int          `json:"NumberOfResult"`
		Parts          []mouserPart `json:"Parts"`
	} `json:"SearchResults"`
}

type mouserPart struct {
	ManufacturerPartNumber string `json:"ManufacturerPartNumber"`
	Manufacturer           string `json:"Manufacturer"`
	MouserPartNumber       string `json:"MouserPartNumber"`
	Description            string `json:"Description"`
	Availability           string `json:"Availability"`
	AvailabilityInStock    string `json:"AvailabilityInStock"`
	Min                    string `json:"Min"`
	Mult                   string `json:"Mult"`
	LeadTime               string `json:"LeadTime"`
	LifecycleStatus        string `json:"LifecycleStatus"`
	DataSheetURL           string `json:"DataSheetUrl"`
	ProductDetailURL       string `json:"ProductDetailUrl"`
	PriceBreaks            []struct {
		Quantity int    `json:"Quantity"`
		Price    string `json:"Price"`
		Currency string `json:"Currency"`
	} `json:"PriceBreaks"`
}

// DoLookup queries the part-number or keyword endpoint.
func (p *mouserProvider) DoLookup(ctx context.Context, req LookupRequest) ([]domain.CatalogOffer, error) {
	var (
		path    string
		payload any
	)
	switch req.Kind {
	case KindKeyword:
		var body mouserKeywordRequest
		body.SearchByKeywordRequest.Keyword = req.Term
		body.SearchByKeywordRequest.Records = req.Limit
		if body.SearchByKeywordRequest.Records <= 0 {
			body.SearchByKeywordRequest.Records = mouserKeywordLimit
		}
		path, payload = "/search/keyword", body
	default:
		var body mouserPartRequest
		body.SearchByPartRequest.MouserPartNumber = req.Term
		body.SearchByPartRequest.PartSearchOptions = "Exact"
		path, payload = "/search/partnumber", body
	}

	endpoint := p.baseURL + path + "?apiKey=" + url.QueryEscape(p.apiKey)
	data, err := p.postJSON(ctx, nil, endpoint, payload, nil)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusForbidden {
			// Mouser answers 403 once the daily allowance is spent.
			pe.Type = ErrorTypeQuota
		}
		return nil, err
	}

	var resp mouserResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, p.classifier.ClassifyDecodeError(err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, p.classifyAPIErrors(strings.Join(msgs, "; "))
	}
	if resp.SearchResults == nil {
		return nil, nil
	}

	offers := make([]domain.CatalogOffer, 0, len(resp.SearchResults.Parts))
	for _, part := range resp.SearchResults.Parts {
		offers = append(offers, p.toOffer(part))
	}
	return offers, nil
}

// mouserQuotaMarkers identify Mouser's call allowance messages, such as
// "Maximum calls per day limit reached". A bare "limit" is not enough:
// validation errors like "exceeds the 250 character limit" use it too.
var mouserQuotaMarkers = []string{"rate limit", "quota", "exceeded", "calls per"}

// classifyAPIErrors maps Mouser's in-body error list. Allowance messages are
// quota exhaustion; anything else goes through the shared classifier.
func (p *mouserProvider) classifyAPIErrors(message string) error {
	lower := strings.ToLower(message)
	for _, marker := range mouserQuotaMarkers {
		if strings.Contains(lower, marker) {
			return NewProviderError(p.id, ErrorTypeQuota, 0, message, nil)
		}
	}
	return p.classifier.ClassifyMessage(message)
}

func (p *mouserProvider) toOffer(part mouserPart) domain.CatalogOffer {
	offer := domain.CatalogOffer{
		ProviderID:             p.id,
		Supplier:               mouserSupplier,
		SupplierPartNumber:     part.MouserPartNumber,
		ManufacturerPartNumber: part.ManufacturerPartNumber,
		Manufacturer:           part.Manufacturer,
		Description:            part.Description,
		LeadTimeDays:           ParseLeadTime(part.LeadTime),
		LifecycleStatus:        part.LifecycleStatus,
		DatasheetURL:           part.DataSheetURL,
		ProductURL:             part.ProductDetailURL,
	}

	if n, err := strconv.Atoi(strings.TrimSpace(part.AvailabilityInStock)); err == nil {
		offer.Availability = domain.UnitsInStock(n)
	} else {
		offer.Availability = ParseAvailabilityText(part.Availability)
	}
	if n, ok := parseCount(part.Min); ok {
		offer.MinOrderQty = n
	}
	if n, ok := parseCount(part.Mult); ok {
		offer.OrderMultiple = n
	}

	breaks := make([]domain.PriceBreak, 0, len(part.PriceBreaks))
	for _, pb := range part.PriceBreaks {
		price, err := ParsePrice(pb.Price)
		if err != nil {
			continue
		}
		currency := pb.Currency
		if currency == "" {
			currency = "USD"
		}
		breaks = append(breaks, domain.PriceBreak{MinQuantity: pb.Quantity, UnitPrice: price, Currency: currency})
	}
	offer.PriceBreaks = domain.NormalizePriceBreaks(breaks)
	return offer
}
