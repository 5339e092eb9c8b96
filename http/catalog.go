package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xeipuuv/gojsonschema"

	checkout "github.com/finchpay/checkout"
)

// offersSchema validates the catalog response before any offer is used.
// The catalog is an external collaborator; a malformed document is
// rejected here rather than surfacing as broken quotes later.
const offersSchema = `{
  "type": "object",
  "required": ["offers"],
  "properties": {
    "offers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "price", "period", "activationType"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "price": {
            "type": "object",
            "required": ["amount", "currency"],
            "properties": {
              "amount": {"type": "integer", "minimum": 0},
              "currency": {"type": "string", "minLength": 3, "maxLength": 3}
            }
          },
          "listPrice": {
            "type": "object",
            "required": ["amount", "currency"],
            "properties": {
              "amount": {"type": "integer", "minimum": 0},
              "currency": {"type": "string", "minLength": 3, "maxLength": 3}
            }
          },
          "period": {
            "type": "object",
            "required": ["months"],
            "properties": {
              "months": {"type": "integer", "minimum": 0}
            }
          },
          "activationType": {
            "type": "string",
            "enum": ["direct", "email-linked", "redemption-code"]
          }
        }
      }
    }
  }
}`

// CatalogClient talks to the external offer catalog and pricing
// collaborators. Implements checkout.CatalogAPI and checkout.FeeAPI.
type CatalogClient struct {
	url         string
	httpClient  *http.Client
	auth        AuthProvider
	callTimeout time.Duration
	schema      *gojsonschema.Schema
}

// NewCatalogClient creates a catalog client.
func NewCatalogClient(cfg *ClientConfig) (*CatalogClient, error) {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(offersSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile offers schema: %w", err)
	}
	return &CatalogClient{
		url:         cfg.URL,
		httpClient:  httpClientFor(cfg),
		auth:        cfg.AuthProvider,
		callTimeout: callTimeoutFor(cfg),
		schema:      schema,
	}, nil
}

type offersResponse struct {
	Offers []checkout.Offer `json:"offers"`
}

// GetOffers fetches and validates the offer catalog.
func (c *CatalogClient) GetOffers(ctx context.Context) ([]checkout.Offer, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var raw json.RawMessage
	if err := doJSON(callCtx, c.httpClient, c.auth, http.MethodGet, c.url+"/offers", nil, nil, &raw); err != nil {
		return nil, err
	}

	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to validate catalog: %w", err)
	}
	if !result.Valid() {
		details := map[string]interface{}{}
		for i, desc := range result.Errors() {
			details[fmt.Sprintf("error_%d", i)] = desc.String()
		}
		return nil, checkout.NewError(checkout.ClassTransport, checkout.ErrCodeInvalidCatalog,
			"the offer catalog is malformed", details)
	}

	var resp offersResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, checkout.NewError(checkout.ClassTransport, checkout.ErrCodeProviderResponse,
			"provider returned an unreadable response", nil)
	}
	return resp.Offers, nil
}

// GetActivationFee fetches the activation fee for an offer.
func (c *CatalogClient) GetActivationFee(ctx context.Context, offerID string) (checkout.Money, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var fee checkout.Money
	err := doJSON(callCtx, c.httpClient, c.auth, http.MethodGet,
		fmt.Sprintf("%s/offers/%s/activation-fee", c.url, offerID), nil, nil, &fee)
	if err != nil {
		return checkout.Money{}, err
	}
	return fee, nil
}

// Interface guards.
var (
	_ checkout.CatalogAPI = (*CatalogClient)(nil)
	_ checkout.FeeAPI     = (*CatalogClient)(nil)
)
