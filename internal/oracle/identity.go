package oracle

import (
	"context"
	"net/http"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
)

// IdentityRequest asks the identity authority about one extracted number
type IdentityRequest struct {
	ExtractedNumber string `json:"extracted_number"`
	IDType          string `json:"id_type,omitempty"`
}

// IdentityResponse is the authority's answer
type IdentityResponse struct {
	Verified    bool    `json:"verified"`
	Confidence  float64 `json:"confidence"`
	SubjectName string  `json:"subject_name"`
}

// IdentityClient calls the identity-authority oracle
type IdentityClient struct {
	endpoint endpoint
}

// NewIdentityClient creates an identity-authority client
func NewIdentityClient(cfg config.OracleEndpoint, httpClient *http.Client) *IdentityClient {
	return &IdentityClient{endpoint: newEndpoint("identity", cfg, httpClient)}
}

// Verify checks an identity number
func (c *IdentityClient) Verify(ctx context.Context, req IdentityRequest) (*IdentityResponse, error) {
	var resp IdentityResponse
	if err := c.endpoint.postJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
