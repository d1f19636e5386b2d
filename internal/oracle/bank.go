package oracle

import (
	"context"
	"net/http"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
)

// BankRequest carries the account details parsed from a statement
type BankRequest struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name,omitempty"`
}

// BankResponse is the bank-account oracle's answer
type BankResponse struct {
	AccountValid bool    `json:"account_valid"`
	Confidence   float64 `json:"confidence"`
	AccountName  string  `json:"account_name"`
	BankName     string  `json:"bank_name"`
}

// BankClient calls the bank-account verification oracle
type BankClient struct {
	endpoint endpoint
}

// NewBankClient creates a bank-account client
func NewBankClient(cfg config.OracleEndpoint, httpClient *http.Client) *BankClient {
	return &BankClient{endpoint: newEndpoint("bank", cfg, httpClient)}
}

// Verify checks an account
func (c *BankClient) Verify(ctx context.Context, req BankRequest) (*BankResponse, error) {
	var resp BankResponse
	if err := c.endpoint.postJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
