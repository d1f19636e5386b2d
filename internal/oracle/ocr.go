package oracle

import (
	"context"
	"net/http"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
)

type ocrRequest struct {
	ImageURL string `json:"image_url"`
}

type ocrResponse struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processing_time"`
	Language       string  `json:"language"`
}

// OCRClient extracts text from document images
type OCRClient struct {
	endpoint endpoint
}

// NewOCRClient creates an extraction client
func NewOCRClient(cfg config.OracleEndpoint, httpClient *http.Client) *OCRClient {
	return &OCRClient{endpoint: newEndpoint("ocr", cfg, httpClient)}
}

// Extract runs OCR on the image behind imageURL. Missing language defaults to "eng".
func (c *OCRClient) Extract(ctx context.Context, imageURL string) (*model.ExtractionResult, error) {
	var resp ocrResponse
	if err := c.endpoint.postJSON(ctx, ocrRequest{ImageURL: imageURL}, &resp); err != nil {
		return nil, err
	}

	language := resp.Language
	if language == "" {
		language = model.DefaultExtractionLanguage
	}
	return &model.ExtractionResult{
		Text:           resp.Text,
		Confidence:     resp.Confidence,
		ProcessingTime: resp.ProcessingTime,
		Language:       language,
	}, nil
}
