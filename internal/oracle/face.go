package oracle

import (
	"context"
	"net/http"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
)

type faceRequest struct {
	ImageURL string `json:"image_url"`
}

// FaceResponse reports face detection and liveness for a selfie
type FaceResponse struct {
	FaceDetected     bool    `json:"face_detected"`
	FaceCount        int     `json:"face_count"`
	LivenessDetected bool    `json:"liveness_detected"`
	Confidence       float64 `json:"confidence"`
}

// FaceClient calls the face/liveness oracle
type FaceClient struct {
	endpoint endpoint
}

// NewFaceClient creates a face/liveness client
func NewFaceClient(cfg config.OracleEndpoint, httpClient *http.Client) *FaceClient {
	return &FaceClient{endpoint: newEndpoint("face", cfg, httpClient)}
}

// Detect runs face and liveness detection on the image behind imageURL
func (c *FaceClient) Detect(ctx context.Context, imageURL string) (*FaceResponse, error) {
	var resp FaceResponse
	if err := c.endpoint.postJSON(ctx, faceRequest{ImageURL: imageURL}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
