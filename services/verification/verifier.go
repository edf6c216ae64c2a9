package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/errutil"
)

// VerifyInput is what the external judgment service sees.
type VerifyInput struct {
	TaskID   string `json:"task_id"`
	UserID   string `json:"user_id"`
	PhotoURL string `json:"photo_url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Result is the external verdict on a completion claim.
type Result struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Verifier delegates photo/content judgment to an external service.
type Verifier interface {
	Verify(ctx context.Context, in VerifyInput) (*Result, error)
}

type httpVerifier struct {
	client *http.Client
	url    string
}

func NewHTTPVerifier(cfg *config.Config) Verifier {
	return &httpVerifier{
		client: &http.Client{Timeout: cfg.Verification.Timeout},
		url:    cfg.Verification.VerifierURL,
	}
}

func (v *httpVerifier) Verify(ctx context.Context, in VerifyInput) (*Result, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, errutil.BadGateway("verification service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errutil.BadGateway(
			fmt.Sprintf("verification service returned %d", resp.StatusCode), nil)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errutil.BadGateway("malformed verification response", err)
	}

	return &result, nil
}
