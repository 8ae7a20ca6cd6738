package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"trinayana/packages/features"
)

// Remote delegates prediction to a model server that accepts one tabular
// row with named columns.
type Remote struct {
	baseURL    string
	httpClient *http.Client
}

type remoteRequest struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

type remoteResponse struct {
	Predictions []int `json:"predictions"`
}

func NewRemote(baseURL string, timeout time.Duration) *Remote {
	return &Remote{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Predict(ctx context.Context, rec features.Record) (int, error) {
	reqBody := remoteRequest{Columns: features.Names[:], Rows: [][]float64{rec.Vector()}}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/predict", bytes.NewReader(jsonBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create prediction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("prediction API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("prediction API returned non-200 status: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var predResp remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&predResp); err != nil {
		return 0, fmt.Errorf("failed to decode prediction response: %w", err)
	}
	if len(predResp.Predictions) != 1 {
		return 0, fmt.Errorf("prediction API returned %d predictions for 1 row", len(predResp.Predictions))
	}
	return predResp.Predictions[0], nil
}
