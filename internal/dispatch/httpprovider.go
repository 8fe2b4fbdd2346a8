package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xnovu/notification-engine/pkg/config"
)

// HTTPProvider calls an HTTP Delivery Provider, POSTing a trigger envelope
// and classifying the response status into ErrorClass.
type HTTPProvider struct {
	cfg        config.DeliveryConfig
	httpClient *http.Client
}

// NewHTTPProvider returns a DeliveryProvider backed by cfg.
func NewHTTPProvider(cfg config.DeliveryConfig) *HTTPProvider {
	return &HTTPProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type triggerRequest struct {
	WorkflowKey string                 `json:"workflow_key"`
	Recipients  []string               `json:"recipients"`
	Payload     map[string]interface{} `json:"payload"`
	Overrides   map[string]interface{} `json:"overrides"`
}

type triggerResponse struct {
	Acknowledged  bool   `json:"acknowledged"`
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error,omitempty"`
}

func (p *HTTPProvider) Trigger(ctx context.Context, workflowKey string, recipients []string, payload, overrides map[string]interface{}) (TriggerResult, error) {
	body, err := json.Marshal(triggerRequest{
		WorkflowKey: workflowKey,
		Recipients:  recipients,
		Payload:     payload,
		Overrides:   overrides,
	})
	if err != nil {
		return TriggerResult{}, &DeliveryError{Class: ErrorMalformedPayload, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/trigger", bytes.NewReader(body))
	if err != nil {
		return TriggerResult{}, &DeliveryError{Class: ErrorProviderPermanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.Key)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return TriggerResult{}, &DeliveryError{Class: ErrorProviderTransient, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return TriggerResult{}, &DeliveryError{Class: ErrorProviderTransient, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return TriggerResult{}, &DeliveryError{Class: ErrorProviderTransient, Err: fmt.Errorf("provider returned %d: %s", resp.StatusCode, raw)}
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return TriggerResult{}, &DeliveryError{Class: ErrorMalformedPayload, Err: fmt.Errorf("provider rejected payload %d: %s", resp.StatusCode, raw)}
	case resp.StatusCode >= 400:
		return TriggerResult{}, &DeliveryError{Class: ErrorProviderPermanent, Err: fmt.Errorf("provider returned %d: %s", resp.StatusCode, raw)}
	}

	var tr triggerResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return TriggerResult{}, &DeliveryError{Class: ErrorProviderTransient, Err: fmt.Errorf("decoding provider response: %w", err)}
	}

	return TriggerResult{Acknowledged: tr.Acknowledged, TransactionID: tr.TransactionID}, nil
}
