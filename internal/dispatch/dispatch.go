// Package dispatch implements the Dispatch Adapter (§4.6): it turns a
// Notification Record plus its Workflow Definition into a concrete call to
// the Delivery Provider, rendering and sanitizing channel content through
// the Template Engine (§2) along the way.
package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xnovu/notification-engine/internal/catalog"
	"github.com/xnovu/notification-engine/internal/template"
)

var tracer = otel.Tracer("notification-engine/dispatch")

// ErrorClass categorizes a Delivery Provider failure for the caller's retry
// decision (§4.6).
type ErrorClass int

const (
	// ErrorNone means the call succeeded.
	ErrorNone ErrorClass = iota
	// ErrorProviderTransient is retryable.
	ErrorProviderTransient
	// ErrorProviderPermanent is not retryable.
	ErrorProviderPermanent
	// ErrorMalformedPayload is not retryable.
	ErrorMalformedPayload
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorProviderTransient:
		return "ProviderTransient"
	case ErrorProviderPermanent:
		return "ProviderPermanent"
	case ErrorMalformedPayload:
		return "MalformedPayload"
	default:
		return "None"
	}
}

// DeliveryError wraps a Delivery Provider failure with its classification.
type DeliveryError struct {
	Class ErrorClass
	Err   error
}

func (e *DeliveryError) Error() string { return e.Class.String() + ": " + e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }

// Retryable reports whether the caller should retry the dispatch.
func (e *DeliveryError) Retryable() bool { return e.Class == ErrorProviderTransient }

// TriggerResult carries the Delivery Provider's acknowledgement.
type TriggerResult struct {
	Acknowledged  bool
	TransactionID string
}

// DeliveryProvider is the outbound call to the notification delivery
// system. Implementations classify their own failures into a *DeliveryError.
type DeliveryProvider interface {
	Trigger(ctx context.Context, workflowKey string, recipients []string, payload map[string]interface{}, overrides map[string]interface{}) (TriggerResult, error)
}

// Adapter implements the Dispatch Adapter's sequence against a concrete
// DeliveryProvider and the Template Engine.
type Adapter struct {
	Provider DeliveryProvider
	// Cache renders and sanitizes channel-specific override content
	// (§4.5/§4.6). May be nil, in which case override leaves still get
	// plain variable interpolation but no channel-aware rendering or
	// sanitization — callers that dispatch real, untrusted overrides must
	// supply one.
	Cache *template.Cache
}

// NewAdapter returns an Adapter calling provider, rendering channel content
// through cache.
func NewAdapter(provider DeliveryProvider, cache *template.Cache) *Adapter {
	return &Adapter{Provider: provider, Cache: cache}
}

// channelOverrideKey maps a catalog.Channel to the lowercase key its
// subtree uses in a notification's overrides map (§8's
// overrides: {email: {subject: "..."}} example).
var channelOverrideKey = map[catalog.Channel]string{
	catalog.ChannelEmail: "email",
	catalog.ChannelInApp: "in_app",
	catalog.ChannelSMS:   "sms",
	catalog.ChannelPush:  "push",
	catalog.ChannelChat:  "chat",
}

// ResolveChannels returns record.Channels if set, else workflow's default
// channels (§4.6 step 1).
func ResolveChannels(record *catalog.NotificationRecord, workflow *catalog.WorkflowDefinition) []catalog.Channel {
	if len(record.Channels) > 0 {
		return record.Channels
	}
	if workflow != nil {
		return workflow.DefaultChannels
	}
	return nil
}

// Dispatch resolves channels, interpolates record.Overrides against
// record.Payload, renders+sanitizes each resolved channel's override
// content through the Template Engine, and calls the Delivery Provider
// (§4.6 steps 1-4).
func (a *Adapter) Dispatch(ctx context.Context, record *catalog.NotificationRecord, workflow *catalog.WorkflowDefinition) (TriggerResult, error) {
	ctx, span := tracer.Start(ctx, "dispatch.send")
	defer span.End()

	channels := ResolveChannels(record, workflow)
	rendered := renderOverrides(record.Overrides, record.Payload)

	if a.Cache != nil {
		if err := a.renderChannelOverrides(ctx, rendered, record.Overrides, channels, record.Payload, record.Tenant); err != nil {
			span.RecordError(err)
			return TriggerResult{}, &DeliveryError{Class: ErrorMalformedPayload, Err: err}
		}
	}

	workflowKey := ""
	if workflow != nil {
		workflowKey = workflow.WorkflowKey
	}
	span.SetAttributes(
		attribute.String("notification.id", record.ID),
		attribute.String("notification.tenant", record.Tenant),
		attribute.String("notification.workflow_key", workflowKey),
	)

	result, err := a.Provider.Trigger(ctx, workflowKey, record.Recipients, record.Payload, rendered)
	if err != nil {
		span.RecordError(err)
		return TriggerResult{}, err
	}
	return result, nil
}

// renderOverrides recursively interpolates every string leaf of overrides
// against vars (§4.6 step 2); non-string leaves pass through verbatim.
func renderOverrides(overrides map[string]interface{}, vars map[string]interface{}) map[string]interface{} {
	if overrides == nil {
		return nil
	}
	out := make(map[string]interface{}, len(overrides))
	for k, v := range overrides {
		out[k] = renderLeaf(v, vars)
	}
	return out
}

func renderLeaf(v interface{}, vars map[string]interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return template.Interpolate(t, vars)
	case map[string]interface{}:
		return renderOverrides(t, vars)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, elem := range t {
			out[i] = renderLeaf(elem, vars)
		}
		return out
	default:
		return v
	}
}

// renderChannelOverrides re-renders the "body" (and "subject"/"title")
// leaves of each resolved channel's override subtree — taken from raw, the
// un-interpolated overrides — through the Template Engine's per-channel
// renderers, overwriting the plain-interpolated copies already in rendered.
// This is what actually exercises RenderEmail/RenderInApp/RenderSMS/
// RenderPush/RenderChat (and their sanitization) on the dispatch path: a
// plain Interpolate pass never strips a <script> leaf (§4.5, §8 scenario 6).
func (a *Adapter) renderChannelOverrides(ctx context.Context, rendered, raw map[string]interface{}, channels []catalog.Channel, vars map[string]interface{}, tenant string) error {
	for _, ch := range channels {
		key, ok := channelOverrideKey[ch]
		if !ok {
			continue
		}
		rawSub, ok := raw[key].(map[string]interface{})
		if !ok {
			continue
		}
		renderedSub, ok := rendered[key].(map[string]interface{})
		if !ok {
			continue
		}

		bodyTemplate, _ := rawSub["body"].(string)
		if bodyTemplate == "" {
			continue
		}

		switch ch {
		case catalog.ChannelEmail:
			subjectTemplate, _ := rawSub["subject"].(string)
			out, err := a.Cache.RenderEmail(ctx, bodyTemplate, subjectTemplate, vars, tenant, "")
			if err != nil {
				return fmt.Errorf("render email override: %w", err)
			}
			renderedSub["body"] = out.Body
			if out.Subject != "" {
				renderedSub["subject"] = out.Subject
			}
		case catalog.ChannelInApp:
			out := a.Cache.RenderInApp(ctx, bodyTemplate, vars, tenant)
			renderedSub["body"] = out.Body
		case catalog.ChannelSMS:
			out := a.Cache.RenderSMS(ctx, bodyTemplate, vars, tenant)
			renderedSub["body"] = out.Body
		case catalog.ChannelPush:
			titleTemplate, _ := rawSub["title"].(string)
			out := a.Cache.RenderPush(ctx, bodyTemplate, titleTemplate, vars, tenant)
			renderedSub["body"] = out.Body
			if out.Subject != "" {
				renderedSub["title"] = out.Subject
			}
		case catalog.ChannelChat:
			out := a.Cache.RenderChat(ctx, bodyTemplate, vars, tenant)
			renderedSub["body"] = out.Body
		}
	}
	return nil
}
