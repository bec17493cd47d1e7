package webhooks

// fallbackEvents maps top-level payload keys to event types when the payload
// carries no explicit event field. Order matters: the first matching key
// wins, and subscribers key on these exact strings.
var fallbackEvents = []struct {
	key   string
	event string
}{
	{"payment", EventPaymentCreated},
	{"tenant", EventTenantCreated},
	{"property", EventPropertyCreated},
	{"maintenance", EventMaintenanceCreated},
	{"task", EventTaskAssigned},
	{"invoice", EventInvoiceCreated},
}

// Classify infers the event type of an inbound payload. An explicit "event"
// string is returned verbatim.
func Classify(payload map[string]interface{}) string {
	if event, ok := payload["event"].(string); ok && event != "" {
		return event
	}

	for _, fallback := range fallbackEvents {
		if _, ok := payload[fallback.key]; ok {
			return fallback.event
		}
	}

	return EventIntegrationSyncCompleted
}
