package webhooks

const (
	EventPaymentCreated           = "payment.created"
	EventPaymentCompleted         = "payment.completed"
	EventPaymentFailed            = "payment.failed"
	EventTenantCreated            = "tenant.created"
	EventTenantUpdated            = "tenant.updated"
	EventTenantDeleted            = "tenant.deleted"
	EventPropertyCreated          = "property.created"
	EventPropertyUpdated          = "property.updated"
	EventMaintenanceCreated       = "maintenance.created"
	EventMaintenanceCompleted     = "maintenance.completed"
	EventTaskAssigned             = "task.assigned"
	EventTaskCompleted            = "task.completed"
	EventInvoiceCreated           = "invoice.created"
	EventInvoicePaid              = "invoice.paid"
	EventIntegrationSyncCompleted = "integration.sync_completed"
	EventIntegrationError         = "integration.error"
)

// EventTypes is the fixed, case-sensitive set a webhook may subscribe to.
var EventTypes = []string{
	EventPaymentCreated,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventTenantCreated,
	EventTenantUpdated,
	EventTenantDeleted,
	EventPropertyCreated,
	EventPropertyUpdated,
	EventMaintenanceCreated,
	EventMaintenanceCompleted,
	EventTaskAssigned,
	EventTaskCompleted,
	EventInvoiceCreated,
	EventInvoicePaid,
	EventIntegrationSyncCompleted,
	EventIntegrationError,
}

func ValidEventType(eventType string) bool {
	for _, e := range EventTypes {
		if e == eventType {
			return true
		}
	}
	return false
}
