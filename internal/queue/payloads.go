package queue

import "time"

// DripJob is the drip.messages payload published by the pre-queue scheduler
// and consumed by the outbound dispatcher.
type DripJob struct {
	ScheduledMessageID int64      `json:"scheduledMessageId"`
	DripContactID      int64      `json:"dripContactId"`
	UserID             int64      `json:"userId"`
	WorkspaceID        int64      `json:"workspaceId"`
	ContactID          int64      `json:"contactId"`
	DripID             int64      `json:"dripId"`
	CampaignID         int64      `json:"campaignId"`
	FromNumber         string     `json:"fromNumber,omitempty"`
	ToNumber           string     `json:"toNumber"`
	SenderNumberID     int64      `json:"sid,omitempty"`
	Message            string     `json:"message"`
	MediaURL           string     `json:"mediaUrl,omitempty"`
	ScheduledAt        time.Time  `json:"scheduledAt"`
	QueuedAt           time.Time  `json:"queuedAt"`
	IsLoadTest         bool       `json:"isLoadTest,omitempty"`
	CreditCost         int64      `json:"creditCost,omitempty"`
}

// StatusEventData is a provider delivery-report callback routed through
// inbox.status.
type StatusEventData struct {
	MessageSID   string `json:"messageSid"`
	Status       string `json:"status"`
	BRef         string `json:"bRef,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// StatusEvent is the inbox.status envelope.
type StatusEvent struct {
	Data StatusEventData `json:"data"`
}

// InboundEventData is an inbound SMS/MMS routed through inbox.inbound.
type InboundEventData struct {
	MessageSID string   `json:"messageSid"`
	From       string   `json:"from"`
	To         string   `json:"to"`
	Body       string   `json:"body"`
	NumMedia   int      `json:"numMedia"`
	MediaURLs  []string `json:"mediaUrls,omitempty"`
}

// InboundEvent is the inbox.inbound envelope.
type InboundEvent struct {
	Data InboundEventData `json:"data"`
}

// NotifyEvent is an internal UI notification published to inbox.notify.
type NotifyEvent struct {
	Type        string      `json:"type"`
	UserID      int64       `json:"userId"`
	WorkspaceID int64       `json:"workspaceId"`
	Data        interface{} `json:"data,omitempty"`
}

// WebhookDispatchJob tells the webhook dispatcher to attempt one delivery.
type WebhookDispatchJob struct {
	DeliveryID int64  `json:"deliveryId"`
	WebhookID  int64  `json:"webhookId"`
	EventID    string `json:"eventId"`
	Event      string `json:"event"`
}
