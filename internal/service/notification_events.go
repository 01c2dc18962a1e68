package service

import "encoding/json"

// EventType enumerates the closed set of workflow notification kinds.
type EventType string

const (
	EventNewRequest       EventType = "new_request"
	EventStatusChange     EventType = "status_change"
	EventCarAssigned      EventType = "car_assigned"
	EventApprovalAssigned EventType = "approval_assigned"
	EventApprovalDecision EventType = "approval_decision"
	EventRequestStalled   EventType = "request_stalled"
	EventGeneral          EventType = "general"
	EventBroadcast        EventType = "broadcast"
)

// Audience selects who receives an event: exactly one of UserID, Role or
// RequestID should be set, or All for a broadcast.
type Audience struct {
	UserID    string
	Role      string
	RequestID string
	All       bool
}

// ToUser addresses a single user's room plus their external channel.
func ToUser(userID string) Audience { return Audience{UserID: userID} }

// ToRole addresses everyone holding a role.
func ToRole(role string) Audience { return Audience{Role: role} }

// ToRequest addresses the subscribers of one request's room.
func ToRequest(requestID string) Audience { return Audience{RequestID: requestID} }

// ToAll addresses every connected client and every directory user.
func ToAll() Audience { return Audience{All: true} }

// EventData is the closed union of per-kind payloads. Every member carries
// the request id so clients can correlate events across channels.
type EventData interface {
	isEventData()
}

type NewRequestData struct {
	RequestID   string `json:"request_id"`
	Requester   string `json:"requester"`
	Destination string `json:"destination"`
	Departure   string `json:"departure_time"`
	Priority    string `json:"priority"`
}

type StatusChangeData struct {
	RequestID string `json:"request_id"`
	From      string `json:"from"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type CarAssignedData struct {
	RequestID    string `json:"request_id"`
	VehiclePlate string `json:"vehicle_plate"`
	DriverName   string `json:"driver_name"`
}

type ApprovalAssignedData struct {
	RequestID  string `json:"request_id"`
	ApprovalID string `json:"approval_id"`
	Kind       string `json:"kind"`
}

type ApprovalDecisionData struct {
	RequestID  string `json:"request_id"`
	ApprovalID string `json:"approval_id"`
	Kind       string `json:"kind"`
	Decision   string `json:"decision"`
	Comments   string `json:"comments,omitempty"`
}

type RequestStalledData struct {
	RequestID string `json:"request_id"`
	Stage     string `json:"stage"`
}

type GeneralData struct {
	RequestID string `json:"request_id,omitempty"`
	Note      string `json:"note,omitempty"`
}

func (NewRequestData) isEventData()       {}
func (StatusChangeData) isEventData()     {}
func (CarAssignedData) isEventData()      {}
func (ApprovalAssignedData) isEventData() {}
func (ApprovalDecisionData) isEventData() {}
func (RequestStalledData) isEventData()   {}
func (GeneralData) isEventData()          {}

// Event is one workflow notification: a kind, a human readable message and
// a typed payload, addressed to an audience.
type Event struct {
	Type     EventType
	Message  string
	Audience Audience
	Data     EventData
}

// envelope is the wire shape shared by the realtime and external channels.
type envelope struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
	Data    EventData `json:"data"`
}

// Marshal renders the event to its JSON wire form.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(envelope{Type: e.Type, Message: e.Message, Data: e.Data})
}
