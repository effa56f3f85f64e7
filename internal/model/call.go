package model

type CallState string

const (
	CallIncoming     CallState = "incoming"
	CallEstablishing CallState = "establishing"
	CallTerminated   CallState = "terminated"
)

type CallDirection string

const (
	DirectionIncoming CallDirection = "incoming"
	DirectionOutgoing CallDirection = "outgoing"
)

type Modality string

const ModalityAudio Modality = "audio"

// Call is the platform's call resource as seen in notifications.
type Call struct {
	ID        string        `json:"id"`
	State     CallState     `json:"state"`
	Direction CallDirection `json:"direction"`
	TenantID  string        `json:"tenantId,omitempty"`
}

type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
}

type IdentitySet struct {
	User        *Identity `json:"user,omitempty"`
	Application *Identity `json:"application,omitempty"`
}

type InvitationTarget struct {
	Identity IdentitySet `json:"identity"`
}

type ParticipantInfo struct {
	Identity IdentitySet `json:"identity"`
}

// MediaInfo references a prompt file hosted by the bot.
type MediaInfo struct {
	URI        string `json:"uri"`
	ResourceID string `json:"resourceId"`
}

type ServiceHostedMediaConfig struct {
	ODataType     string      `json:"@odata.type"`
	PreFetchMedia []MediaInfo `json:"preFetchMedia,omitempty"`
}

// NewServiceHostedMediaConfig builds the media config the platform expects for bot-hosted prompts.
func NewServiceHostedMediaConfig(prefetch ...MediaInfo) ServiceHostedMediaConfig {
	return ServiceHostedMediaConfig{
		ODataType:     "#microsoft.graph.serviceHostedMediaConfig",
		PreFetchMedia: prefetch,
	}
}

// OutboundCallRequest is built fresh per group call and never persisted.
type OutboundCallRequest struct {
	ODataType           string                   `json:"@odata.type"`
	Direction           CallDirection            `json:"direction"`
	Subject             string                   `json:"subject,omitempty"`
	CallbackURI         string                   `json:"callbackUri"`
	Source              *ParticipantInfo         `json:"source,omitempty"`
	Targets             []InvitationTarget       `json:"targets"`
	RequestedModalities []Modality               `json:"requestedModalities"`
	MediaConfig         ServiceHostedMediaConfig `json:"mediaConfig"`
	TenantID            string                   `json:"tenantId,omitempty"`
}
