package graph

// OData type tags required by the communications API.
const (
	odataCall                  = "#microsoft.graph.call"
	odataInvitationParticipant = "#microsoft.graph.invitationParticipantInfo"
	odataIdentitySet           = "#microsoft.graph.identitySet"
	odataIdentity              = "#microsoft.graph.identity"
	odataServiceHostedMedia    = "#microsoft.graph.serviceHostedMediaConfig"
	odataMediaPrompt           = "#microsoft.graph.mediaPrompt"
	odataMediaInfo             = "#microsoft.graph.mediaInfo"
)

const modalityAudio = "audio"

type createCallRequest struct {
	ODataType           string                      `json:"@odata.type"`
	CallbackURI         string                      `json:"callbackUri"`
	TenantID            string                      `json:"tenantId,omitempty"`
	RequestedModalities []string                    `json:"requestedModalities"`
	MediaConfig         serviceHostedMediaConfig    `json:"mediaConfig"`
	Targets             []invitationParticipantInfo `json:"targets"`
}

type serviceHostedMediaConfig struct {
	ODataType string `json:"@odata.type"`
}

type invitationParticipantInfo struct {
	ODataType string      `json:"@odata.type"`
	Identity  identitySet `json:"identity"`
}

type identitySet struct {
	ODataType string   `json:"@odata.type"`
	User      identity `json:"user"`
}

type identity struct {
	ODataType string `json:"@odata.type"`
	ID        string `json:"id"`
}

// callResource is the subset of a call resource the service reads.
type callResource struct {
	ID    string  `json:"id"`
	State *string `json:"state"`
}

type playPromptRequest struct {
	ClientContext string        `json:"clientContext"`
	Prompts       []mediaPrompt `json:"prompts"`
}

type mediaPrompt struct {
	ODataType string    `json:"@odata.type"`
	MediaInfo mediaInfo `json:"mediaInfo"`
}

type mediaInfo struct {
	ODataType  string `json:"@odata.type"`
	URI        string `json:"uri"`
	ResourceID string `json:"resourceId"`
}

// playPromptOperation is the operation returned by playPrompt.
type playPromptOperation struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	ClientContext string `json:"clientContext"`
}

func newCreateCallRequest(participants []string, callbackURL, tenantID string) createCallRequest {
	targets := make([]invitationParticipantInfo, 0, len(participants))
	for _, id := range participants {
		targets = append(targets, invitationParticipantInfo{
			ODataType: odataInvitationParticipant,
			Identity: identitySet{
				ODataType: odataIdentitySet,
				User:      identity{ODataType: odataIdentity, ID: id},
			},
		})
	}
	return createCallRequest{
		ODataType:           odataCall,
		CallbackURI:         callbackURL,
		TenantID:            tenantID,
		RequestedModalities: []string{modalityAudio},
		MediaConfig:         serviceHostedMediaConfig{ODataType: odataServiceHostedMedia},
		Targets:             targets,
	}
}

func newPlayPromptRequest(audioURL, clientContext, resourceID string) playPromptRequest {
	return playPromptRequest{
		ClientContext: clientContext,
		Prompts: []mediaPrompt{{
			ODataType: odataMediaPrompt,
			MediaInfo: mediaInfo{ODataType: odataMediaInfo, URI: audioURL, ResourceID: resourceID},
		}},
	}
}
