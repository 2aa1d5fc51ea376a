// Package models holds the data-transfer objects shared across the
// gateway's components: request/response shapes, the persisted cache
// entry, and the in-flight turn summary. Keeping these in one package
// (rather than scattering copies per consumer) avoids the duck-typed
// "getattr over upstream responses" pattern the gateway is built to avoid.
package models

// QueryRequest is the body of POST /v1/query and POST /v1/streaming_query.
type QueryRequest struct {
	Query          string       `json:"query" binding:"required"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Provider       string       `json:"provider,omitempty"`
	Model          string       `json:"model,omitempty"`
	SystemPrompt   string       `json:"system_prompt,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	NoTools        bool         `json:"no_tools,omitempty"`
}

// HasModelOverride reports whether the request pins a specific model or
// provider, which only holders of QUERY_OTHERS_CONVERSATIONS may request.
func (r QueryRequest) HasModelOverride() bool {
	return r.Model != "" || r.Provider != ""
}

// Validate enforces the model/provider invariant: both set or both unset.
func (r QueryRequest) Validate() error {
	if (r.Model == "") != (r.Provider == "") {
		return ErrModelProviderMismatch
	}
	for _, a := range r.Attachments {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AttachmentType enumerates the allowed attachment kinds.
type AttachmentType string

// Allowed attachment types.
const (
	AttachmentTypeLog           AttachmentType = "log"
	AttachmentTypeConfiguration AttachmentType = "configuration"
	AttachmentTypeStackTrace    AttachmentType = "stack-trace"
)

var allowedAttachmentTypes = map[AttachmentType]bool{
	AttachmentTypeLog:           true,
	AttachmentTypeConfiguration: true,
	AttachmentTypeStackTrace:    true,
}

var allowedAttachmentContentTypes = map[string]bool{
	"text/plain":       true,
	"application/json": true,
	"application/yaml": true,
}

// Attachment is a piece of context uploaded alongside a query.
type Attachment struct {
	AttachmentType AttachmentType `json:"attachment_type"`
	ContentType    string         `json:"content_type"`
	Content        string         `json:"content"`
}

// Validate checks the attachment's type and content-type against the
// fixed allow-lists. A violation is reported as ErrInvalidAttachment so
// the HTTP layer can map it to 422.
func (a Attachment) Validate() error {
	if !allowedAttachmentTypes[a.AttachmentType] {
		return ErrInvalidAttachment
	}
	if !allowedAttachmentContentTypes[a.ContentType] {
		return ErrInvalidAttachment
	}
	return nil
}
