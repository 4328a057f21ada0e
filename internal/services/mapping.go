package services

import (
	"fmt"

	"github.com/checkfox/go_lead_adapter/internal/config"
	"github.com/checkfox/go_lead_adapter/internal/models"
)

// defaultTemplateLanguage is used when no template language is configured
const defaultTemplateLanguage = "en_US"

// MessageMapper turns extracted lead details into an outreach message
// payload for the messaging provider
type MessageMapper struct {
	templateName string
	language     string
}

// NewMessageMapper creates a MessageMapper from the messaging settings
func NewMessageMapper(cfg *config.Config) *MessageMapper {
	language := cfg.Messaging.Language
	if language == "" {
		language = defaultTemplateLanguage
	}

	return &MessageMapper{
		templateName: cfg.Messaging.TemplateName,
		language:     language,
	}
}

// BuildOutreachMessage builds a template message addressed to the lead's
// phone number with the lead name as the single body parameter
func (m *MessageMapper) BuildOutreachMessage(lead *models.LeadDetails) (models.JSONB, error) {
	if lead == nil {
		return nil, fmt.Errorf("cannot build outreach message without lead details")
	}
	if m.templateName == "" {
		return nil, fmt.Errorf("message template name is not configured")
	}

	return models.JSONB{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                lead.PhoneNumber,
		"type":              "template",
		"template": map[string]interface{}{
			"name": m.templateName,
			"language": map[string]interface{}{
				"code": m.language,
			},
			"components": []interface{}{
				map[string]interface{}{
					"type": "body",
					"parameters": []interface{}{
						map[string]interface{}{"type": "text", "text": lead.Name},
					},
				},
			},
		},
	}, nil
}

// RecipientFromPayload returns the "to" address of a stored outreach payload
func RecipientFromPayload(payload models.JSONB) (string, error) {
	to, ok := payload["to"].(string)
	if !ok || to == "" {
		return "", models.NewDataFieldNotFoundError("to")
	}
	return to, nil
}
