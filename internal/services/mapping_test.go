package services

import (
	"encoding/json"
	"testing"

	"github.com/checkfox/go_lead_adapter/internal/config"
	"github.com/checkfox/go_lead_adapter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOutreachMessage(t *testing.T) {
	cfg := &config.Config{Messaging: config.MessagingConfig{TemplateName: "lead_intro", Language: "es_MX"}}
	mapper := NewMessageMapper(cfg)

	payload, err := mapper.BuildOutreachMessage(&models.LeadDetails{Name: "Jane", PhoneNumber: "15551234567"})
	require.NoError(t, err)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"messaging_product": "whatsapp",
		"recipient_type": "individual",
		"to": "15551234567",
		"type": "template",
		"template": {
			"name": "lead_intro",
			"language": {"code": "es_MX"},
			"components": [
				{"type": "body", "parameters": [{"type": "text", "text": "Jane"}]}
			]
		}
	}`, string(data))

	to, err := RecipientFromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "15551234567", to)
}

func TestBuildOutreachMessage_DefaultLanguage(t *testing.T) {
	mapper := NewMessageMapper(&config.Config{Messaging: config.MessagingConfig{TemplateName: "lead_intro"}})

	payload, err := mapper.BuildOutreachMessage(&models.LeadDetails{Name: "Jane", PhoneNumber: "15551234567"})
	require.NoError(t, err)
	template := payload["template"].(map[string]interface{})
	assert.Equal(t, "en_US", template["language"].(map[string]interface{})["code"])
}

func TestBuildOutreachMessage_Errors(t *testing.T) {
	mapper := NewMessageMapper(&config.Config{Messaging: config.MessagingConfig{TemplateName: "lead_intro"}})
	_, err := mapper.BuildOutreachMessage(nil)
	assert.Error(t, err)

	unconfigured := NewMessageMapper(&config.Config{})
	_, err = unconfigured.BuildOutreachMessage(&models.LeadDetails{Name: "Jane", PhoneNumber: "15551234567"})
	assert.Error(t, err)
}

func TestRecipientFromPayload_Missing(t *testing.T) {
	_, err := RecipientFromPayload(models.JSONB{})
	assert.ErrorIs(t, err, models.ErrDataFieldNotFound)
}
