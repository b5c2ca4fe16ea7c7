package connectors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

const (
	elevenLabsBaseURL        = "https://api.elevenlabs.io/v1"
	elevenLabsDefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsDefaultModelID = "eleven_multilingual_v2"
)

// ElevenLabs is the voice-synthesis connector. API-key auth via xi-api-key.
type ElevenLabs struct {
	baseURL  string
	upstream *upstream
}

func NewElevenLabs() *ElevenLabs {
	return &ElevenLabs{baseURL: elevenLabsBaseURL, upstream: newUpstream()}
}

func (c *ElevenLabs) SetBaseURL(u string) { c.baseURL = u }

func (c *ElevenLabs) Descriptor() Descriptor {
	return Descriptor{
		Tool: "elevenlabs",
		Ops: map[string]OpSchema{
			"list_voices": {},
			"text_to_speech": {ParamSchema: `{
				"type": "object",
				"properties": {
					"text": {"type": "string", "minLength": 1},
					"voice_id": {"type": "string"},
					"model_id": {"type": "string"}
				},
				"required": ["text"]
			}`},
		},
	}
}

func (c *ElevenLabs) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	key, err := apiKeyFor("elevenlabs", cred)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("xi-api-key", key.Key)

	switch op {
	case "list_voices":
		return c.upstream.getJSON(ctx, "elevenlabs", c.baseURL+"/voices", nil, header)
	case "text_to_speech":
		voiceID := strParamOr(params, "voice_id", elevenLabsDefaultVoiceID)
		payload := map[string]any{
			"text":     strParam(params, "text"),
			"model_id": strParamOr(params, "model_id", elevenLabsDefaultModelID),
		}
		audio, err := c.upstream.postBinary(ctx, "elevenlabs",
			c.baseURL+"/text-to-speech/"+url.PathEscape(voiceID), header, payload)
		if err != nil {
			return nil, err
		}
		return marshalResult(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString(audio),
			"voice_id":     voiceID,
			"mime_type":    "audio/mpeg",
		})
	default:
		return nil, types.ErrUnknownOp("elevenlabs", op)
	}
}
