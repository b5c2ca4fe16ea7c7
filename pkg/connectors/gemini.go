package connectors

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

// Gemini covers generative media via Google APIs: image generation and
// text-to-speech. The gateway holds the API key; agents only see base64
// payloads.

const (
	geminiGenerativeBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiTTSBaseURL        = "https://texttospeech.googleapis.com/v1"
	geminiImageModel        = "imagen-3.0-generate-001"
)

type Gemini struct {
	generativeBaseURL string
	ttsBaseURL        string
	upstream          *upstream
}

func NewGemini() *Gemini {
	return &Gemini{
		generativeBaseURL: geminiGenerativeBaseURL,
		ttsBaseURL:        geminiTTSBaseURL,
		upstream:          newUpstream(),
	}
}

func (c *Gemini) SetBaseURLs(generative, tts string) {
	c.generativeBaseURL = generative
	c.ttsBaseURL = tts
}

func (c *Gemini) Descriptor() Descriptor {
	return Descriptor{
		Tool: "gemini",
		Ops: map[string]OpSchema{
			"generate_image": {ParamSchema: `{
				"type": "object",
				"properties": {
					"prompt": {"type": "string", "minLength": 1},
					"sample_count": {"type": "integer", "minimum": 1, "maximum": 4},
					"output_mime_type": {"type": "string"}
				},
				"required": ["prompt"]
			}`},
			"text_to_speech": {ParamSchema: `{
				"type": "object",
				"properties": {
					"text": {"type": "string", "minLength": 1},
					"language_code": {"type": "string"},
					"voice_name": {"type": "string"},
					"audio_encoding": {"type": "string", "enum": ["MP3", "OGG_OPUS", "LINEAR16"]},
					"speaking_rate": {"type": "number", "minimum": 0.25, "maximum": 4},
					"pitch": {"type": "number", "minimum": -20, "maximum": 20}
				},
				"required": ["text"]
			}`},
		},
	}
}

func (c *Gemini) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	key, err := apiKeyFor("gemini", cred)
	if err != nil {
		return nil, err
	}
	query := url.Values{"key": {key.Key}}

	switch op {
	case "generate_image":
		mime := strParamOr(params, "output_mime_type", "image/png")
		payload := map[string]any{
			"prompt": map[string]any{"text": strParam(params, "prompt")},
			"imageParameters": map[string]any{
				"sampleCount":    clampInt(intParamOr(params, "sample_count", 1), 1, 4),
				"outputMimeType": mime,
			},
		}
		raw, err := c.upstream.postJSON(ctx, "gemini",
			c.generativeBaseURL+"/models/"+geminiImageModel+":generateImages", query, nil, payload)
		if err != nil {
			return nil, err
		}
		var decoded struct {
			GeneratedImages []struct {
				BytesBase64Encoded string `json:"bytesBase64Encoded"`
			} `json:"generatedImages"`
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, types.ErrUpstream("gemini", 200, "unexpected response shape")
		}
		images := make([]string, 0, len(decoded.GeneratedImages))
		for _, img := range decoded.GeneratedImages {
			if img.BytesBase64Encoded != "" {
				images = append(images, img.BytesBase64Encoded)
			}
		}
		return marshalResult(map[string]any{
			"images":           images,
			"count":            len(images),
			"output_mime_type": mime,
		})

	case "text_to_speech":
		payload := map[string]any{
			"input": map[string]any{"text": strParam(params, "text")},
			"voice": map[string]any{
				"languageCode": strParamOr(params, "language_code", "en-US"),
				"name":         strParamOr(params, "voice_name", "en-US-Standard-A"),
			},
			"audioConfig": map[string]any{
				"audioEncoding": strParamOr(params, "audio_encoding", "MP3"),
				"speakingRate":  floatParamOr(params, "speaking_rate", 1.0),
				"pitch":         floatParamOr(params, "pitch", 0),
			},
		}
		return c.upstream.postJSON(ctx, "gemini", c.ttsBaseURL+"/text:synthesize", query, nil, payload)

	default:
		return nil, types.ErrUnknownOp("gemini", op)
	}
}
