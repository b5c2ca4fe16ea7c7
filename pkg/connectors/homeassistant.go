package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

// HomeAssistant is the smart-home connector. Long-lived token + base URL
// pointing at the tenant's Home Assistant instance.
type HomeAssistant struct {
	upstream *upstream
}

func NewHomeAssistant() *HomeAssistant {
	return &HomeAssistant{upstream: newUpstream()}
}

func (c *HomeAssistant) Descriptor() Descriptor {
	return Descriptor{
		Tool: "home_assistant",
		Ops: map[string]OpSchema{
			"list_entities": {},
			"get_state": {ParamSchema: `{
				"type": "object",
				"properties": {"entity_id": {"type": "string", "minLength": 1}},
				"required": ["entity_id"]
			}`},
			"call_service": {ParamSchema: `{
				"type": "object",
				"properties": {
					"domain": {"type": "string", "minLength": 1},
					"service": {"type": "string", "minLength": 1},
					"entity_id": {"type": "string"},
					"service_data": {"type": "object"}
				},
				"required": ["domain", "service"]
			}`},
		},
	}
}

func (c *HomeAssistant) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	tok, err := staticTokenFor("home_assistant", cred)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(tok.BaseURL, "/")
	header := bearerHeader(tok.Token)

	switch op {
	case "list_entities":
		raw, err := c.upstream.getJSON(ctx, "home_assistant", base+"/api/states", nil, header)
		if err != nil {
			return nil, err
		}
		return normalizeEntityStates(raw)
	case "get_state":
		entityID := strParam(params, "entity_id")
		return c.upstream.getJSON(ctx, "home_assistant", base+"/api/states/"+url.PathEscape(entityID), nil, header)
	case "call_service":
		payload := map[string]any{}
		for k, v := range mapParam(params, "service_data") {
			payload[k] = v
		}
		if entityID := strParam(params, "entity_id"); entityID != "" {
			if _, set := payload["entity_id"]; !set {
				payload["entity_id"] = entityID
			}
		}
		u := base + "/api/services/" +
			url.PathEscape(strParam(params, "domain")) + "/" +
			url.PathEscape(strParam(params, "service"))
		return c.upstream.postJSON(ctx, "home_assistant", u, nil, header, payload)
	default:
		return nil, types.ErrUnknownOp("home_assistant", op)
	}
}

// normalizeEntityStates reduces the raw states payload to the fields agents
// act on.
func normalizeEntityStates(raw json.RawMessage) (json.RawMessage, error) {
	var states []struct {
		EntityID   string         `json:"entity_id"`
		State      string         `json:"state"`
		Attributes map[string]any `json:"attributes"`
	}
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, types.ErrUpstream("home_assistant", 200, "unexpected response shape")
	}
	type entity struct {
		EntityID string `json:"entity_id"`
		State    string `json:"state"`
		Name     string `json:"name"`
		Domain   string `json:"domain"`
	}
	entities := make([]entity, 0, len(states))
	for _, s := range states {
		name, _ := s.Attributes["friendly_name"].(string)
		if name == "" {
			name = s.EntityID
		}
		domain, _, _ := strings.Cut(s.EntityID, ".")
		entities = append(entities, entity{
			EntityID: s.EntityID,
			State:    s.State,
			Name:     name,
			Domain:   domain,
		})
	}
	return marshalResult(map[string]any{"entities": entities})
}
