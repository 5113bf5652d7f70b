package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// inboundSchema validates the envelope shape of every client-originated frame
// before typed decoding runs.
const inboundSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {
      "type": "string",
      "enum": ["configure", "start_recording", "stop_recording", "audio_data", "get_status", "clear_all_tasks"]
    },
    "data": {"type": "object"}
  },
  "additionalProperties": false,
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "configure"}}},
      "then": {
        "required": ["data"],
        "properties": {
          "data": {
            "type": "object",
            "required": ["translate_api_key", "speech_api_key", "voice_id", "target_language"],
            "properties": {
              "translate_api_key": {"type": "string", "minLength": 1},
              "speech_api_key": {"type": "string", "minLength": 1},
              "voice_id": {"type": "string", "minLength": 1},
              "source_language": {"type": "string"},
              "target_language": {"type": "string", "minLength": 1},
              "translation_style": {"type": "string", "enum": ["default", "colloquial", "business", "academic"]},
              "hot_words": {"type": "array", "items": {"type": "string", "minLength": 1}}
            }
          }
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "audio_data"}}},
      "then": {
        "required": ["data"],
        "properties": {
          "data": {
            "type": "object",
            "required": ["audio"],
            "properties": {"audio": {"type": "string", "minLength": 1}}
          }
        }
      }
    }
  ]
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func inboundCompiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("inbound.schema.json", bytes.NewReader([]byte(inboundSchema))); err != nil {
			compileErr = fmt.Errorf("add inbound schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("inbound.schema.json")
	})
	return compiledSchema, compileErr
}

// ParseInbound validates a raw client frame against the inbound schema and
// returns the decoded envelope.
func ParseInbound(raw []byte) (Envelope, error) {
	schema, err := inboundCompiled()
	if err != nil {
		return Envelope{}, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Envelope{}, fmt.Errorf("invalid message frame: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return Envelope{}, fmt.Errorf("message failed schema validation: %w", err)
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decode message envelope: %w", err)
	}
	if !isInboundType(envelope.Type) {
		return Envelope{}, fmt.Errorf("unsupported inbound message type: %q", envelope.Type)
	}
	return envelope, nil
}
