package wire

import (
	"testing"
)

func TestParseInboundAcceptsValidFrames(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"configure":       `{"type":"configure","data":{"translate_api_key":"tk","speech_api_key":"sk","voice_id":"v","target_language":"de"}}`,
		"start_recording": `{"type":"start_recording"}`,
		"stop_recording":  `{"type":"stop_recording"}`,
		"audio_data":      `{"type":"audio_data","data":{"audio":"AAEC"}}`,
		"get_status":      `{"type":"get_status"}`,
		"clear_all_tasks": `{"type":"clear_all_tasks"}`,
	}
	for name, frame := range cases {
		env, err := ParseInbound([]byte(frame))
		if err != nil {
			t.Fatalf("%s rejected: %v", name, err)
		}
		if string(env.Type) != name {
			t.Fatalf("expected type %s, got %s", name, env.Type)
		}
	}
}

func TestParseInboundRejectsMalformedFrames(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":               `{`,
		"missing type":           `{"data":{}}`,
		"unknown type":           `{"type":"reboot"}`,
		"outbound type":          `{"type":"transcription"}`,
		"extra field":            `{"type":"get_status","extra":1}`,
		"configure without data": `{"type":"configure"}`,
		"configure missing keys": `{"type":"configure","data":{"voice_id":"v"}}`,
		"configure bad style":    `{"type":"configure","data":{"translate_api_key":"tk","speech_api_key":"sk","voice_id":"v","target_language":"de","translation_style":"shouty"}}`,
		"audio without payload":  `{"type":"audio_data","data":{}}`,
		"audio empty string":     `{"type":"audio_data","data":{"audio":""}}`,
	}
	for name, frame := range cases {
		if _, err := ParseInbound([]byte(frame)); err == nil {
			t.Fatalf("%s was accepted", name)
		}
	}
}

func TestParseInboundStyleEnum(t *testing.T) {
	t.Parallel()

	frame := `{"type":"configure","data":{"translate_api_key":"tk","speech_api_key":"sk","voice_id":"v","target_language":"de","translation_style":"business","hot_words":["GPU","SLA"]}}`
	env, err := ParseInbound([]byte(frame))
	if err != nil {
		t.Fatalf("valid configure rejected: %v", err)
	}
	var data ConfigureData
	if err := env.DecodeData(&data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.TranslationStyle != StyleBusiness || len(data.HotWords) != 2 {
		t.Fatalf("unexpected configure payload %+v", data)
	}
}
