package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced object", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around object", `Here you go: {"tables":[]} hope it helps`, `{"tables":[]}`, false},
		{"nested braces in strings", `{"desc":"uses {braces} inside"}`, `{"desc":"uses {braces} inside"}`, false},
		{"escaped quotes", `{"desc":"say \"hi\""}`, `{"desc":"say \"hi\""}`, false},
		{"array", `result: [1,2,3]`, `[1,2,3]`, false},
		{"unbalanced", `{"a":1`, "", true},
		{"no json", `sorry, I cannot do that`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type payload struct {
		Tables []string `json:"tables"`
	}

	got, err := ParseJSONResponse[payload]("```json\n{\"tables\":[\"users\",\"orders\"]}\n```")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tables) != 2 || got.Tables[0] != "users" {
		t.Errorf("unexpected result: %+v", got)
	}

	if _, err := ParseJSONResponse[payload](`{"tables": "not-an-array"}`); err == nil {
		t.Error("expected unmarshal error for mismatched type")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		errStr    string
		wantType  ErrorType
		retryable bool
	}{
		{"auth", "status 401 Unauthorized", ErrorTypeAuth, false},
		{"model missing", "the model does not exist", ErrorTypeModel, false},
		{"rate limited", "429 rate limit exceeded", ErrorTypeRate, true},
		{"server error", "unexpected status 503", ErrorTypeEndpoint, true},
		{"timeout", "context deadline exceeded", ErrorTypeEndpoint, true},
		{"unknown", "something odd", ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(errString(tt.errStr))
			if classified.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", classified.Type, tt.wantType)
			}
			if classified.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", classified.Retryable, tt.retryable)
			}
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }
