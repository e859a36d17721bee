package mqtt

import "testing"

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"fleet/dr-1/telemetry", "fleet/dr-1/telemetry", true},
		{"fleet/+/telemetry", "fleet/dr-1/telemetry", true},
		{"fleet/+/telemetry", "fleet/dr-1/cmd", false},
		{"fleet/#", "fleet/dr-1/telemetry", true},
		// Per MQTT 3.1.1, "sport/#" also matches "sport" itself.
		{"fleet/#", "fleet", true},
		{"fleet/+", "fleet/dr-1/telemetry", false},
		{"fleet/dr-1/#", "fleet/dr-2/telemetry", false},
		{"+/+/telemetry", "fleet/dr-1/telemetry", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"~"+tt.topic, func(t *testing.T) {
			if got := topicsMatch(tt.filter, tt.topic); got != tt.want {
				t.Errorf("topicsMatch(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}

func TestClientConfigValidate(t *testing.T) {
	if err := (&ClientConfig{}).Validate(); err == nil {
		t.Error("empty broker url should be invalid")
	}
	if err := (&ClientConfig{BrokerURL: "tcp://127.0.0.1:1883"}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
