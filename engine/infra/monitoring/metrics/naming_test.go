package metrics

import "testing"

func TestMetricName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "adds prefix", input: "requests_total", expected: "nutrilens_requests_total"},
		{name: "keeps prefixed", input: "nutrilens_custom_metric", expected: "nutrilens_custom_metric"},
		{name: "blank returns prefix", input: "", expected: "nutrilens_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MetricName(tt.input); got != tt.expected {
				t.Fatalf("MetricName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMetricNameWithSubsystem(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		subsystem  string
		metricName string
		expected   string
	}{
		{name: "subsystem and name", subsystem: "knowledge", metricName: "chunks_total", expected: "nutrilens_knowledge_chunks_total"},
		{name: "subsystem trims underscore", subsystem: "_pipeline_", metricName: "runs_total", expected: "nutrilens_pipeline_runs_total"},
		{name: "empty name", subsystem: "http", metricName: "", expected: "nutrilens_http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MetricNameWithSubsystem(tt.subsystem, tt.metricName); got != tt.expected {
				t.Fatalf("MetricNameWithSubsystem(%q, %q) = %q, want %q", tt.subsystem, tt.metricName, got, tt.expected)
			}
		})
	}
}
