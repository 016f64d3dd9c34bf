package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "grafana", "duckchart_dashboard.json")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dashboard file: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}

	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "duckchart_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	text := string(content)

	requiredAlerts := []string{
		"DuckChartRenderLatencyP95High",
		"DuckChartHTTPErrorRateHigh",
		"DuckChartFilterRefusalsHigh",
		"DuckChartNoViableMetricDetected",
		"DuckChartRetentionRunFailed",
		"DuckChartIntegrityRunFailed",
		"DuckChartIntegrityMissingDatasetsDetected",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	requiredMetrics := []string{
		"duckchart:slo_render_latency_ms_p95",
		"duckchart:slo_http_error_rate_5m",
		"duckchart:slo_filter_refusal_ratio_30m",
		"duckchart:slo_no_viable_metric_30m",
		"duckchart:slo_retention_failures_30m",
		"duckchart:slo_integrity_failures_30m",
		"duckchart:slo_integrity_missing_datasets_30m",
	}
	for _, metricName := range requiredMetrics {
		matched, err := regexp.MatchString(regexp.QuoteMeta(metricName), text)
		if err != nil {
			t.Fatalf("regexp error for metric %q: %v", metricName, err)
		}
		if !matched {
			t.Fatalf("rules missing metric reference %q", metricName)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}
	text := string(content)

	if !strings.Contains(text, "metrics_path: /v1/metrics") {
		t.Fatal("scrape example missing metrics path")
	}
	if !strings.Contains(text, "duckchart_rules.yaml") {
		t.Fatal("scrape example missing alert rule file reference")
	}
	if !strings.Contains(text, "duckchart_recording_rules.yaml") {
		t.Fatal("scrape example missing recording rule file reference")
	}
	if !strings.Contains(text, "job_name: duckchart-api") {
		t.Fatal("scrape example missing duckchart-api job")
	}
}

func TestPrometheusRecordingRulesContainExpectedRecords(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "duckchart_recording_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording rules file: %v", err)
	}
	text := string(content)

	requiredRecords := []string{
		"duckchart:slo_render_latency_ms_p95",
		"duckchart:slo_http_error_rate_5m",
		"duckchart:slo_http_latency_seconds_p95",
		"duckchart:slo_filter_refusal_ratio_30m",
		"duckchart:slo_empty_selections_30m",
		"duckchart:slo_no_viable_metric_30m",
		"duckchart:slo_retention_failures_30m",
		"duckchart:slo_integrity_failures_30m",
		"duckchart:slo_integrity_missing_datasets_30m",
		"duckchart:slo_integrity_failures_24h",
	}
	for _, recordName := range requiredRecords {
		if !strings.Contains(text, "record: "+recordName) {
			t.Fatalf("recording rules missing record %q", recordName)
		}
	}
}

func TestRecordingRulesOnlyReferenceExportedMetrics(t *testing.T) {
	root := repoRoot(t)
	content, err := os.ReadFile(filepath.Join(root, "deployments", "observability", "prometheus", "duckchart_recording_rules.yaml"))
	if err != nil {
		t.Fatalf("read recording rules file: %v", err)
	}

	var exported strings.Builder
	for _, file := range []string{
		filepath.Join(root, "internal", "observability", "metrics.go"),
		filepath.Join(root, "internal", "observability", "domain_metrics.go"),
		filepath.Join(root, "internal", "maintenance", "metrics.go"),
	} {
		source, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		exported.Write(source)
	}

	series := regexp.MustCompile(`duckchart_[a-z_]+`).FindAllString(string(content), -1)
	if len(series) == 0 {
		t.Fatal("recording rules reference no raw series")
	}
	for _, name := range series {
		base := name
		for _, suffix := range []string{"_bucket", "_sum", "_count"} {
			base = strings.TrimSuffix(base, suffix)
		}
		if !strings.Contains(exported.String(), `"`+base+`"`) {
			t.Fatalf("recording rules reference unknown metric %q", name)
		}
	}
}

func TestAlertmanagerExampleContainsSeverityRouting(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "alertmanager", "alertmanager.example.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read alertmanager example: %v", err)
	}
	text := string(content)

	requiredTokens := []string{
		"receiver: duckchart-default",
		"severity=\"critical\"",
		"severity=\"warning\"",
		"name: duckchart-critical",
		"name: duckchart-warning",
		"inhibit_rules:",
		"group_by: [alertname, service, severity]",
	}
	for _, token := range requiredTokens {
		if !strings.Contains(text, token) {
			t.Fatalf("alertmanager example missing token %q", token)
		}
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
