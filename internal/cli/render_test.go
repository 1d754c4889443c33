package cli

import (
	"strings"
	"testing"

	"mutaba/internal/core"
)

func TestRenderTable(t *testing.T) {
	out := RenderTable(Table{
		Title:   "RATES",
		Headers: []string{"Pair", "Rate"},
		Rows:    [][]string{{"USD-ILS", "3.7000"}, {"EUR-ILS", "4.0100"}},
	})
	for _, want := range []string{"RATES", "Pair", "Rate", "USD-ILS", "3.7000", "EUR-ILS"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "╭") {
		t.Errorf("expected rounded border:\n%s", out)
	}
}

func TestRenderTable_Empty(t *testing.T) {
	if got := RenderTable(Table{}); got != "" {
		t.Errorf("RenderTable(empty) = %q, want empty", got)
	}
}

func TestFormatAmounts(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"usd", FormatAmount(120050, core.USD), "1,200.50"},
		{"ils", FormatAmount(-30000, core.ILS), "300.00"},
		{"missing", FormatOptionalAmount(nil, core.EUR), "n/a"},
		{"present", FormatOptionalAmount(ptr(int64(500)), core.EUR), "5.00"},
		{"positive sign", FormatSigned(100, core.USD), "+"},
		{"zero", FormatSigned(0, core.USD), "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.got, tt.want) {
				t.Errorf("got %q, want it to contain %q", tt.got, tt.want)
			}
		})
	}
}

func TestRenderSeverity(t *testing.T) {
	if got := RenderSeverity(core.SeverityCritical); !strings.Contains(got, "CRITICAL") {
		t.Errorf("RenderSeverity(critical) = %q", got)
	}
	if got := RenderSeverity(core.SeverityInfo); !strings.Contains(got, "INFO") {
		t.Errorf("RenderSeverity(info) = %q", got)
	}
}

func ptr[T any](v T) *T { return &v }
