package extract

import (
	"reflect"
	"strings"
	"testing"

	"github.com/zulandar/rfqdesk/internal/catalog"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return New(catalog.Default())
}

func TestExtract_ScrewsExample(t *testing.T) {
	c := newTestExtractor(t).Extract("Necesito 500 tornillos M8 urgente")

	if len(c.Quantities) != 1 {
		t.Fatalf("Quantities = %+v, want one", c.Quantities)
	}
	if c.Quantities[0].Value != 500 {
		t.Errorf("Value = %v, want 500", c.Quantities[0].Value)
	}
	if c.Quantities[0].Unit != "" {
		t.Errorf("Unit = %q, want empty (tornillos is not a unit)", c.Quantities[0].Unit)
	}
	if c.Urgency != UrgencyUrgent {
		t.Errorf("Urgency = %q, want urgent", c.Urgency)
	}
	if c.CategoryGuess != "fasteners" {
		t.Errorf("CategoryGuess = %q, want fasteners", c.CategoryGuess)
	}
	if !reflect.DeepEqual(c.LineItems, []string{"tornillo"}) {
		t.Errorf("LineItems = %v, want [tornillo]", c.LineItems)
	}
}

func TestExtract_Quantities(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Quantity
	}{
		{
			name: "number with unit",
			text: "Necesito 200 bolsas de cemento",
			want: []Quantity{{Value: 200, Unit: "bolsas", Raw: "200 bolsas"}},
		},
		{
			name: "glued unit",
			text: "need 1,500kg of sand",
			want: []Quantity{{Value: 1500, Unit: "kg", Raw: "1,500kg"}},
		},
		{
			name: "decimal comma",
			text: "2,5 toneladas de varilla",
			want: []Quantity{{Value: 2.5, Unit: "toneladas", Raw: "2,5 toneladas"}},
		},
		{
			name: "units win over bare numbers",
			text: "Obra 12, 30 piezas",
			want: []Quantity{{Value: 30, Unit: "piezas", Raw: "30 piezas"}},
		},
		{
			name: "bare fallback",
			text: "quiero 40 cascos y 40 chalecos",
			want: []Quantity{{Value: 40, Raw: "40"}, {Value: 40, Raw: "40"}},
		},
		{
			name: "dates and sizes ignored",
			text: "para el 15/07/2024, tornillo M8",
			want: nil,
		},
		{
			name: "list numbering ignored",
			text: "1. 20 cajas de toner\n2) papel",
			want: []Quantity{{Value: 20, Unit: "cajas", Raw: "20 cajas"}},
		},
		{
			name: "money ignored",
			text: "presupuesto $5000",
			want: nil,
		},
	}
	e := newTestExtractor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text).Quantities
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Quantities = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"500", 500},
		{"1,000", 1000},
		{"1.000", 1000},
		{"2.5", 2.5},
		{"2,5", 2.5},
		{"1,000.50", 1000.5},
		{"1.000,50", 1000.5},
		{"1,000,000", 1000000},
	}
	for _, tt := range tests {
		got, ok := parseNumber(tt.raw)
		if !ok || got != tt.want {
			t.Errorf("parseNumber(%q) = %v, %v; want %v", tt.raw, got, ok, tt.want)
		}
	}
}

func TestExtract_LineItems(t *testing.T) {
	text := "Cotización por favor:\n- 100 tornillos M6\n* 50 tuercas\n3. Arandelas planas\nGracias"
	got := newTestExtractor(t).Extract(text).LineItems
	want := []string{"100 tornillos M6", "50 tuercas", "Arandelas planas"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LineItems = %v, want %v", got, want)
	}
}

func TestExtract_Urgency(t *testing.T) {
	tests := []struct {
		text string
		want Urgency
	}{
		{"lo necesito URGENTE", UrgencyUrgent},
		{"no es urgente, cuando puedan", UrgencyLow},
		{"para esta semana por favor", UrgencyHigh},
		{"hola, cotizacion de cemento", ""},
	}
	e := newTestExtractor(t)
	for _, tt := range tests {
		if got := e.Extract(tt.text).Urgency; got != tt.want {
			t.Errorf("Urgency(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestChannelDefaultUrgency(t *testing.T) {
	dict := catalog.Default().Dictionaries
	tests := []struct {
		channel string
		want    Urgency
	}{
		{"whatsapp", UrgencyHigh},
		{"Slack", UrgencyHigh},
		{"email", UrgencyNormal},
		{"webform", UrgencyNormal},
		{"fax", UrgencyNormal},
		{"sms", UrgencyHigh},
	}
	for _, tt := range tests {
		if got := ChannelDefaultUrgency(tt.channel, dict); got != tt.want {
			t.Errorf("ChannelDefaultUrgency(%q) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

func TestContent_UrgencyGuess(t *testing.T) {
	dict := catalog.Default().Dictionaries
	c := Content{Urgency: UrgencyLow}
	if got := c.UrgencyGuess("whatsapp", dict); got != UrgencyLow {
		t.Errorf("explicit keyword should win, got %q", got)
	}
	if got := (Content{}).UrgencyGuess("whatsapp", dict); got != UrgencyHigh {
		t.Errorf("chat default = %q, want high", got)
	}
}

func TestExtract_Keywords(t *testing.T) {
	got := newTestExtractor(t).Extract("Renta de excavadora en la obra").Keywords
	for _, want := range []string{"renta", "excavadora"} {
		found := false
		for _, kw := range got {
			if kw == want {
				found = true
			}
		}
		if !found {
			t.Errorf("Keywords = %v, missing %q", got, want)
		}
	}
}

func TestExtract_EmptyText(t *testing.T) {
	c := newTestExtractor(t).Extract("")
	if c.CategoryGuess != "" || len(c.Quantities) != 0 || len(c.LineItems) != 0 || len(c.Keywords) != 0 {
		t.Errorf("empty text produced %+v", c)
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body>
<p>Hola,</p><p>Necesito:</p><ul><li>100 tornillos</li><li>20 tuercas</li></ul>
<p>Saludos<br>Ana</p><script>alert(1)</script></body></html>`
	got := HTMLToText(html)
	for _, want := range []string{"Hola,", "- 100 tornillos", "- 20 tuercas", "Saludos\nAna"} {
		if !strings.Contains(got, want) {
			t.Errorf("HTMLToText missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "alert") {
		t.Errorf("script content leaked: %s", got)
	}
	items := newTestExtractor(t).Extract(got).LineItems
	if len(items) != 2 {
		t.Errorf("LineItems from HTML = %v, want 2", items)
	}
}
