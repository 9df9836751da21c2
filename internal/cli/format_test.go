package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/chat"
	"github.com/misiones-arrienda/arrienda/internal/notification"
	"github.com/misiones-arrienda/arrienda/internal/property"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		currency string
		expected string
	}{
		{"zero", 0, "ARS", "Consultar"},
		{"small", 999, "ARS", "ARS 999"},
		{"thousands", 250000, "ARS", "ARS 250.000"},
		{"millions", 85000000, "ARS", "ARS 85.000.000"},
		{"dollars", 65000, "USD", "USD 65.000"},
		{"default currency", 1500, "", "ARS 1.500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatPrice(tt.amount, tt.currency)
			if result != tt.expected {
				t.Errorf("formatPrice(%d, %q) = %q, want %q", tt.amount, tt.currency, result, tt.expected)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{"short", "hola", 10, "hola"},
		{"exact", "hola", 4, "hola"},
		{"long", "departamento céntrico", 8, "depar..."},
		{"multibyte", "ñañañañaña", 6, "ñañ..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncate(tt.input, tt.max)
			if result != tt.expected {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.max, result, tt.expected)
			}
		})
	}
}

func TestPrintPropertyTable(t *testing.T) {
	beds := int64(2)
	props := []*property.Property{
		{ID: 1, Title: "Depto céntrico", City: "Posadas", Operation: property.OperationRent, Price: 250000, Currency: "ARS", Bedrooms: &beds, Status: property.StatusAvailable, Featured: true},
		{ID: 2, Title: "Lote", City: "Oberá", Operation: property.OperationSale, Status: property.StatusAvailable},
	}

	var buf bytes.Buffer
	if err := printPropertyTable(&buf, props, 7); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"★ Depto céntrico", "ARS 250.000", "Consultar", "Oberá", "Showing 2 of 7 listings"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintPropertyTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printPropertyTable(&buf, nil, 0); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(buf.String(), "No listings found.") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintNotificationsMarksUnread(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	list := []notification.Notification{
		{ID: 1, Title: "¡Tenés un nuevo match!", CreatedAt: now},
		{ID: 2, Title: "Pago aprobado", CreatedAt: now, ReadAt: &now},
	}

	var buf bytes.Buffer
	printNotifications(&buf, list)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "*") || strings.HasPrefix(lines[1], "*") {
		t.Errorf("unread marks wrong:\n%s", buf.String())
	}
}

func TestPrintMessage(t *testing.T) {
	m := chat.Message{ID: 1, SenderID: 3, Body: "hola", CreatedAt: time.Now()}

	var buf bytes.Buffer
	printMessage(&buf, m, 3)
	if !strings.Contains(buf.String(), "you: hola") {
		t.Errorf("own message = %q", buf.String())
	}

	buf.Reset()
	printMessage(&buf, m, 4)
	if !strings.Contains(buf.String(), "user 3: hola") {
		t.Errorf("other's message = %q", buf.String())
	}
}
