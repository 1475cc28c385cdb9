package validation

import "testing"

func TestIsValidBillID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"uuid", "0b6f1a52-8c3e-4f6e-9d1a-3c2b1a0f9e8d", true},
		{"empty", "", false},
		{"salesforce style id", "a0B5g00000XyZ12EAB", false},
		{"truncated", "0b6f1a52-8c3e-4f6e-9d1a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidBillID(tt.id); got != tt.want {
				t.Fatalf("IsValidBillID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestIsValidInvoiceNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{"valid", "INV-20251014-0123", true},
		{"empty", "", false},
		{"short suffix", "INV-20251014-12", false},
		{"lowercase prefix", "inv-20251014-0123", false},
		{"letters in date", "INV-2025101A-0123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidInvoiceNumber(tt.number); got != tt.want {
				t.Fatalf("IsValidInvoiceNumber(%q) = %v, want %v", tt.number, got, tt.want)
			}
		})
	}
}
