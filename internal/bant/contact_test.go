package bant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractContact(t *testing.T) {
	tests := []struct {
		in   string
		want Contact
	}{
		{"Samuel Jackson, 098124814122", Contact{Name: "Samuel Jackson", Phone: "098124814122"}},
		{"my name is maria clara santos and my email is Maria@Example.com",
			Contact{Name: "Maria Clara Santos", Email: "maria@example.com"}},
		{"I'm Ana, +63 917 123 4567", Contact{Name: "Ana", Phone: "+639171234567"}},
		{"call me Jun - 0917-555-0101", Contact{Name: "Jun", Phone: "09175550101"}},
		{"ana.reyes@mail.ph", Contact{Email: "ana.reyes@mail.ph"}},
		{"I'm the sole decision maker", Contact{}},
		{"my number is 12345", Contact{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractContact(tt.in))
		})
	}
}

func TestExtractName(t *testing.T) {
	assert.Equal(t, "Samuel Jackson", ExtractName("samuel jackson"))
	assert.Equal(t, "O'Brien", ExtractName("o'brien"))
	assert.Equal(t, "", ExtractName("yes"))
	assert.Equal(t, "", ExtractName("what is this?"))
	assert.Equal(t, "", ExtractName("0917"))
}

func TestExtractName_RejectsAcknowledgements(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Great thanks", ""},
		{"great", ""},
		{"ok sure", ""},
		{"Sounds good", ""},
		{"Samuel thanks", ""},
		{"Juan", "Juan"},
		{"maria clara santos", "Maria Clara Santos"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractName(tt.in))
		})
	}
}
