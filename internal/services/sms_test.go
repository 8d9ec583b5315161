package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already E.164", "+254712345678", "+254712345678"},
		{"local with leading zero", "0712345678", "+254712345678"},
		{"country code without plus", "254712345678", "+254712345678"},
		{"spaces and dashes", "0712-345 678", "+254712345678"},
		{"bare subscriber number", "712345678", "+254712345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.input))
		})
	}
}
