package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "notecanvas/pkg/errors"
)

type sample struct {
	Title string `json:"title" validate:"required,max=5"`
	Color string `json:"color" validate:"required,hexcolor,len=7"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   sample
		wantErr string
	}{
		{"valid", sample{Title: "abc", Color: "#A1B2C3"}, ""},
		{"missing title", sample{Color: "#A1B2C3"}, "title is required"},
		{"title too long", sample{Title: "abcdef", Color: "#A1B2C3"}, "title must be at most 5 characters"},
		{"short color", sample{Title: "a", Color: "#ABC"}, "color must be exactly 7 characters"},
		{"not hex", sample{Title: "a", Color: "#GGGGGG"}, "color must be a hex color like #RRGGBB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateStruct_CountsRunes(t *testing.T) {
	err := ValidateStruct(sample{Title: strings.Repeat("é", 5), Color: "#000000"})
	assert.NoError(t, err)
}
