package materials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaterial_Validate(t *testing.T) {
	cases := []struct {
		name    string
		m       Material
		wantErr error
	}{
		{"valid", Material{ID: "m1", Name: "Цемент М500", Unit: "кг"}, nil},
		{"missing id", Material{Name: "x", Unit: "кг"}, ErrMissingID},
		{"missing unit", Material{ID: "m1", Name: "x"}, ErrMissingUnit},
		{"empty name", Material{ID: "m1", Unit: "кг"}, ErrInvalidName},
		{"name too long", Material{ID: "m1", Name: strings.Repeat("a", 501), Unit: "кг"}, ErrInvalidName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tc.wantErr, err)
			}
		})
	}
}
