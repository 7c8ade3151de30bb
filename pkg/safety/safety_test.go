package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		banner bool
	}{
		{"explosive", "Пыль от шлифовки взрывоопасно накапливать.", true},
		{"upper case", "ABS ТОКСИЧНЫЙ при перегреве", true},
		{"fire", "Риск пожара при печати без присмотра", true},
		{"poisoning", "возможно отравление парами", true},
		{"clean", "Печатайте PLA при 200°C.", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.answer)
			if tt.banner {
				assert.True(t, strings.HasPrefix(got, Banner))
				assert.Equal(t, tt.answer, strings.TrimPrefix(got, Banner))
			} else {
				assert.Equal(t, tt.answer, got)
			}
		})
	}
}

func TestHazardous(t *testing.T) {
	stem, ok := Hazardous("Смола ядовита")
	assert.True(t, ok)
	assert.Equal(t, "ядовит", stem)

	_, ok = Hazardous("всё безопасно")
	assert.False(t, ok)
}
