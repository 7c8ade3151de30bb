// Package safety flags answers that talk about hazardous materials or
// conditions. The check is a plain substring scan and cannot fail.
package safety

import "strings"

const Banner = "⚠️ БЕЗОПАСНОСТЬ: Соблюдайте технику безопасности при работе с материалами.\n\n"

// hazardStems cover toxicity, explosivity, flammability, fire and poisoning.
var hazardStems = []string{
	"токсичн", "ядовит", "взрывоопасн", "взрыв",
	"горюч", "легковоспламеня", "пожар", "отравлен",
}

// Hazardous reports the first hazard stem found in answer, case-insensitively.
func Hazardous(answer string) (string, bool) {
	lower := strings.ToLower(answer)
	for _, stem := range hazardStems {
		if strings.Contains(lower, stem) {
			return stem, true
		}
	}
	return "", false
}

// Validate prepends Banner when the answer mentions a hazard. The answer
// itself is never altered.
func Validate(answer string) string {
	if _, ok := Hazardous(answer); ok {
		return Banner + answer
	}
	return answer
}
