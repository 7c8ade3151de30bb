package models

import "strings"

// Category is the closed set of topics a question can be routed to.
type Category string

const (
	CategoryBasics            Category = "basics"
	CategoryMaterialSelection Category = "material_selection"
	CategoryPrinterTuning     Category = "printer_tuning"
	CategoryDefectDiagnosis   Category = "defect_diagnosis"
	CategorySlicer            Category = "slicer"
	CategoryOther             Category = "other"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryBasics,
	CategoryMaterialSelection,
	CategoryPrinterTuning,
	CategoryDefectDiagnosis,
	CategorySlicer,
	CategoryOther,
}

// ParseCategory matches s case-insensitively against the enumeration.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return CategoryOther, false
}
