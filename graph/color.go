package graph

// Palettes for schema colours. Index i of the light palette pairs with index
// i of the dark one.
var (
	lightPalette = [5]string{"#B3D4FC", "#C8E6C9", "#FFE0B2", "#E1BEE7", "#FFCDD2"}
	darkPalette  = [5]string{"#1E4976", "#2E5D32", "#7A4A00", "#4A235A", "#7F1D1D"}
)

const (
	neutralLight = "#ECEFF1"
	neutralDark  = "#37474F"
)

// SchemaColor returns the colour of a schema. The mapping sums character codes
// into the palette, so unrelated schemas can share a colour. The public schema
// is always neutral.
func SchemaColor(schema string, dark bool) string {
	if schema == "public" || schema == "" {
		if dark {
			return neutralDark
		}
		return neutralLight
	}
	sum := 0
	for _, r := range schema {
		sum += int(r)
	}
	if dark {
		return darkPalette[sum%len(darkPalette)]
	}
	return lightPalette[sum%len(lightPalette)]
}
