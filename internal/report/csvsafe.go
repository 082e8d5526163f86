package report

// formulaPrefixes start a cell that spreadsheets may evaluate.
const formulaPrefixes = "=+-@|%\t\r\n"

// EscapeCSVCell defuses spreadsheet formula injection by prefixing a single
// quote to any cell that starts with a formula character. Listing titles
// come from arbitrary sellers, so every free-text cell goes through here.
func EscapeCSVCell(value string) string {
	if value == "" {
		return value
	}
	for i := 0; i < len(formulaPrefixes); i++ {
		if value[0] == formulaPrefixes[i] {
			return "'" + value
		}
	}
	return value
}

// EscapeCSVRow escapes all cells in a row
func EscapeCSVRow(row []string) []string {
	escaped := make([]string, len(row))
	for i, cell := range row {
		escaped[i] = EscapeCSVCell(cell)
	}
	return escaped
}
