package console

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// NullMarker is shown for SQL NULL.
const NullMarker = "NULL"

// MaxCellRunes is the display width before a value is truncated.
const MaxCellRunes = 100

// Cell is one rendered value. Full holds the untruncated text for the detail view.
type Cell struct {
	Display   string
	Full      string
	Null      bool
	Truncated bool
}

// RenderCell formats a decoded JSON value for display.
func RenderCell(v any) Cell {
	if v == nil {
		return Cell{Display: NullMarker, Full: NullMarker, Null: true}
	}

	full := formatValue(v)
	runes := []rune(full)
	if len(runes) <= MaxCellRunes {
		return Cell{Display: full, Full: full}
	}
	return Cell{Display: string(runes[:MaxCellRunes]) + "...", Full: full, Truncated: true}
}

// RenderRows renders every value of rows.
func RenderRows(rows [][]any) [][]Cell {
	out := make([][]Cell, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, v := range row {
			cells[j] = RenderCell(v)
		}
		out[i] = cells
	}
	return out
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
