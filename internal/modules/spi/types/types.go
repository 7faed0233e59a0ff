package types

import "strings"

// Canonical dataset column names, in display order.
const (
	ColCode        = "Code"
	ColStationID   = "Station_ID"
	ColJMDCode     = "JMD_code"
	ColStationName = "Station_Name"
	ColAltitude    = "Altitude_m"
	ColLatitude    = "Latitude"
	ColLongitude   = "Longitude"
	ColTime        = "Time"
	ColSPI         = "SPI"
)

// Columns is the single source of truth for column ordering.
var Columns = []string{
	ColCode, ColStationID, ColJMDCode, ColStationName,
	ColAltitude, ColLatitude, ColLongitude, ColTime, ColSPI,
}

// Reading is one station SPI reading.
type Reading struct {
	Code        string   `json:"code"`
	StationID   string   `json:"station_id"`
	JMDCode     string   `json:"jmd_code,omitempty"`
	StationName string   `json:"station_name"`
	AltitudeM   *float64 `json:"altitude_m,omitempty"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Time        string   `json:"time"`
	SPI         *float64 `json:"spi,omitempty"`
}

type Station struct {
	StationID   string  `json:"stationId"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ReadingsCnt int     `json:"readings"`
}

// Table is an ordered set of named columns and rows of cell values. Cells are
// string, float64, int64 or nil.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (t Table) Len() int { return len(t.Rows) }

// Index returns the position of the named column (case-insensitive) or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Page returns rows [offset, offset+size) clipped to the table bounds.
func (t Table) Page(offset, size int) [][]any {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(t.Rows) || size <= 0 {
		return nil
	}
	end := offset + size
	if end > len(t.Rows) {
		end = len(t.Rows)
	}
	return t.Rows[offset:end]
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a chat transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
