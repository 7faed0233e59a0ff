package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strconv"

	"spi-dashboard/internal/modules/spi/mapconfig"
	"spi-dashboard/internal/modules/spi/types"
)

var dashboardTmpl *template.Template

var funcs = template.FuncMap{
	"cell": FormatCell,
}

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	dashboardTmpl = tmpl
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

var errNotLoaded = errors.New("dashboard template not loaded: call views.LoadTemplates during startup")

type DashboardData struct {
	Title     string
	MapConfig mapconfig.Config
	Guidance  []string
	Chat      ChatData
	Table     TableData
}

type ChatData struct {
	Turns []types.Turn
	// Notice is shown under the transcript when a submission was refused.
	Notice string
}

// PaginationItem is one entry in the pagination bar: either a page number or an ellipsis.
type PaginationItem struct {
	Page     int
	Ellipsis bool
}

// TableData is one page of the active table.
type TableData struct {
	Columns     []string
	Rows        [][]any
	TotalRows   int
	FirstRow    int
	LastRow     int
	CurrentPage int
	TotalPages  int
	HasPrev     bool
	HasNext     bool
	PrevPage    int
	NextPage    int
	PageItems   []PaginationItem
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errNotLoaded
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderChatPartial executes only the transcript partial into w.
func RenderChatPartial(w io.Writer, data *ChatData) error {
	if dashboardTmpl == nil {
		return errNotLoaded
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/chat.html", data)
}

// RenderTablePartial executes only the table partial into w.
// Use for HTMX fragment refresh after the active table changed.
func RenderTablePartial(w io.Writer, data *TableData) error {
	if dashboardTmpl == nil {
		return errNotLoaded
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/table.html", data)
}

// FormatCell renders a table cell; NULL is shown as an empty cell.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(v)
	}
}
