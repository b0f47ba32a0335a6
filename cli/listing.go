package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/yllada/shuttle-manager/common"
	"github.com/yllada/shuttle-manager/profile"
)

// Listing formats.
const (
	formatCSV   = "csv"
	formatJSON  = "json"
	formatTable = "table"
	formatYAML  = "yaml"
)

const (
	nameTitle   = "Name"
	statusTitle = "Status"
)

// listColumns maps column titles to profile fields, in display order.
var listColumns = []struct {
	title string
	field string
}{
	{"Remote host", profile.FieldRemote},
	{"Subnets", profile.FieldSubnets},
	{"Auto hosts", profile.FieldAutoHosts},
	{"Auto nets", profile.FieldAutoNets},
	{"DNS forward", profile.FieldDNS},
	{"Exclude subnets", profile.FieldExcludeSubnets},
	{"Seed hosts", profile.FieldSeedHosts},
	{"Extra options", profile.FieldExtraOpts},
}

// basicColumns is how many of listColumns a non-verbose table shows.
const basicColumns = 2

// listFormats returns the supported listing formats in sorted order.
func listFormats() []string {
	return []string{formatCSV, formatJSON, formatTable, formatYAML}
}

func isListFormat(format string) bool {
	for _, f := range listFormats() {
		if f == format {
			return true
		}
	}
	return false
}

func errInvalidFormat(format string) error {
	return fmt.Errorf("invalid output format: %s", format)
}

// profileSource is what listings read profiles and session state from.
type profileSource interface {
	Profiles() map[string]*profile.Profile
	Profile(name string) (*profile.Profile, error)
	IsRunning(name string) bool
}

// listing renders profiles for output to out.
type listing struct {
	source   profileSource
	out      io.Writer
	renderer *lipgloss.Renderer
}

func newListing(source profileSource, out io.Writer) *listing {
	return &listing{
		source:   source,
		out:      out,
		renderer: lipgloss.NewRenderer(out),
	}
}

// Output returns all profiles in the given format. Verbose only affects
// the table format.
func (l *listing) Output(format string, verbose bool) (string, error) {
	profiles := l.source.Profiles()
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	switch format {
	case formatTable:
		return l.tableOutput(names, profiles, verbose), nil
	case formatCSV:
		return l.csvOutput(names, profiles)
	case formatJSON:
		return l.jsonOutput(profiles)
	case formatYAML:
		return l.yamlOutput(profiles)
	default:
		return "", errInvalidFormat(format)
	}
}

func (l *listing) tableOutput(names []string, profiles map[string]*profile.Profile, verbose bool) string {
	columns := listColumns
	if !verbose {
		columns = columns[:basicColumns]
	}

	headers := []string{"", nameTitle}
	for _, column := range columns {
		headers = append(headers, column.title)
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		marker := ""
		if l.source.IsRunning(name) {
			marker = "*"
		}
		row := []string{marker, name}
		for _, column := range columns {
			row = append(row, formatValue(profiles[name].Value(column.field)))
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(true).
		BorderStyle(l.renderer.NewStyle()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := l.renderer.NewStyle().PaddingRight(1)
			if row == table.HeaderRow {
				style = style.Bold(true)
			}
			return style
		})

	if width := l.terminalWidth(); width > 0 && lipgloss.Width(t.String()) > width {
		t.Width(width)
	}
	return t.String() + "\n"
}

// terminalWidth returns the width of the output terminal, or 0 when the
// output is not a terminal.
func (l *listing) terminalWidth() int {
	f, ok := l.out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

func (l *listing) csvOutput(names []string, profiles map[string]*profile.Profile) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{nameTitle, statusTitle}
	for _, column := range listColumns {
		header = append(header, column.title)
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, name := range names {
		record := []string{name, l.status(name).String()}
		for _, column := range listColumns {
			record = append(record, formatValue(profiles[name].Value(column.field)))
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (l *listing) jsonOutput(profiles map[string]*profile.Profile) (string, error) {
	data, err := json.Marshal(configs(profiles))
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func (l *listing) yamlOutput(profiles map[string]*profile.Profile) (string, error) {
	data, err := yaml.Marshal(configs(profiles))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Details returns every field of the named profile with its session status,
// one per line.
func (l *listing) Details(name string) (string, error) {
	p, err := l.source.Profile(name)
	if err != nil {
		return "", err
	}

	rows := [][]string{
		{nameTitle + ":", name},
		{statusTitle + ":", l.status(name).String()},
	}
	for _, column := range listColumns {
		rows = append(rows, []string{column.title + ":", formatValue(p.Value(column.field))})
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := l.renderer.NewStyle().PaddingRight(1)
			if col == 0 {
				style = style.Bold(true)
			}
			return style
		})
	return t.String(), nil
}

func (l *listing) status(name string) common.SessionStatus {
	return common.SessionStatusOf(l.source.IsRunning(name))
}

// configs maps profile names to their configuration fields.
func configs(profiles map[string]*profile.Profile) map[string]map[string]any {
	data := make(map[string]map[string]any, len(profiles))
	for name, p := range profiles {
		data[name] = p.Config()
	}
	return data
}

// formatValue renders a field value for tabular output. Lists are joined
// with spaces.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, " ")
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
