package ui

import (
	"fmt"
	"strings"

	"jma-forecast/internal/models"
)

// ViewState is everything the console shows. Only the event loop changes it.
type ViewState struct {
	Regions        []models.Region
	Offices        []models.Office
	SelectedRegion string
	SelectedOffice string
	Status         string
	Lines          []string
}

// OfficeName returns the display name of the selected office
func (v ViewState) OfficeName() string {
	for _, o := range v.Offices {
		if o.OfficeCode == v.SelectedOffice {
			if o.Name == "" {
				return o.OfficeCode
			}
			return o.Name
		}
	}
	return v.SelectedOffice
}

const helpLine = "コマンド: r <地方コード> / o <府県コード> / purge / q"

// Render draws the view state as text
func Render(v ViewState) string {
	var b strings.Builder

	b.WriteString("=== 気象庁 天気予報 ===\n")

	b.WriteString("地方:\n")
	for _, r := range v.Regions {
		fmt.Fprintf(&b, "%s %s %s\n", marker(r.Code == v.SelectedRegion), r.Code, r.Name)
	}

	if v.SelectedRegion != "" {
		b.WriteString("府県:\n")
		for _, o := range v.Offices {
			fmt.Fprintf(&b, "%s %s %s\n", marker(o.OfficeCode == v.SelectedOffice), o.OfficeCode, o.Name)
		}
	}

	if v.SelectedOffice != "" {
		fmt.Fprintf(&b, "【%sの天気】\n", v.OfficeName())
		for _, line := range v.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	if v.Status != "" {
		fmt.Fprintf(&b, "[%s]\n", v.Status)
	}
	b.WriteString(helpLine)
	b.WriteByte('\n')

	return b.String()
}

func marker(selected bool) string {
	if selected {
		return "  *"
	}
	return "   "
}
