package services

import (
	"fmt"

	"jma-forecast/internal/models"
)

// Messages shown in place of forecast lines.
const (
	UnavailableMessage = "天気情報を取得できませんでした。"
	FailureMessage     = "天気情報の取得に失敗しました。"
)

const emptyField = "--"

// FormatForecast renders rows, already ordered by area, date and time slot,
// into display lines. A 【area】 header precedes each run of rows for one area.
func FormatForecast(rows []models.ForecastRow) []string {
	lines := make([]string, 0, len(rows)+1)

	currentArea := ""
	for i, row := range rows {
		if i == 0 || row.AreaName != currentArea {
			lines = append(lines, fmt.Sprintf("【%s】", row.AreaName))
			currentArea = row.AreaName
		}

		pop := emptyField
		if row.Pop != "" {
			pop = row.Pop + "%"
		}
		lines = append(lines, fmt.Sprintf("%s %s  天気: %s  降水確率: %s",
			row.ForecastDate, row.TimeSlot, orEmpty(row.Weather), pop))
	}

	return lines
}

func orEmpty(s string) string {
	if s == "" {
		return emptyField
	}
	return s
}
