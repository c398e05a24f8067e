package models

import (
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	slotLayout = "15:04"
)

// NormalizeForecast flattens a forecast payload into rows keyed by
// (office, area, date, time slot).
//
// Each (block, area) pair is read on its own: a block's timeDefines only
// index that block's attribute series, so values never move between areas.
// Missing attribute entries become empty strings, and an index with neither
// weather nor probability yields no row. When two blocks describe the same
// area and instant the rows are consolidated: a later non-empty value wins.
// Rows come back in order of first appearance.
func NormalizeForecast(officeCode string, payload ForecastPayload) ([]ForecastRow, error) {
	if payload == nil {
		return nil, &MalformedPayloadError{Reason: "payload is null"}
	}

	rows := make([]ForecastRow, 0)
	index := make(map[Key]int)

	for g, group := range payload {
		if group.TimeSeries == nil {
			return nil, &MalformedPayloadError{Reason: fmt.Sprintf("group %d: missing timeSeries", g)}
		}

		for b, block := range group.TimeSeries {
			stamps, err := parseTimeDefines(block.TimeDefines)
			if err != nil {
				return nil, &MalformedPayloadError{
					Reason: fmt.Sprintf("group %d block %d: bad timeDefines", g, b),
					Err:    err,
				}
			}

			for a, item := range block.Areas {
				if item.Area.Name == nil {
					return nil, &MalformedPayloadError{
						Reason: fmt.Sprintf("group %d block %d area %d: missing area.name", g, b, a),
					}
				}
				areaName := *item.Area.Name

				for i, ts := range stamps {
					weather := valueAt(item.Weathers, i)
					pop := valueAt(item.Pops, i)
					if weather == "" && pop == "" {
						continue
					}

					row := ForecastRow{
						OfficeCode:   officeCode,
						AreaName:     areaName,
						ForecastDate: ts.Format(dateLayout),
						TimeSlot:     ts.Format(slotLayout),
						Weather:      weather,
						Pop:          pop,
					}

					if at, ok := index[row.Key()]; ok {
						rows[at] = consolidate(rows[at], row)
						continue
					}
					index[row.Key()] = len(rows)
					rows = append(rows, row)
				}
			}
		}
	}

	return rows, nil
}

// parseTimeDefines parses every timestamp up front so a bad entry rejects
// the whole payload. The offset only anchors the parse; the wall clock as
// written is what gets stored.
func parseTimeDefines(defines []string) ([]time.Time, error) {
	stamps := make([]time.Time, len(defines))
	for i, s := range defines {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("timeDefines[%d] %q: %w", i, s, err)
		}
		stamps[i] = ts
	}
	return stamps, nil
}

func valueAt(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func consolidate(prev, next ForecastRow) ForecastRow {
	if next.Weather != "" {
		prev.Weather = next.Weather
	}
	if next.Pop != "" {
		prev.Pop = next.Pop
	}
	return prev
}
