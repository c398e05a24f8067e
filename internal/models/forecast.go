package models

import (
	"sort"
	"time"
)

// Region is a top-level JMA grouping of forecast offices (地方)
type Region struct {
	Code string `json:"code" db:"code"`
	Name string `json:"name" db:"name"`
}

// Office is a prefecture-level forecast office; its code is the fetch key
// against the forecast API
type Office struct {
	RegionCode string `json:"region_code" db:"region_code"`
	OfficeCode string `json:"office_code" db:"office_code"`
	Name       string `json:"name" db:"name"`
}

// ForecastRow is one normalized forecast entry.
// (OfficeCode, AreaName, ForecastDate, TimeSlot) is the cache key.
type ForecastRow struct {
	OfficeCode   string `json:"office_code" db:"office_code"`
	AreaName     string `json:"area_name" db:"area_name"`
	ForecastDate string `json:"forecast_date" db:"forecast_date"` // YYYY-MM-DD
	TimeSlot     string `json:"time_slot" db:"time_slot"`         // HH:MM
	Weather      string `json:"weather" db:"weather"`
	Pop          string `json:"pop" db:"pop"` // precipitation probability, percent
}

// Key identifies the cache slot a row occupies.
type Key struct {
	OfficeCode   string
	AreaName     string
	ForecastDate string
	TimeSlot     string
}

// Key returns the row's uniqueness key
func (r ForecastRow) Key() Key {
	return Key{
		OfficeCode:   r.OfficeCode,
		AreaName:     r.AreaName,
		ForecastDate: r.ForecastDate,
		TimeSlot:     r.TimeSlot,
	}
}

// SortRows orders rows by area, date and time slot, the order the cache
// reads them back in. Rows with equal keys keep their relative order.
func SortRows(rows []ForecastRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.AreaName != b.AreaName {
			return a.AreaName < b.AreaName
		}
		if a.ForecastDate != b.ForecastDate {
			return a.ForecastDate < b.ForecastDate
		}
		return a.TimeSlot < b.TimeSlot
	})
}

// ForecastUpdate announces that an office's cached forecast was refreshed
type ForecastUpdate struct {
	OfficeCode string    `json:"office_code"`
	RowCount   int       `json:"row_count"`
	FetchedAt  time.Time `json:"fetched_at"`
}
