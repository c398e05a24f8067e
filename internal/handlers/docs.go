package handlers

import (
	"encoding/json"
	"net/http"
)

const apiTitle = "JMA Forecast API"

type object = map[string]interface{}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

func ref(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

func listOf(name string) object {
	return object{
		"type": "object",
		"properties": object{
			"data":  object{"type": "array", "items": ref(name)},
			"total": object{"type": "integer"},
		},
	}
}

func pathCode(description string) object {
	return object{
		"name":        "code",
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      object{"type": "string"},
	}
}

func errorResponse(description string) object {
	return object{"description": description, "content": jsonContent(ref("Error"))}
}

// OpenAPISpec returns the OpenAPI 3.0 document of the forecast API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	forecast := object{"content": jsonContent(ref("Forecast"))}
	withDescription := func(o object, d string) object {
		c := object{}
		for k, v := range o {
			c[k] = v
		}
		c["description"] = d
		return c
	}

	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       apiTitle,
			"description": "Japan Meteorological Agency forecasts by region and prefecture office, cached locally and refreshed in the background",
			"version":     "1.0.0",
		},
		"servers": []object{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/regions": object{
				"get": object{
					"summary":   "List regions",
					"responses": object{"200": object{"description": "All regions", "content": jsonContent(listOf("Region"))}},
				},
			},
			"/api/regions/{code}/offices": object{
				"get": object{
					"summary":    "List the forecast offices of a region",
					"parameters": []object{pathCode("Region code, e.g. 010300")},
					"responses":  object{"200": object{"description": "Offices of the region", "content": jsonContent(listOf("Office"))}},
				},
			},
			"/api/offices/{code}/forecast": object{
				"get": object{
					"summary":     "Get the forecast of an office",
					"description": "Served from cache when fresh; otherwise a background fetch is started and awaited for up to `wait`.",
					"parameters": []object{
						pathCode("Office code, e.g. 130000"),
						{
							"name":        "wait",
							"in":          "query",
							"description": "How long to wait for a background fetch (Go duration, max 30s)",
							"required":    false,
							"schema":      object{"type": "string", "default": "5s"},
						},
					},
					"responses": object{
						"200": withDescription(forecast, "Cached or freshly fetched forecast"),
						"202": withDescription(forecast, "Fetch still running; retry later"),
						"404": errorResponse("Unknown office"),
						"502": withDescription(forecast, "Fetching from JMA failed"),
					},
				},
				"delete": object{
					"summary":    "Purge the cached forecast of an office",
					"parameters": []object{pathCode("Office code")},
					"responses": object{
						"200": object{"description": "Number of rows deleted", "content": jsonContent(object{
							"type": "object",
							"properties": object{
								"office_code": object{"type": "string"},
								"deleted":     object{"type": "integer"},
							},
						})},
					},
				},
			},
			"/api/offices/{code}/forecast.xlsx": object{
				"get": object{
					"summary":    "Download the cached forecast as a workbook",
					"parameters": []object{pathCode("Office code")},
					"responses": object{
						"200": object{
							"description": "Excel workbook",
							"content": object{
								"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": object{
									"schema": object{"type": "string", "format": "binary"},
								},
							},
						},
						"404": errorResponse("Nothing cached for the office"),
					},
				},
			},
			"/health": object{
				"get": object{
					"summary": "Health check",
					"responses": object{
						"200": object{"description": "API and database are healthy"},
						"503": object{"description": "Database unreachable"},
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary": "Prometheus metrics",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content":     object{"text/plain": object{"schema": object{"type": "string"}}},
						},
					},
				},
			},
		},
		"components": object{
			"schemas": object{
				"Region": object{
					"type": "object",
					"properties": object{
						"code": object{"type": "string"},
						"name": object{"type": "string"},
					},
				},
				"Office": object{
					"type": "object",
					"properties": object{
						"region_code": object{"type": "string"},
						"office_code": object{"type": "string"},
						"name":        object{"type": "string"},
					},
				},
				"ForecastRow": object{
					"type": "object",
					"properties": object{
						"office_code":   object{"type": "string"},
						"area_name":     object{"type": "string"},
						"forecast_date": object{"type": "string", "format": "date"},
						"time_slot":     object{"type": "string", "example": "17:00"},
						"weather":       object{"type": "string"},
						"pop":           object{"type": "string", "description": "Precipitation probability in percent; empty when not forecast"},
					},
				},
				"Forecast": object{
					"type": "object",
					"properties": object{
						"office_code": object{"type": "string"},
						"office_name": object{"type": "string"},
						"status":      object{"type": "string", "enum": []string{"cached", "fetched", "fetching", "failed"}},
						"lines":       object{"type": "array", "items": object{"type": "string"}},
						"rows":        object{"type": "array", "items": ref("ForecastRow")},
						"error":       object{"type": "string"},
					},
				},
				"Error": object{
					"type": "object",
					"properties": object{
						"error":   object{"type": "string"},
						"message": object{"type": "string"},
						"code":    object{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
