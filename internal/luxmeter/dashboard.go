package luxmeter

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/ztkent/lux-meter/internal/tools"
)

// ServeResultsDB serves the sqlite db for download.
func (m *Meter) ServeResultsDB() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", DBPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, DBPath)
	}
}

// ServeSensorStatus reports the connection state and confirmed configuration.
func (m *Meter) ServeSensorStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type status struct {
			Connected       bool   `json:"connected"`
			Enabled         bool   `json:"enabled"`
			Running         bool   `json:"running"`
			Gain            string `json:"gain,omitempty"`
			IntegrationTime string `json:"integrationTime,omitempty"`
		}
		s := status{}
		if m.Sensor != nil {
			m.mu.Lock()
			cfg := m.Sensor.Config()
			s = status{
				Connected:       true,
				Enabled:         m.Sensor.Enabled(),
				Running:         m.running,
				Gain:            cfg.Gain.String(),
				IntegrationTime: cfg.Time.String(),
			}
			m.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(s)
	}
}

// ServeResultsGraph renders the lux-over-time chart for a date range.
func (m *Meter) ServeResultsGraph() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startDate, endDate := tools.ParseStartAndEndDate(r)

		rows, err := m.ResultsDB.Query(
			"SELECT lux, created_at FROM readings WHERE created_at BETWEEN ? AND ? ORDER BY created_at",
			startDate, endDate)
		if err != nil {
			tools.Logger.WithError(err).Error("failed to query readings for graph")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		var luxValues []opts.LineData
		var timeValues []string
		var maxLux int
		for rows.Next() {
			var lux float64
			var createdAt time.Time
			if err := rows.Scan(&lux, &createdAt); err != nil {
				tools.Logger.WithError(err).Error("failed to scan reading")
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if lux > float64(maxLux) {
				// Round up to the nearest 5000
				maxLux = int(math.Ceil(lux/5000) * 5000)
			}
			luxValues = append(luxValues, opts.LineData{Value: lux})
			timeValues = append(timeValues, createdAt.Format("2006-01-02 15:04:05"))
		}
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		line := charts.NewLine()

		// Reference series for common daylight levels
		levels := map[int]string{
			500:   "DarkGrey",
			1000:  "WhiteSmoke",
			10000: "SkyBlue",
			25000: "Yellow",
		}
		titles := map[int]string{
			500:   "Shade",
			1000:  "Partial Shade",
			10000: "Partial Sun",
			25000: "Full Sun",
		}
		for level, color := range levels {
			line.AddSeries(
				titles[level],
				func(level int, length int) []opts.LineData {
					data := make([]opts.LineData, length)
					for i := range data {
						data[i] = opts.LineData{Value: level}
					}
					return data
				}(level, len(timeValues)),
				charts.WithLineChartOpts(opts.LineChart{
					Color: color,
				}),
			)
		}

		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{
				Theme: types.ThemeChalk,
			}),
			charts.WithXAxisOpts(opts.XAxis{
				Name: "Time",
			}),
			charts.WithYAxisOpts(opts.YAxis{
				Name: "Lux",
				Min:  "0",
				Max:  fmt.Sprintf("%d", maxLux),
			}),
			charts.WithTooltipOpts(opts.Tooltip{
				Show:      true,
				Trigger:   "axis",
				TriggerOn: "mousemove",
			}),
			charts.WithToolboxOpts(opts.Toolbox{
				Show: true,
				Feature: &opts.ToolBoxFeature{
					SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{
						Show:  true,
						Title: "Save as Image",
						Name:  "lux-meter",
					},
				},
			}),
		)
		line.SetXAxis(timeValues).AddSeries("Lux", luxValues)

		page := components.NewPage()
		page.AddCharts(line)

		w.Header().Set("Content-Type", "text/html")
		page.Render(w)
	}
}

// HistoricalConditions serves range aggregates: average lux, recorded hours,
// and a rough light-condition classification.
func (m *Meter) HistoricalConditions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conditions, err := m.getCurrentConditions()
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		startDate, endDate := tools.ParseStartAndEndDate(r)
		conditions, err = m.getHistoricalConditions(conditions, startDate, endDate)
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(conditions)
	}
}

func (m *Meter) getHistoricalConditions(conditions Conditions, startDate string, endDate string) (Conditions, error) {
	if m.ResultsDB == nil {
		return conditions, nil
	}
	conditions.DateRange = fmt.Sprintf("%s - %s UTC", startDate, endDate)

	// Average lux and the observed bounds of the range
	row := m.ResultsDB.QueryRow(`
    SELECT
        COALESCE(AVG(lux), 0),
        COALESCE(MIN(created_at), '0001-01-01 00:00:00'),
        COALESCE(MAX(created_at), '0001-01-01 00:00:00')
    FROM readings
    WHERE created_at BETWEEN ? AND ?`, startDate, endDate)
	var oldest, mostRecent string
	if err := row.Scan(&conditions.AverageLuxInRange, &oldest, &mostRecent); err != nil {
		return conditions, err
	}
	if conditions.AverageLuxInRange == 0 {
		conditions.LightConditionInRange = "No Data in Range"
		return conditions, nil
	}

	// Minutes where the per-minute average was over 10k lux
	row = m.ResultsDB.QueryRow(`
    SELECT COUNT(*)
    FROM (
        SELECT AVG(lux) as avg_lux
        FROM readings
        WHERE created_at BETWEEN ? AND ?
        GROUP BY strftime('%H:%M', created_at)
    )
    WHERE avg_lux > 10000`, startDate, endDate)
	var fullSunlightMinutes float64
	if err := row.Scan(&fullSunlightMinutes); err != nil {
		return conditions, err
	}
	conditions.FullSunlightInRange = fullSunlightMinutes / 60

	start, end, err := tools.StartAndEndDateToTime(oldest, mostRecent)
	if err != nil {
		return conditions, err
	}
	conditions.RecordedHoursInRange = end.Sub(start).Hours()
	if conditions.RecordedHoursInRange <= 0 {
		return conditions, nil
	}

	ratio := conditions.FullSunlightInRange / conditions.RecordedHoursInRange
	switch {
	case ratio > 0.5:
		conditions.LightConditionInRange = "Full Sun"
	case ratio > 0.25:
		conditions.LightConditionInRange = "Partial Sun"
	case ratio > 0.1:
		conditions.LightConditionInRange = "Partial Shade"
	default:
		conditions.LightConditionInRange = "Shade"
	}
	return conditions, nil
}
