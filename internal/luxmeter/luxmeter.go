package luxmeter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/lux-meter/internal/tools"
	"github.com/ztkent/lux-meter/tsl2591"
)

// Meter runs monitoring jobs against one TSL2591 and records the readings.
// The driver itself is single-owner; the meter's mutex is the serialization
// layer between the HTTP handlers and the monitoring goroutine sharing it.
type Meter struct {
	mu         sync.Mutex
	Sensor     *tsl2591.Device
	ResultsDB  *sql.DB
	ResultChan chan Result
	cancel     context.CancelFunc
	running    bool
}

// Result is one recorded reading.
type Result struct {
	JobID    string
	Lux      float64
	Full     uint16
	Infrared uint16
}

const (
	MaxJobDuration = 8 * time.Hour
	RecordInterval = 30 * time.Second
	DBPath         = "lux-meter.db"
)

// Start kicks off a monitoring job that reads the sensor on an interval
// until stopped or the max duration passes.
func (m *Meter) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		if m.running {
			m.mu.Unlock()
			ServeResponse(w, r, "A monitoring job is already running", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), MaxJobDuration)
		m.cancel = cancel
		m.running = true
		m.mu.Unlock()

		go m.monitor(ctx)

		ServeResponse(w, r, "Lux monitoring started", http.StatusOK)
	}
}

// Stop cancels the running monitoring job.
func (m *Meter) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.running {
			ServeResponse(w, r, "No monitoring job is running", http.StatusBadRequest)
			return
		}
		m.cancel()
		m.running = false

		ServeResponse(w, r, "Lux monitoring stopped", http.StatusOK)
	}
}

// monitor is the job loop: read, convert, publish, repeat. Saturated
// readings trigger an exposure step-down and a retry on the next tick; the
// driver itself never retries.
func (m *Meter) monitor(ctx context.Context) {
	jobID := uuid.New().String()
	tools.Logger.WithField("job_id", jobID).Info("monitoring job started")

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		tools.Logger.WithField("job_id", jobID).Info("monitoring job finished")
	}()

	ticker := time.NewTicker(RecordInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.mu.Lock()
		reading, lux, err := m.readOnce(ctx)
		m.mu.Unlock()

		switch {
		case errors.Is(err, tsl2591.ErrSaturated):
			tools.Logger.WithField("job_id", jobID).Info("reading saturated, reducing exposure")
			m.mu.Lock()
			if err := m.reduceExposure(ctx); err != nil {
				tools.Logger.WithError(err).Error("failed to reduce exposure")
			}
			m.mu.Unlock()
		case err != nil:
			tools.Logger.WithError(err).WithField("job_id", jobID).Error("sensor read failed")
		default:
			// The recorder may be gone; never let a blocked send pin the job.
			select {
			case m.ResultChan <- Result{
				JobID:    jobID,
				Lux:      lux,
				Full:     reading.Full,
				Infrared: reading.Infrared,
			}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// readOnce waits out the integration cycle and takes one reading. Callers
// hold the meter lock.
func (m *Meter) readOnce(ctx context.Context) (tsl2591.ChannelReading, float64, error) {
	if err := m.waitForCycle(ctx); err != nil {
		return tsl2591.ChannelReading{}, 0, err
	}
	reading, err := m.Sensor.ReadChannels(ctx)
	if err != nil {
		return tsl2591.ChannelReading{}, 0, err
	}
	lux, err := m.Sensor.Config().Lux(reading)
	return reading, lux, err
}

// waitForCycle polls AVALID until the chip reports a completed integration
// cycle.
func (m *Meter) waitForCycle(ctx context.Context) error {
	wait := m.Sensor.Config().Time.Duration()
	deadline := time.Now().Add(2 * wait)
	for {
		status, err := m.Sensor.ReadStatus(ctx)
		if err != nil {
			return err
		}
		if status.CycleComplete {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("integration cycle did not complete in time")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait / 10):
		}
	}
}

// reduceExposure steps down gain first, then integration time, so the next
// reading lands back inside the ADC range.
func (m *Meter) reduceExposure(ctx context.Context) error {
	cfg := m.Sensor.Config()
	switch cfg.Gain {
	case tsl2591.GainMax:
		return m.Sensor.SetGain(ctx, tsl2591.GainHigh)
	case tsl2591.GainHigh:
		return m.Sensor.SetGain(ctx, tsl2591.GainMed)
	case tsl2591.GainMed:
		return m.Sensor.SetGain(ctx, tsl2591.GainLow)
	}
	if cfg.Time > tsl2591.IntegrationTime100ms {
		return m.Sensor.SetIntegrationTime(ctx, cfg.Time-1)
	}
	return errors.New("already at minimum exposure")
}

// MonitorAndRecordResults drains the result channel into sqlite. Runs for
// the life of the process.
func (m *Meter) MonitorAndRecordResults() {
	tools.Logger.Info("waiting for new lux readings")
	for result := range m.ResultChan {
		tools.Logger.WithFields(logrus.Fields{
			"job_id": result.JobID,
			"lux":    result.Lux,
		}).Debug("recording reading")
		cfg := m.Sensor.Config()
		_, err := m.ResultsDB.Exec(
			"INSERT INTO readings (job_id, lux, full_spectrum, infrared, gain, integration_time) VALUES (?, ?, ?, ?, ?, ?)",
			result.JobID,
			result.Lux,
			result.Full,
			result.Infrared,
			cfg.Gain.String(),
			cfg.Time.String(),
		)
		if err != nil {
			tools.Logger.WithError(err).Error("failed to record reading")
		}
	}
}

// Conditions is the current/historical summary served to clients.
type Conditions struct {
	JobID                 string  `json:"jobID"`
	Lux                   float64 `json:"lux"`
	FullSpectrum          uint16  `json:"fullSpectrum"`
	Infrared              uint16  `json:"infrared"`
	DateRange             string  `json:"dateRange"`
	RecordedHoursInRange  float64 `json:"recordedHoursInRange"`
	FullSunlightInRange   float64 `json:"fullSunlightInRange"`
	LightConditionInRange string  `json:"lightConditionInRange"`
	AverageLuxInRange     float64 `json:"averageLuxInRange"`
}

// CurrentConditions serves the most recent reading saved to the DB.
func (m *Meter) CurrentConditions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		conditions, err := m.getCurrentConditions()
		if err != nil {
			tools.Logger.WithError(err).Error("failed to load current conditions")
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(conditions)
	}
}

func (m *Meter) getCurrentConditions() (Conditions, error) {
	conditions := Conditions{}
	row := m.ResultsDB.QueryRow(
		"SELECT job_id, lux, full_spectrum, infrared FROM readings ORDER BY id DESC LIMIT 1")
	err := row.Scan(&conditions.JobID, &conditions.Lux, &conditions.FullSpectrum, &conditions.Infrared)
	if err != nil {
		return Conditions{}, err
	}
	return conditions, nil
}

// SetThresholds programs the interrupt threshold window from form values and
// arms the interrupt.
func (m *Meter) SetThresholds() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		low, err := parseCount(r.FormValue("low"))
		if err != nil {
			ServeResponse(w, r, "Invalid low threshold", http.StatusBadRequest)
			return
		}
		high, err := parseCount(r.FormValue("high"))
		if err != nil {
			ServeResponse(w, r, "Invalid high threshold", http.StatusBadRequest)
			return
		}
		persist, err := parsePersist(r.FormValue("persist"))
		if err != nil {
			ServeResponse(w, r, "Invalid persist count", http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		err = m.Sensor.SetThresholds(r.Context(), tsl2591.Thresholds{
			Low:     low,
			High:    high,
			Persist: persist,
		})
		if errors.Is(err, tsl2591.ErrInvalidThreshold) {
			ServeResponse(w, r, "Low threshold must not exceed high threshold", http.StatusBadRequest)
			return
		} else if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := m.Sensor.EnableInterrupt(r.Context()); err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeResponse(w, r, "Interrupt thresholds armed", http.StatusOK)
	}
}

// ClearInterrupt deasserts a latched interrupt so the line can fire again.
func (m *Meter) ClearInterrupt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.Sensor == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if err := m.Sensor.ClearInterrupt(r.Context()); err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeResponse(w, r, "Interrupt cleared", http.StatusOK)
	}
}

func parseCount(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	return uint16(v), err
}

var persistCodes = map[string]tsl2591.Persist{
	"0": tsl2591.PersistEvery, "1": tsl2591.Persist1, "2": tsl2591.Persist2,
	"3": tsl2591.Persist3, "5": tsl2591.Persist5, "10": tsl2591.Persist10,
	"15": tsl2591.Persist15, "20": tsl2591.Persist20, "25": tsl2591.Persist25,
	"30": tsl2591.Persist30, "35": tsl2591.Persist35, "40": tsl2591.Persist40,
	"45": tsl2591.Persist45, "50": tsl2591.Persist50, "55": tsl2591.Persist55,
	"60": tsl2591.Persist60,
}

func parsePersist(s string) (tsl2591.Persist, error) {
	if s == "" {
		return tsl2591.PersistEvery, nil
	}
	p, ok := persistCodes[s]
	if !ok {
		return 0, errors.New("unsupported persist count")
	}
	return p, nil
}

// ServeResponse replies with a JSON message.
func ServeResponse(w http.ResponseWriter, r *http.Request, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
