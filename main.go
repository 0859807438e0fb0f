package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ztkent/lux-meter/internal/luxmeter"
	"github.com/ztkent/lux-meter/internal/tools"
	"github.com/ztkent/lux-meter/tsl2591"
)

/*
	Entry point for the Lux Meter service. Expected to run at startup on a
	Raspberry Pi with a TSL2591 sensor on the I2C bus.
*/

func main() {
	log := tools.Logger
	log.WithField("pid", os.Getpid()).Info("LuxMeter starting")

	// Connect to the lux sensor. Every bus transaction becomes cancelable so
	// request contexts can bound sensor I/O.
	bus, err := tsl2591.OpenI2C(os.Getenv("DEVICE_PATH"))
	if err != nil {
		log.WithError(err).Fatal("failed to open the I2C bus")
	}
	device, err := tsl2591.New(
		context.Background(),
		tsl2591.NewCancelableBus(bus),
		tsl2591.WithGain(tsl2591.GainLow),
		tsl2591.WithIntegrationTime(tsl2591.IntegrationTime300ms),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to the TSL2591 sensor")
	}

	// Connect to the sqlite database. Unlike the sensor, this should always work.
	db, err := tools.ConnectSqlite(luxmeter.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to the sqlite database")
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	defineRoutes(r, &luxmeter.Meter{
		Sensor:     device,
		ResultsDB:  db,
		ResultChan: make(chan luxmeter.Result),
	})

	if os.Getenv("SSL") == "true" {
		if err := tools.EnsureCertificate("cert.pem", "key.pem"); err != nil {
			log.WithError(err).Fatal("failed to prepare TLS certificate")
		}
		log.Info("starting HTTPS server on port 443")
		err = http.ListenAndServeTLS(":443", "cert.pem", "key.pem", r)
	} else {
		log.Info("starting HTTP server on port 80")
		err = http.ListenAndServe(":80", r)
	}
	log.WithError(err).Fatal("server stopped")
}

func defineRoutes(r *chi.Mux, meter *luxmeter.Meter) {
	// Listen for result messages from monitoring jobs, record them in sqlite
	go meter.MonitorAndRecordResults()

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Get("/status", meter.ServeSensorStatus())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/historical-conditions", meter.HistoricalConditions())
		r.Get("/export", meter.ServeResultsDB())
		r.Post("/thresholds", meter.SetThresholds())
		r.Post("/clear-interrupt", meter.ClearInterrupt())
	})

	// The graph is only reachable from inside the local network
	r.Group(func(r chi.Router) {
		r.Use(tools.CheckInNetwork)
		r.Get("/graph", meter.ServeResultsGraph())
	})

	// Route for service identification
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		luxmeter.ServeResponse(w, r, "Lux Meter", http.StatusOK)
	})
}
