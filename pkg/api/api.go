// Package api exposes the detection observables over a small REST surface and
// allows injecting readings for bench setups without hardware.
package api

import (
	"time"

	"github.com/djbios/catscale/pkg/litterbox"
	"github.com/djbios/catscale/pkg/scale"
	"github.com/djbios/catscale/pkg/visitdb"
	"github.com/gofiber/fiber/v2"
)

// Observer denotes the detection surface consumed by the API. Implementations
// must be safe for concurrent use - the core detector itself is not, so hosts
// wrap it (see cmd/catscaled)
type Observer interface {

	// Deliver feeds a reading into the detector
	Deliver(data scale.DataPoint) litterbox.DetectionState

	// Status returns a snapshot of the observable outputs
	Status() litterbox.Status

	// States returns the detection state vocabulary
	States() []litterbox.DetectionState
}

// VisitStore denotes a persistence backend for finalized visits
type VisitStore interface {

	// RecentVisits returns up to limit visits, newest first
	RecentVisits(limit int) ([]visitdb.Visit, error)
}

// API denotes a REST API for a litterbox detector
type API struct {
	observer Observer
	store    VisitStore
	router   *fiber.App
}

// New instantiates a new API. The store may be nil, in which case the visit
// listing endpoint responds with 404
func New(observer Observer, store VisitStore) *API {

	api := API{
		observer: observer,
		store:    store,
		router:   fiber.New(),
	}

	// Setup routes
	api.router.Get("/status", api.handleStatus())
	api.router.Get("/states", api.handleStates())
	api.router.Post("/reading", api.handleReading())
	if store != nil {
		api.router.Get("/visits", api.handleVisits())
	}

	return &api
}

// Router returns the underlying fiber app (used by tests)
func (api *API) Router() *fiber.App {
	return api.router
}

// Serve starts listening on the given endpoint in a goroutine
func (api *API) Serve(endpoint string) {
	go func() {
		if err := api.router.Listen(endpoint); err != nil {
			panic(err)
		}
	}()
}

func (api *API) handleStatus() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		return c.JSON(api.observer.Status())
	}
}

func (api *API) handleStates() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		states := api.observer.States()
		keys := make([]string, len(states))
		for i, s := range states {
			keys[i] = s.Key()
		}
		return c.JSON(keys)
	}
}

type readingRequest struct {
	Weight    float64    `json:"weight"`
	TimeStamp *time.Time `json:"timestamp"`
}

func (api *API) handleReading() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var req readingRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		timestamp := time.Now()
		if req.TimeStamp != nil {
			timestamp = *req.TimeStamp
		}

		state := api.observer.Deliver(scale.DataPoint{
			TimeStamp: timestamp,
			Weight:    req.Weight,
			Unit:      scale.UnitGrams,
		})

		return c.JSON(fiber.Map{"detection_state": state.Key()})
	}
}

func (api *API) handleVisits() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		visits, err := api.store.RecentVisits(c.QueryInt("limit", 20))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(visits)
	}
}
