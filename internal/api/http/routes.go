package httpapi

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/pasture-risk/internal/explain"
	"github.com/i474232898/pasture-risk/internal/params"
	"github.com/i474232898/pasture-risk/internal/scoring"
	"github.com/i474232898/pasture-risk/internal/store"
	"github.com/i474232898/pasture-risk/internal/turnout"
	"github.com/i474232898/pasture-risk/internal/weather"
)

var validate = validator.New()

// Handlers bundles what the routes need.
type Handlers struct {
	Service  *weather.Service
	Horses   *store.HorseRepository
	Pasture  turnout.PastureConfig
	Analyses turnout.HayAnalyses
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, h Handlers) {
	v1 := app.Group("/api/v1")

	v1.Get("/risk", h.getRisk)
	v1.Get("/risk/history", h.getRiskHistory)
	v1.Get("/risk/explain", h.getExplain)
	v1.Get("/risk/sensitivity", h.getSensitivity)
	v1.Post("/score", h.postScore)

	v1.Get("/params", h.getParams)
	v1.Post("/params", h.postParams)

	v1.Get("/horses", h.listHorses)
	v1.Get("/horses/:id", h.getHorse)
	v1.Post("/horses", h.saveHorse)
	v1.Delete("/horses/:id", h.deleteHorse)

	v1.Get("/turnout", h.getTurnout)
}

// statusFor maps domain errors onto HTTP errors.
func statusFor(err error, fallback string) error {
	var (
		unknown *params.UnknownParameterError
		config  *params.ConfigurationError
	)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrHorseNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrNoProviders):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, params.ErrVersionReused):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, turnout.ErrUnknownAnalysis), errors.As(err, &unknown):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &config):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, fallback+": "+err.Error())
	}
}

func (h Handlers) getRisk(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ev, err := h.Service.Latest(c.UserContext(), loc)
	if err != nil {
		return statusFor(err, "failed to evaluate pasture risk")
	}
	return c.JSON(ev)
}

func (h Handlers) getRiskHistory(c *fiber.Ctx) error {
	var req historyQuery
	if err := req.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	evs, err := h.Service.GetRange(req.Location, req.From, req.To)
	if err != nil {
		return statusFor(err, "failed to fetch evaluation history")
	}
	return c.JSON(fiber.Map{
		"location":    req.Location,
		"from":        req.From,
		"to":          req.To,
		"evaluations": evs,
	})
}

// windowInput resolves the scored input of one window of the latest
// evaluation, together with an engine on the parameters it was scored with.
// A cached evaluation scored under older parameters is re-evaluated first.
func (h Handlers) windowInput(c *fiber.Ctx) (scoring.Input, *scoring.Engine, error) {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return scoring.Input{}, nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	slot, err := scoring.ParseSlot(c.Query("slot", string(scoring.SlotMorning)))
	if err != nil {
		return scoring.Input{}, nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	engine, err := h.Service.Engine()
	if err != nil {
		return scoring.Input{}, nil, statusFor(err, "failed to build scoring engine")
	}
	ev, err := h.Service.Latest(c.UserContext(), loc)
	if err != nil {
		return scoring.Input{}, nil, statusFor(err, "failed to evaluate pasture risk")
	}
	if ev.ParamsVersion != engine.ParamsVersion() {
		log.Printf("DEBUG: cached evaluation for %s uses params %s, current is %s; re-evaluating",
			loc.Key(), ev.ParamsVersion, engine.ParamsVersion())
		if ev, err = h.Service.Evaluate(c.UserContext(), loc); err != nil {
			return scoring.Input{}, nil, statusFor(err, "failed to evaluate pasture risk")
		}
		if ev.ParamsVersion != engine.ParamsVersion() {
			return scoring.Input{}, nil, fiber.NewError(fiber.StatusConflict, "parameters changed during evaluation, retry")
		}
	}
	if ev.Blocked() {
		return scoring.Input{}, nil, fiber.NewError(fiber.StatusConflict, "telemetry blocked: "+ev.Validation.Err().Error())
	}
	if len(ev.Days) == 0 {
		return scoring.Input{}, nil, fiber.NewError(fiber.StatusNotFound, "evaluation has no scored windows")
	}

	date := c.Query("date", ev.Days[0].Date)
	ts, ok := ev.Window(date, slot)
	if !ok {
		return scoring.Input{}, nil, fiber.NewError(fiber.StatusNotFound, "no score for "+date+" "+string(slot))
	}
	return ts.Input, engine, nil
}

func (h Handlers) getExplain(c *fiber.Ctx) error {
	in, engine, err := h.windowInput(c)
	if err != nil {
		return err
	}
	adj := h.Service.Adjustment()
	score := engine.CalculateScore(in, adj)
	return c.JSON(explain.NewExplainer(engine).Explain(in, adj, score))
}

func (h Handlers) getSensitivity(c *fiber.Ctx) error {
	in, engine, err := h.windowInput(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"input":         in,
		"paramsVersion": engine.ParamsVersion(),
		"results":       explain.NewAnalyzer(engine, h.Service.Adjustment()).Analyze(in),
	})
}

// scoreRequest scores an ad-hoc input without any telemetry.
type scoreRequest struct {
	Input      scoring.Input              `json:"input"`
	Adjustment *scoring.PastureAdjustment `json:"adjustment,omitempty"`
	EMSMode    *bool                      `json:"emsMode,omitempty"`
	Explain    bool                       `json:"explain"`
}

func (h Handlers) postScore(c *fiber.Ctx) error {
	var req scoreRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	in, err := scoring.NewInput(req.Input)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	adj := h.Service.Adjustment()
	if req.Adjustment != nil {
		adj = *req.Adjustment
	}
	ems := h.Service.EMSMode()
	if req.EMSMode != nil {
		ems = *req.EMSMode
	}

	engine, err := h.Service.Engine()
	if err != nil {
		return statusFor(err, "failed to build scoring engine")
	}
	b := engine.Contributions(in, adj)
	score := b.Final()
	resp := fiber.Map{
		"score":          score,
		"level":          engine.RiskLevel(score, ems),
		"reason":         engine.Reason(in, score),
		"breakdown":      b,
		"formulaVersion": engine.FormulaVersion(),
		"paramsVersion":  engine.ParamsVersion(),
	}
	if req.Explain {
		resp["explanation"] = explain.NewExplainer(engine).Explain(in, adj, score)
	}
	return c.JSON(resp)
}

func (h Handlers) getParams(c *fiber.Ctx) error {
	reg := h.Service.Params().Current()
	return c.JSON(fiber.Map{
		"version": reg.Version(),
		"check":   reg.SelfCheck(),
		"specs":   reg.Specs(),
	})
}

type paramsUpdate struct {
	Version   string             `json:"version" validate:"required"`
	Overrides map[string]float64 `json:"overrides" validate:"required,min=1"`
}

func (h Handlers) postParams(c *fiber.Ctx) error {
	var req paramsUpdate
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	reg, err := h.Service.Params().Update(req.Version, req.Overrides)
	if err != nil {
		var (
			config  *params.ConfigurationError
			unknown *params.UnknownParameterError
		)
		if errors.As(err, &config) || errors.As(err, &unknown) || errors.Is(err, params.ErrVersionReused) {
			return statusFor(err, "failed to update parameters")
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"version": reg.Version(),
		"check":   reg.SelfCheck(),
	})
}

func (h Handlers) listHorses(c *fiber.Ctx) error {
	horses, err := h.Horses.List(c.UserContext())
	if err != nil {
		return statusFor(err, "failed to list horses")
	}
	return c.JSON(horses)
}

func (h Handlers) getHorse(c *fiber.Ctx) error {
	horse, err := h.Horses.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return statusFor(err, "failed to load horse")
	}
	return c.JSON(horse)
}

func (h Handlers) saveHorse(c *fiber.Ctx) error {
	var horse turnout.HorseProfile
	if err := c.BodyParser(&horse); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if horse.Muzzle == "" {
		horse.Muzzle = turnout.MuzzleNone
	}
	candidate := horse
	if candidate.ID == "" {
		candidate.ID = "new"
	}
	if err := candidate.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	saved, err := h.Horses.Save(c.UserContext(), horse)
	if err != nil {
		return statusFor(err, "failed to save horse")
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h Handlers) deleteHorse(c *fiber.Ctx) error {
	if err := h.Horses.Delete(c.UserContext(), c.Params("id")); err != nil {
		return statusFor(err, "failed to delete horse")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h Handlers) getTurnout(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ev, err := h.Service.Latest(c.UserContext(), loc)
	if err != nil {
		return statusFor(err, "failed to evaluate pasture risk")
	}
	if ev.Blocked() {
		return fiber.NewError(fiber.StatusConflict, "telemetry blocked: "+ev.Validation.Err().Error())
	}

	engine, err := h.Service.Engine()
	if err != nil {
		return statusFor(err, "failed to build scoring engine")
	}
	rec, err := turnout.NewRecommender(h.Pasture, engine, h.Analyses)
	if err != nil {
		return statusFor(err, "invalid pasture configuration")
	}

	var horses []turnout.HorseProfile
	if id := c.Query("horseId"); id != "" {
		horse, err := h.Horses.Get(c.UserContext(), id)
		if err != nil {
			return statusFor(err, "failed to load horse")
		}
		horses = append(horses, horse)
	} else if horses, err = h.Horses.List(c.UserContext()); err != nil {
		return statusFor(err, "failed to list horses")
	}

	date := c.Query("date")
	var windows []turnout.WindowScore
	for _, d := range ev.Days {
		if date != "" && d.Date != date {
			continue
		}
		for _, s := range d.Slots {
			windows = append(windows, turnout.WindowScore{
				Window: turnout.Window{Date: d.Date, Slot: s.Slot},
				Score:  s.Score,
			})
		}
	}

	recs, skipped := rec.Plan(horses, windows)
	skippedMsgs := make(map[string]string, len(skipped))
	for id, err := range skipped {
		skippedMsgs[id] = err.Error()
	}
	if recs == nil {
		recs = []turnout.Recommendation{}
	}
	return c.JSON(fiber.Map{
		"evaluationId":    ev.ID,
		"recommendations": recs,
		"skipped":         skippedMsgs,
	})
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	City      string  `validate:"required_without=HasCoords"`
	Country   string  `validate:"required_with=City"`
	HasCoords bool
	Lat       float64 `validate:"gte=-90,lte=90"`
	Lon       float64 `validate:"gte=-180,lte=180"`
}

func (l locationQuery) toLocation() weather.Location {
	loc := weather.Location{City: l.City, Country: l.Country}
	if l.HasCoords {
		lat, lon := l.Lat, l.Lon
		loc.Lat, loc.Lon = &lat, &lon
	}
	return loc
}

func parseLocationQuery(c *fiber.Ctx) (weather.Location, error) {
	var q locationQuery

	q.City = c.Query("city")
	q.Country = c.Query("country")

	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if (latStr == "") != (lonStr == "") {
		return weather.Location{}, errors.New("lat and lon must be given together")
	}
	if latStr != "" {
		var err error
		if q.Lat, err = strconv.ParseFloat(latStr, 64); err != nil {
			return weather.Location{}, errors.New("invalid lat")
		}
		if q.Lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
			return weather.Location{}, errors.New("invalid lon")
		}
		q.HasCoords = true
	}

	if err := validate.Struct(q); err != nil {
		return weather.Location{}, err
	}

	return q.toLocation(), nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location weather.Location `validate:"-"`
	From     time.Time        `validate:"required"`
	To       time.Time        `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	h.Location = loc

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
