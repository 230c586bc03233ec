package weather

import (
	"fmt"
	"math"
	"time"

	"github.com/i474232898/pasture-risk/internal/common"
	"github.com/i474232898/pasture-risk/internal/confidence"
	"github.com/i474232898/pasture-risk/internal/scoring"
	"github.com/i474232898/pasture-risk/internal/telemetry"
)

const dateLayout = "2006-01-02"

// Look-back spans in days, including the scored day.
const (
	precipSpanDays = 7
	windSpanDays   = 3
	et0SpanDays    = 7
)

// slotHours are inclusive UTC hour ranges.
var slotHours = map[scoring.Slot][2]int{
	scoring.SlotMorning: {5, 10},
	scoring.SlotNoon:    {11, 15},
	scoring.SlotEvening: {16, 20},
}

// SlotHours returns the inclusive hour range covered by slot.
func SlotHours(slot scoring.Slot) (from, to int) {
	h := slotHours[slot]
	return h[0], h[1]
}

// WindowAggregate is the scoring input for one day and slot, together with
// the completeness and cross-model figures the confidence estimate needs.
type WindowAggregate struct {
	Date           string
	DayOffset      int
	Input          scoring.Input
	ExpectedHours  int
	AvailableHours int
	Deltas         *confidence.ModelDeltas
}

type dayIndex struct {
	dates  []string
	byDate map[string][]int
}

func indexDays(s telemetry.HourlySeries) dayIndex {
	idx := dayIndex{byDate: map[string][]int{}}
	for i, ts := range s.Time {
		d := ts.UTC().Format(dateLayout)
		if _, ok := idx.byDate[d]; !ok {
			idx.dates = append(idx.dates, d)
		}
		idx.byDate[d] = append(idx.byDate[d], i)
	}
	return idx
}

// span returns the indices of the n days ending with day.
func (d dayIndex) span(day time.Time, n int) []int {
	var out []int
	for k := n - 1; k >= 0; k-- {
		out = append(out, d.byDate[day.AddDate(0, 0, -k).Format(dateLayout)]...)
	}
	return out
}

// dailyMean averages the per-day sums of values over the n days ending with
// day. ok is false when none of those days has a sample.
func (d dayIndex) dailyMean(values []float64, day time.Time, n int) (mean float64, ok bool) {
	var total float64
	days := 0
	for k := n - 1; k >= 0; k-- {
		hrs := d.byDate[day.AddDate(0, 0, -k).Format(dateLayout)]
		sum, present := common.Sum(pick(values, hrs))
		if present == 0 {
			continue
		}
		total += sum
		days++
	}
	if days == 0 {
		return 0, false
	}
	return total / float64(days), true
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, 0, len(idx))
	for _, i := range idx {
		if i < len(values) {
			out = append(out, values[i])
		}
	}
	return out
}

func minMax(values []float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if common.IsMissing(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	return lo, hi, ok
}

func slotIndices(s telemetry.HourlySeries, hours []int, slot scoring.Slot) []int {
	from, to := SlotHours(slot)
	var out []int
	for _, i := range hours {
		h := s.Time[i].UTC().Hour()
		if h >= from && h <= to {
			out = append(out, i)
		}
	}
	return out
}

// available counts hours where every channel has a sample.
func available(s telemetry.HourlySeries, hours []int) int {
	n := 0
	for _, i := range hours {
		complete := true
		for _, ch := range telemetry.Channels {
			vals := s.Values(ch)
			if i >= len(vals) || common.IsMissing(vals[i]) {
				complete = false
				break
			}
		}
		if complete {
			n++
		}
	}
	return n
}

func modelDeltas(primary, secondary telemetry.HourlySeries, secIdx map[int64]int, hours []int) *confidence.ModelDeltas {
	var dT, dRH, dRad []float64
	absDiff := func(a, b []float64, i, j int) float64 {
		if i >= len(a) || j >= len(b) || common.IsMissing(a[i]) || common.IsMissing(b[j]) {
			return math.NaN()
		}
		return math.Abs(a[i] - b[j])
	}
	for _, i := range hours {
		j, ok := secIdx[primary.Time[i].Unix()]
		if !ok {
			continue
		}
		dT = append(dT, absDiff(primary.Temperature, secondary.Temperature, i, j))
		dRH = append(dRH, absDiff(primary.Humidity, secondary.Humidity, i, j))
		dRad = append(dRad, absDiff(primary.Radiation, secondary.Radiation, i, j))
	}
	t, okT := common.Mean(dT)
	rh, okRH := common.Mean(dRH)
	rad, okRad := common.Mean(dRad)
	if !okT && !okRH && !okRad {
		return nil
	}
	return &confidence.ModelDeltas{TempC: t, RHPct: rh, Radiation: rad}
}

// missingChannels lists, in channel order, the channels whose aggregate had no samples.
func missingChannels(present map[telemetry.Channel]bool) []telemetry.Channel {
	var out []telemetry.Channel
	for _, ch := range telemetry.Channels {
		if ok, checked := present[ch]; checked && !ok {
			out = append(out, ch)
		}
	}
	return out
}

// BuildWindows aggregates primary into one WindowAggregate per day and slot,
// starting at the UTC day of today. Days before today only feed the
// look-back sums. secondary may be nil; when present, per-window mean
// absolute deltas against it are attached. Windows that cannot form a valid
// scoring input, or whose aggregates have no samples at all, are reported in
// errs and skipped; missing values are never scored as zero.
func BuildWindows(primary telemetry.HourlySeries, secondary *telemetry.HourlySeries, today time.Time) (windows []WindowAggregate, errs []error) {
	idx := indexDays(primary)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	var secIdx map[int64]int
	if secondary != nil {
		secIdx = make(map[int64]int, secondary.Len())
		for j, ts := range secondary.Time {
			secIdx[ts.Unix()] = j
		}
	}

	for _, date := range idx.dates {
		day, err := time.Parse(dateLayout, date)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		offset := int(day.Sub(start).Hours() / 24)
		if offset < 0 {
			continue
		}
		hours := idx.byDate[date]

		tmin, tmax, ok := minMax(pick(primary.Temperature, hours))
		if !ok {
			errs = append(errs, fmt.Errorf("%s: no temperature samples", date))
			continue
		}
		precip, nPrecip := common.Sum(pick(primary.Precipitation, idx.span(day, precipSpanDays)))
		wind, okWind := common.Mean(pick(primary.Wind, idx.span(day, windSpanDays)))
		et0, okET0 := idx.dailyMean(primary.ET0, day, et0SpanDays)

		morning := slotIndices(primary, hours, scoring.SlotMorning)
		radiation, okRad := common.Mean(pick(primary.Radiation, morning))
		humidity, okRH := common.Mean(pick(primary.Humidity, morning))

		if absent := missingChannels(map[telemetry.Channel]bool{
			telemetry.ChannelPrecipitation: nPrecip > 0,
			telemetry.ChannelWind:          okWind,
			telemetry.ChannelET0:           okET0,
			telemetry.ChannelRadiation:     okRad,
			telemetry.ChannelHumidity:      okRH,
		}); len(absent) > 0 {
			errs = append(errs, fmt.Errorf("%s: no samples for %v", date, absent))
			continue
		}

		for _, slot := range scoring.Slots {
			hrs := slotIndices(primary, hours, slot)
			cloud, okCloud := common.Mean(pick(primary.Cloud, hrs))
			if !okCloud {
				errs = append(errs, fmt.Errorf("%s %s: no %s samples", date, slot, telemetry.ChannelCloud))
				continue
			}

			in, err := scoring.NewInput(scoring.Input{
				TempMin:                 common.Clamp(tmin, -30, 45),
				TempMax:                 common.Clamp(tmax, -30, 45),
				RadiationMorning:        common.Clamp(radiation, 0, 1500),
				CloudCoverSlot:          common.Clamp(cloud, 0, 100),
				Precip7dSum:             common.Clamp(precip, 0, 2000),
				Wind3dAvg:               common.Clamp(wind, 0, 60),
				RelativeHumidityMorning: common.Clamp(humidity, 0, 100),
				ET07dAvg:                common.Clamp(et0, 0, 20),
				Slot:                    slot,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", date, slot, err))
				continue
			}

			from, to := SlotHours(slot)
			w := WindowAggregate{
				Date:           date,
				DayOffset:      offset,
				Input:          in,
				ExpectedHours:  to - from + 1,
				AvailableHours: available(primary, hrs),
			}
			if secondary != nil {
				w.Deltas = modelDeltas(primary, *secondary, secIdx, hrs)
			}
			windows = append(windows, w)
		}
	}
	return windows, errs
}
