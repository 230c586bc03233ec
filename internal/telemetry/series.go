package telemetry

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"
)

// Channel names an hourly telemetry array.
type Channel string

const (
	ChannelTemperature   Channel = "temperature_2m"
	ChannelHumidity      Channel = "relative_humidity_2m"
	ChannelRadiation     Channel = "shortwave_radiation"
	ChannelCloud         Channel = "cloud_cover"
	ChannelPrecipitation Channel = "precipitation"
	ChannelWind          Channel = "wind_speed_10m"
	ChannelET0           Channel = "et0_fao_evapotranspiration"
)

// Channels lists every numeric channel in a fixed order.
var Channels = []Channel{
	ChannelTemperature,
	ChannelHumidity,
	ChannelRadiation,
	ChannelCloud,
	ChannelPrecipitation,
	ChannelWind,
	ChannelET0,
}

// HourlySeries holds index-aligned hourly arrays. Missing samples are NaN.
// Units: temperature °C, humidity and cloud %, radiation W/m², precipitation
// mm, wind km/h, ET0 mm per hour.
type HourlySeries struct {
	Time          []time.Time `json:"time"`
	Temperature   []float64   `json:"temperature_2m"`
	Humidity      []float64   `json:"relative_humidity_2m"`
	Radiation     []float64   `json:"shortwave_radiation"`
	Cloud         []float64   `json:"cloud_cover"`
	Precipitation []float64   `json:"precipitation"`
	Wind          []float64   `json:"wind_speed_10m"`
	ET0           []float64   `json:"et0_fao_evapotranspiration"`
}

// Values returns the array for ch.
func (s HourlySeries) Values(ch Channel) []float64 {
	switch ch {
	case ChannelTemperature:
		return s.Temperature
	case ChannelHumidity:
		return s.Humidity
	case ChannelRadiation:
		return s.Radiation
	case ChannelCloud:
		return s.Cloud
	case ChannelPrecipitation:
		return s.Precipitation
	case ChannelWind:
		return s.Wind
	case ChannelET0:
		return s.ET0
	default:
		return nil
	}
}

// Len is the length of the time axis.
func (s HourlySeries) Len() int {
	return len(s.Time)
}

// IndexAt returns the index whose timestamp equals t, or -1.
func (s HourlySeries) IndexAt(t time.Time) int {
	for i, ts := range s.Time {
		if ts.Equal(t) {
			return i
		}
	}
	return -1
}

// Current is the provider's "now" snapshot.
type Current struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature_2m"`
	Humidity    float64   `json:"relative_humidity_2m"`
	Cloud       float64   `json:"cloud_cover"`
	Wind        float64   `json:"wind_speed_10m"`
}

// ParityHash is a content hash over the series, so that displayed values can
// be traced back to the exact telemetry they were derived from.
func ParityHash(s HourlySeries) string {
	h := sha256.New()
	var buf [8]byte
	for _, ts := range s.Time {
		binary.BigEndian.PutUint64(buf[:], uint64(ts.Unix()))
		h.Write(buf[:])
	}
	for _, ch := range Channels {
		h.Write([]byte(ch))
		for _, v := range s.Values(ch) {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
