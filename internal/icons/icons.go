// Package icons maps weather condition ids to watch face art.
package icons

// Resource identifies a weather icon. Values persist in watch settings, so
// they must not be renumbered.
type Resource int

const (
	None        Resource = -1
	Clear       Resource = 1
	LightClouds Resource = 2
	Cloudy      Resource = 3
	LightRain   Resource = 4
	Rain        Resource = 5
	Snow        Resource = 6
	Storm       Resource = 7
	Fog         Resource = 8
)

var names = map[Resource]string{
	None:        "none",
	Clear:       "clear",
	LightClouds: "light_clouds",
	Cloudy:      "cloudy",
	LightRain:   "light_rain",
	Rain:        "rain",
	Snow:        "snow",
	Storm:       "storm",
	Fog:         "fog",
}

func (r Resource) String() string {
	if n, ok := names[r]; ok {
		return n
	}
	return "unknown"
}

type span struct {
	lo, hi int
	res    Resource
}

// conditions is checked in order; the first matching span wins. 761 falls in
// the fog span before the storm span is reached.
var conditions = [...]span{
	{200, 232, Storm},
	{300, 321, LightRain},
	{500, 504, Rain},
	{511, 511, Snow},
	{520, 531, Rain},
	{600, 622, Snow},
	{701, 761, Fog},
	{761, 761, Storm},
	{781, 781, Storm},
	{800, 800, Clear},
	{801, 801, LightClouds},
	{802, 804, Cloudy},
}

// ForWeatherCondition maps an OpenWeatherMap condition id to an icon, or None.
func ForWeatherCondition(id int) Resource {
	for _, s := range conditions {
		if id >= s.lo && id <= s.hi {
			return s.res
		}
	}
	return None
}
