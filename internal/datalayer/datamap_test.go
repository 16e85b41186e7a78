package datalayer

import (
	"encoding/json"
	"testing"
)

func TestDataMap_GetInt(t *testing.T) {
	m := DataMap{
		"int":    int64(800),
		"float":  float64(801),
		"number": json.Number("802"),
		"text":   "803",
		"bad":    "sunny",
	}
	tests := []struct {
		key  string
		want int
	}{
		{"int", 800},
		{"float", 801},
		{"number", 802},
		{"text", 803},
		{"bad", -1},
		{"missing", -1},
	}
	for _, tt := range tests {
		if got := m.GetInt(tt.key, -1); got != tt.want {
			t.Errorf("GetInt(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestDataMap_GetString_Default(t *testing.T) {
	m := NewDataMap()
	m.PutInt("n", 1)
	if got := m.GetString("n", "x"); got != "x" {
		t.Errorf("GetString(non-string) = %q, want default", got)
	}
	if got := m.GetString("missing", ""); got != "" {
		t.Errorf("GetString(missing) = %q, want empty", got)
	}
}

func TestDataMap_Equal_AcrossNumericTypes(t *testing.T) {
	a := DataMap{"WEATHER_ID": int64(800), "WEATHER_TEMP_LOW": "10°"}
	b := DataMap{"WEATHER_TEMP_LOW": "10°", "WEATHER_ID": json.Number("800")}
	if !a.Equal(b) {
		t.Error("Equal() = false, want true for same values with different numeric types")
	}
	b.PutLong("WEATHER_FORCE_UPDATE", 1)
	if a.Equal(b) {
		t.Error("Equal() = true, want false after adding a field")
	}
}

func TestValidatePath(t *testing.T) {
	valid := []string{"/Weather/Forecast", "/Weather/Update", "/a"}
	for _, p := range valid {
		if err := ValidatePath(p); err != nil {
			t.Errorf("ValidatePath(%q) error = %v", p, err)
		}
	}
	invalid := []string{"", "/", "Weather", "/Weather/", "/a//b", "/a b", "/a?b"}
	for _, p := range invalid {
		if err := ValidatePath(p); err == nil {
			t.Errorf("ValidatePath(%q) = nil, want error", p)
		}
	}
}
