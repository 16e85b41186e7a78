package icons

import "testing"

func TestForWeatherCondition(t *testing.T) {
	tests := []struct {
		id   int
		want Resource
	}{
		{200, Storm},
		{232, Storm},
		{233, None},
		{300, LightRain},
		{321, LightRain},
		{500, Rain},
		{504, Rain},
		{511, Snow},
		{520, Rain},
		{531, Rain},
		{600, Snow},
		{622, Snow},
		{701, Fog},
		{761, Fog},
		{771, None},
		{781, Storm},
		{800, Clear},
		{801, LightClouds},
		{802, Cloudy},
		{804, Cloudy},
		{0, None},
		{900, None},
	}
	for _, tt := range tests {
		if got := ForWeatherCondition(tt.id); got != tt.want {
			t.Errorf("ForWeatherCondition(%d) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestImage(t *testing.T) {
	if Image(None) != nil {
		t.Error("Image(None) != nil")
	}
	if Image(Resource(42)) != nil {
		t.Error("Image(42) != nil")
	}
	img := Image(Clear)
	if img == nil {
		t.Fatal("Image(Clear) = nil")
	}
	if b := img.Bounds(); b.Dx() != Size || b.Dy() != Size {
		t.Errorf("Image(Clear) bounds = %v, want %dx%d", b, Size, Size)
	}
	if Image(Clear) != img {
		t.Error("Image(Clear) not cached")
	}
	// center of the sun is opaque
	if _, _, _, a := img.At(24, 24).RGBA(); a == 0 {
		t.Error("Image(Clear) center is transparent")
	}
}
