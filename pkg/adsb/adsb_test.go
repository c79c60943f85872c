package adsb

import "testing"

func TestNormalizeICAO24Lowercased(t *testing.T) {
	s := (&AircraftState{ICAO24: "A1B2C3"}).Normalize()
	if s.ICAO24 != "a1b2c3" {
		t.Errorf("expected lowercased icao24, got %q", s.ICAO24)
	}
}

func TestNormalizeCategoryOutOfRangeCoercedToNil(t *testing.T) {
	cat := 42
	s := (&AircraftState{Category: &cat}).Normalize()
	if s.Category != nil {
		t.Errorf("expected category coerced to nil, got %v", *s.Category)
	}
}

func TestNormalizeCategoryInRangePreserved(t *testing.T) {
	cat := 3
	s := (&AircraftState{Category: &cat}).Normalize()
	if s.Category == nil || *s.Category != 3 {
		t.Errorf("expected category 3 preserved, got %v", s.Category)
	}
}

func TestIsValidICAO24(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"a1b2c3", true},
		{"ABCDEF", false}, // uppercase rejected; caller must Normalize first
		{"a1b2c", false},
		{"a1b2c3d", false},
		{"zzzzzz", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsValidICAO24(c.in); got != c.want {
			t.Errorf("IsValidICAO24(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestInferOnGroundLowAltitude(t *testing.T) {
	alt := 10.0
	if !InferOnGround(&alt, nil) {
		t.Error("expected on_ground true for altitude under 30.48m")
	}
}

func TestInferOnGroundLowVelocity(t *testing.T) {
	vel := KnotsToMPS(20)
	if !InferOnGround(nil, &vel) {
		t.Error("expected on_ground true for velocity under 50kt")
	}
}

func TestInferOnGroundAirborne(t *testing.T) {
	alt, vel := 3000.0, KnotsToMPS(250)
	if InferOnGround(&alt, &vel) {
		t.Error("expected on_ground false for cruising aircraft")
	}
}

func TestUnitConversions(t *testing.T) {
	if got := FeetToM(1000); got < 304.7 || got > 304.9 {
		t.Errorf("FeetToM(1000) = %v, want ~304.8", got)
	}
	if got := FPMToMPS(1000); got < 5.0 || got > 5.1 {
		t.Errorf("FPMToMPS(1000) = %v, want ~5.08", got)
	}
	if got := KnotsToMPS(100); got < 51.4 || got > 51.5 {
		t.Errorf("KnotsToMPS(100) = %v, want ~51.44", got)
	}
}

func TestCategoryFromCode(t *testing.T) {
	cases := []struct {
		code string
		want int
		ok   bool
	}{
		{"A0", 0, true},
		{"A1", 1, true},
		{"B0", 8, true},
		{"C3", 19, true},
		{"Z9", 0, false},
	}
	for _, c := range cases {
		got, ok := CategoryFromCode(c.code)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("CategoryFromCode(%q) = (%d,%v), want (%d,%v)", c.code, got, ok, c.want, c.ok)
		}
	}
}

func TestSourcePriorityOrdering(t *testing.T) {
	if !(SourceFeeder.Priority() < SourceCommercialNetwork.Priority() &&
		SourceCommercialNetwork.Priority() < SourceFreeNetwork.Priority() &&
		SourceFreeNetwork.Priority() < SourceAeroAPI.Priority()) {
		t.Error("expected feeder < commercial < free < aero-api priority ordering")
	}
}
