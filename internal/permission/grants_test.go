package permission

import (
	"reflect"
	"testing"
)

func TestGrants(t *testing.T) {
	g := NewGrants(FineLocation)

	if !g.HasCapability(FineLocation) {
		t.Error("expected fine location granted")
	}
	if g.HasCapability(CoarseLocation) {
		t.Error("expected coarse location not granted")
	}

	g.Grant(CoarseLocation)
	g.Revoke(FineLocation)
	want := []Capability{CoarseLocation}
	if got := g.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}

	g.Set(Required)
	if len(Missing(g)) != 0 {
		t.Errorf("expected nothing missing, got %v", Missing(g))
	}

	g.Set(nil)
	if got := g.Snapshot(); len(got) != 0 {
		t.Errorf("expected empty snapshot, got %v", got)
	}
}

func TestMissing_InCheckOrder(t *testing.T) {
	g := NewGrants(CoarseLocation)

	want := []Capability{FineLocation, BackgroundLocation}
	if got := Missing(g); !reflect.DeepEqual(got, want) {
		t.Errorf("Missing() = %v, want %v", got, want)
	}
}

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		input   string
		want    []Capability
		wantErr bool
	}{
		{"", nil, false},
		{"fine_location", []Capability{FineLocation}, false},
		{" Fine_Location , background_location ", []Capability{FineLocation, BackgroundLocation}, false},
		{"all", Required, false},
		{"fine_location,microphone", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCapabilities(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCapabilities(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCapabilities(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
