package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseChargeType(t *testing.T) {
	tests := []struct {
		input   string
		want    ChargeType
		wantErr bool
	}{
		{input: "AC", want: AC},
		{input: "DC", want: DC},
		{input: "dc", want: DC},
		{input: " ac ", want: AC},
		{input: "", wantErr: true},
		{input: "Level2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseChargeType(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidType) {
					t.Fatalf("ParseChargeType(%q) err = %v, want ErrInvalidType", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseChargeType(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseChargeType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRawSessionValidate(t *testing.T) {
	valid := RawSession{
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Provider:  "Gentari",
		Location:  "Mall A",
		Type:      DC,
		EnergyKWh: 20.0,
		TotalCost: 30.0,
	}

	tests := []struct {
		name    string
		mutate  func(*RawSession)
		wantErr error
	}{
		{name: "valid", mutate: func(r *RawSession) {}, wantErr: nil},
		{name: "zero date", mutate: func(r *RawSession) { r.Date = time.Time{} }, wantErr: ErrInvalidDate},
		{name: "blank provider", mutate: func(r *RawSession) { r.Provider = "   " }, wantErr: ErrEmptyProvider},
		{name: "bad type", mutate: func(r *RawSession) { r.Type = "L2" }, wantErr: ErrInvalidType},
		{name: "energy below minimum", mutate: func(r *RawSession) { r.EnergyKWh = 0.05 }, wantErr: ErrInvalidEnergy},
		{name: "negative cost", mutate: func(r *RawSession) { r.TotalCost = -1 }, wantErr: ErrNegativeCost},
		{name: "zero cost is fine", mutate: func(r *RawSession) { r.TotalCost = 0 }, wantErr: nil},
		{name: "empty location is fine", mutate: func(r *RawSession) { r.Location = "" }, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
