package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Currency is the fixed currency unit for all monetary amounts.
const Currency = "MYR"

// MinEnergyKWh is the smallest energy amount accepted at entry time.
// Loaded data may violate this; the entry form enforces it.
const MinEnergyKWh = 0.1

const (
	AC ChargeType = "AC"
	DC ChargeType = "DC"
)

type (
	ChargeType string

	// Coordinates is a resolved geographic position for a location name.
	Coordinates struct {
		Lat float64
		Lon float64
	}

	// RawSession is one charging event as entered or as read from storage,
	// before derived fields are computed.
	RawSession struct {
		Date      time.Time
		Provider  string
		Location  string
		Type      ChargeType
		EnergyKWh float64
		TotalCost float64
		Coords    *Coordinates // enrichment cache, nil when unresolved
	}

	// Session is a RawSession plus its derived fields. Derived fields are
	// pure functions of the raw inputs and are recomputed on every load,
	// never trusted from storage.
	Session struct {
		RawSession
		CostPerKWh float64
		PeriodKey  string // YYYY-MM
		Weekday    string // English day name, Monday..Sunday
	}
)

// Providers is the fixed catalog offered at entry time. Free-text providers
// remain valid; the catalog is advisory.
var Providers = []string{
	"Gentari", "JomCharge", "chargEV", "Shell Recharge",
	"TNB Electron", "ChargeSini", "Tesla Supercharger",
	"DC Handal", "Home", "Other",
}

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyProvider = errors.New("empty provider")
	ErrInvalidType   = errors.New("invalid charge type")
	ErrInvalidEnergy = errors.New("energy must be at least 0.1 kWh")
	ErrNegativeCost  = errors.New("total cost cannot be negative")
)

// ParseChargeType accepts AC/DC in any case.
func ParseChargeType(s string) (ChargeType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AC":
		return AC, nil
	case "DC":
		return DC, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

func (t ChargeType) Valid() bool {
	return t == AC || t == DC
}

// Validate applies the entry-time rules. Records loaded from storage are not
// passed through here; load tolerates historical rows the form would reject.
func (r RawSession) Validate() error {
	if r.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(r.Provider) == "" {
		return ErrEmptyProvider
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, string(r.Type))
	}
	if r.EnergyKWh < MinEnergyKWh {
		return ErrInvalidEnergy
	}
	if r.TotalCost < 0 {
		return ErrNegativeCost
	}
	return nil
}

// WeekdayOrder is the canonical display order for weekday groupings,
// independent of locale and of input order.
var WeekdayOrder = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}
