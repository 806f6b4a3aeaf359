package model

import (
	"fmt"
	"strings"
)

// #region direction

// Direction identifies which half of a reversible reaction a bound
// manipulation targets: '>' for forward flux, '<' for reverse flux.
type Direction byte

const (
	Forward Direction = '>'
	Reverse Direction = '<'
)

func (d Direction) String() string {
	return string(d)
}

// #endregion direction

// #region status

// Status is the outcome reported by a solver for a single optimization.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "failed"
	}
}

// #endregion status

// #region solution

// Solution is the result of one fresh solve: status, objective value at the
// optimum, and the flux carried by each reaction.
type Solution struct {
	Status    Status
	Objective float64
	Fluxes    map[string]float64
}

// IsOptimal returns true if the solve reached a proven optimum.
func (s Solution) IsOptimal() bool {
	return s.Status == StatusOptimal
}

// #endregion solution

// #region reaction-meta

// NoDeltaG marks an unknown Gibbs energy estimate.
const NoDeltaG = 10000000.0

// ReactionMeta carries the biochemistry annotations used for reliability
// scoring. All fields are optional; a nil meta means "nothing known".
type ReactionMeta struct {
	MassImbalanced    bool
	ChargeImbalanced  bool
	DeltaG            float64 // NoDeltaG when unknown
	TransportedCharge float64 // net charge moved out of the cell per forward unit
	ATPCoefficient    float64 // positive when forward flux produces ATP
	MissingInChIKey   int     // participant compounds without structure
	MissingFormula    int
	MissingDeltaG     int
}

// #endregion reaction-meta

// #region reaction

// Reaction is a single bounded flux in the network. Stoich maps metabolite
// IDs to coefficients (negative consumed, positive produced).
type Reaction struct {
	ID       string
	Lower    float64
	Upper    float64
	Stoich   map[string]float64
	GeneRule string
	Notes    map[string]string
	Meta     *ReactionMeta
}

// IsExchange reports whether the reaction moves a compound across the
// system boundary (exchange, sink, or demand).
func (r *Reaction) IsExchange() bool {
	return strings.HasPrefix(r.ID, "EX_") || strings.HasPrefix(r.ID, "SK_") || strings.HasPrefix(r.ID, "DM_")
}

// ExchangeCompound returns the boundary compound ID for exchange reactions,
// or "" for internal reactions.
func (r *Reaction) ExchangeCompound() string {
	for _, p := range []string{"EX_", "SK_", "DM_"} {
		if strings.HasPrefix(r.ID, p) {
			return r.ID[len(p):]
		}
	}
	return ""
}

// Clone produces a deep copy of the reaction.
func (r *Reaction) Clone() *Reaction {
	cp := &Reaction{
		ID:       r.ID,
		Lower:    r.Lower,
		Upper:    r.Upper,
		GeneRule: r.GeneRule,
	}
	if r.Stoich != nil {
		cp.Stoich = make(map[string]float64, len(r.Stoich))
		for k, v := range r.Stoich {
			cp.Stoich[k] = v
		}
	}
	if r.Notes != nil {
		cp.Notes = make(map[string]string, len(r.Notes))
		for k, v := range r.Notes {
			cp.Notes[k] = v
		}
	}
	if r.Meta != nil {
		m := *r.Meta
		cp.Meta = &m
	}
	return cp
}

// #endregion reaction

// #region media

// Media is a named nutrient environment: for each boundary compound, the
// maximum uptake flux allowed. Compounds absent from Flows fall back to the
// model's default uptake (normally zero).
type Media struct {
	ID    string
	Flows map[string]float64
}

func (m *Media) String() string {
	if m == nil {
		return "<complete>"
	}
	return fmt.Sprintf("media %s (%d compounds)", m.ID, len(m.Flows))
}

// #endregion media

// #region knockout

// Knockout records a single directional bound zeroing so it can be
// reversed exactly. When the counter bound crossed zero (for example a
// forced-forward reaction knocked in the forward direction), the counter
// bound is zeroed too and captured here.
type Knockout struct {
	ReactionID string
	Direction  Direction
	Bound      float64
	Counter    float64
	HasCounter bool
}

// #endregion knockout
