package core

import (
	"encoding/json"
	"math"
)

// jsonFloat renders NaN and ±Inf as null, which encoding/json rejects.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (v Vec2) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		X jsonFloat `json:"x"`
		Y jsonFloat `json:"y"`
	}{jsonFloat(v.X), jsonFloat(v.Y)})
}

func (p PlatformState) MarshalJSON() ([]byte, error) {
	type plain PlatformState
	return json.Marshal(struct {
		plain
		HitProb  jsonFloat  `json:"hitProb"`
		Cost     jsonFloat  `json:"cost"`
		MaxRange jsonFloat  `json:"maxRange"`
		Fuel     *jsonFloat `json:"fuel,omitempty"`
		Damage   *jsonFloat `json:"damage,omitempty"`
	}{
		plain:    plain(p),
		HitProb:  jsonFloat(p.HitProb),
		Cost:     jsonFloat(p.Cost),
		MaxRange: jsonFloat(p.MaxRange),
		Fuel:     (*jsonFloat)(p.Fuel),
		Damage:   (*jsonFloat)(p.Damage),
	})
}

func (t TargetState) MarshalJSON() ([]byte, error) {
	type plain TargetState
	return json.Marshal(struct {
		plain
		Value jsonFloat `json:"value"`
	}{plain(t), jsonFloat(t.Value)})
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		plain
		SimTime jsonFloat `json:"simTime"`
	}{plain(s), jsonFloat(s.SimTime)})
}
