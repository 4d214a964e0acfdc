package model

import (
	"fmt"
	"slices"
	"time"
)

// BadgeID, GamePassID and ProductID are platform catalog identifiers
type (
	BadgeID    string
	GamePassID string
	ProductID  string
)

// PlayerData is the persistent record of a user.
// Snapshots are values: mutate only through an Updater, which returns a new
// snapshot and leaves its input untouched.
type PlayerData struct {
	Balance      Balance      `json:"balance"`
	Achievements Achievements `json:"achievements"`
	Mtx          Mtx          `json:"mtx"`
	Settings     Settings     `json:"settings"`
}

type Balance struct {
	Money int64 `json:"money"`
}

type Achievements struct {
	// Badges maps a badge to whether awarding it succeeded
	Badges map[BadgeID]bool `json:"badges"`
}

type Mtx struct {
	GamePasses     map[GamePassID]GamePassData `json:"game_passes"`
	Products       map[ProductID]ProductData   `json:"products"`
	ReceiptHistory []string                    `json:"receipt_history"`
}

type GamePassData struct {
	Active bool `json:"active"`
}

type ProductData struct {
	PurchaseInfo   []PurchaseInfo `json:"purchase_info"`
	TimesPurchased int            `json:"times_purchased"`
}

type PurchaseInfo struct {
	Price int64     `json:"price"`
	Time  time.Time `json:"time"`
}

type Settings struct {
	Audio AudioSettings `json:"audio"`
}

type AudioSettings struct {
	MusicVolume float64 `json:"music_volume"`
	SFXVolume   float64 `json:"sfx_volume"`
}

// DefaultPlayerData returns the snapshot a first-time user starts with
func DefaultPlayerData() PlayerData {
	return PlayerData{
		Achievements: Achievements{Badges: map[BadgeID]bool{}},
		Mtx: Mtx{
			GamePasses:     map[GamePassID]GamePassData{},
			Products:       map[ProductID]ProductData{},
			ReceiptHistory: []string{},
		},
		Settings: Settings{Audio: AudioSettings{MusicVolume: 1, SFXVolume: 1}},
	}
}

// Clone returns a deep copy
func (d PlayerData) Clone() PlayerData {
	out := d
	out.Achievements.Badges = cloneMap(d.Achievements.Badges)
	out.Mtx.GamePasses = cloneMap(d.Mtx.GamePasses)
	out.Mtx.ReceiptHistory = slices.Clone(d.Mtx.ReceiptHistory)
	if d.Mtx.Products != nil {
		out.Mtx.Products = make(map[ProductID]ProductData, len(d.Mtx.Products))
		for id, p := range d.Mtx.Products {
			p.PurchaseInfo = slices.Clone(p.PurchaseInfo)
			out.Mtx.Products[id] = p
		}
	}
	return out
}

// Normalize fills collections a stored document may have omitted
func (d PlayerData) Normalize() PlayerData {
	out := d.Clone()
	if out.Achievements.Badges == nil {
		out.Achievements.Badges = map[BadgeID]bool{}
	}
	if out.Mtx.GamePasses == nil {
		out.Mtx.GamePasses = map[GamePassID]GamePassData{}
	}
	if out.Mtx.Products == nil {
		out.Mtx.Products = map[ProductID]ProductData{}
	}
	if out.Mtx.ReceiptHistory == nil {
		out.Mtx.ReceiptHistory = []string{}
	}
	return out
}

// Validate checks a loaded snapshot
func (d PlayerData) Validate() error {
	if d.Balance.Money < 0 {
		return fmt.Errorf("%w: negative balance %d", ErrRecordInvalid, d.Balance.Money)
	}
	for _, v := range []float64{d.Settings.Audio.MusicVolume, d.Settings.Audio.SFXVolume} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: volume %v out of range", ErrRecordInvalid, v)
		}
	}
	for id, p := range d.Mtx.Products {
		if p.TimesPurchased < 0 {
			return fmt.Errorf("%w: product %s has negative purchase count", ErrRecordInvalid, id)
		}
	}
	for _, id := range d.Mtx.ReceiptHistory {
		if id == "" {
			return fmt.Errorf("%w: empty purchase id in receipt history", ErrRecordInvalid)
		}
	}
	return nil
}

// HasReceipt reports whether a purchase id is in the receipt history
func (d PlayerData) HasReceipt(purchaseID string) bool {
	return slices.Contains(d.Mtx.ReceiptHistory, purchaseID)
}

// OwnsGamePass reports whether the record holds an entry for the pass
func (d PlayerData) OwnsGamePass(id GamePassID) bool {
	_, ok := d.Mtx.GamePasses[id]
	return ok
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
