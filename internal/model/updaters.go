package model

import "time"

// Updater derives a new snapshot from the current one
type Updater func(PlayerData) PlayerData

// Compose applies updaters left to right
func Compose(updaters ...Updater) Updater {
	return func(d PlayerData) PlayerData {
		for _, u := range updaters {
			d = u(d)
		}
		return d
	}
}

func AddBalance(amount int64) Updater {
	return func(d PlayerData) PlayerData {
		next := d.Clone()
		next.Balance.Money += amount
		return next
	}
}

func SetBadgeStatus(badge BadgeID, awarded bool) Updater {
	return func(d PlayerData) PlayerData {
		next := d.Clone()
		if next.Achievements.Badges == nil {
			next.Achievements.Badges = map[BadgeID]bool{}
		}
		next.Achievements.Badges[badge] = awarded
		return next
	}
}

// AddProductPurchase records one successful purchase of a developer product
func AddProductPurchase(product ProductID, spent int64, at time.Time) Updater {
	return func(d PlayerData) PlayerData {
		next := d.Clone()
		if next.Mtx.Products == nil {
			next.Mtx.Products = map[ProductID]ProductData{}
		}
		p := next.Mtx.Products[product]
		p.PurchaseInfo = append(p.PurchaseInfo, PurchaseInfo{Price: spent, Time: at.UTC()})
		p.TimesPurchased++
		next.Mtx.Products[product] = p
		return next
	}
}

func SetGamePassActive(pass GamePassID, active bool) Updater {
	return func(d PlayerData) PlayerData {
		next := d.Clone()
		if next.Mtx.GamePasses == nil {
			next.Mtx.GamePasses = map[GamePassID]GamePassData{}
		}
		next.Mtx.GamePasses[pass] = GamePassData{Active: active}
		return next
	}
}

// AppendReceipt appends a purchase id to the receipt history, keeping at most
// capacity of the most recent ids.
func AppendReceipt(purchaseID string, capacity int) Updater {
	return func(d PlayerData) PlayerData {
		next := d.Clone()
		history := append(next.Mtx.ReceiptHistory, purchaseID)
		if capacity > 0 && len(history) > capacity {
			history = history[len(history)-capacity:]
		}
		next.Mtx.ReceiptHistory = history
		return next
	}
}

func SetMusicVolume(v float64) Updater {
	return func(d PlayerData) PlayerData {
		next := d.Clone()
		next.Settings.Audio.MusicVolume = clampVolume(v)
		return next
	}
}

func SetSFXVolume(v float64) Updater {
	return func(d PlayerData) PlayerData {
		next := d.Clone()
		next.Settings.Audio.SFXVolume = clampVolume(v)
		return next
	}
}

func clampVolume(v float64) float64 {
	return min(max(v, 0), 1)
}
